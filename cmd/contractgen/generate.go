package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"contractgen/internal/catalog"
	"contractgen/internal/prompt"
	"contractgen/internal/workflow"
)

// paramFlag collects repeated -p name=value flags.
type paramFlag map[string]string

func (p paramFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return strings.Join(parts, ",")
}

func (p paramFlag) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	p[strings.TrimSpace(name)] = value
	return nil
}

// openSession starts a workflow for templateID, choosing one interactively
// when empty, and applies the given values.
func (a *app) openSession(ctx context.Context, templateID string, values paramFlag) (*workflow.Session, error) {
	svc, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}
	if templateID == "" {
		list, err := catalog.New(svc, a.log).List(ctx)
		if err != nil {
			return nil, err
		}
		t, err := prompt.ChooseTemplate(ctx, a.driver, list)
		if err != nil {
			return nil, err
		}
		templateID = t.ID
	}
	s, err := workflow.Open(ctx, svc, templateID, workflow.WithLogger(a.log), workflow.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	for name, value := range values {
		if err := s.SetParameter(name, value); err != nil {
			if errors.Is(err, workflow.ErrUnknownParameter) {
				return nil, fmt.Errorf("template has no parameter %q (parameters: %s)", name, strings.Join(s.Parameters(), ", "))
			}
			return nil, err
		}
	}
	return s, nil
}

func (a *app) generate(ctx context.Context, args []string) error {
	templateID, args := leadingID(args)
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	values := paramFlag{}
	fs.Var(values, "p", "parameter value as name=value (repeatable)")
	force := fs.Bool("force", false, "generate a new version even when one exists")
	yes := fs.Bool("yes", false, "do not prompt; fail on missing values")
	out := fs.String("o", ".", "output directory for the generated file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if templateID == "" && fs.NArg() > 0 {
		templateID = fs.Arg(0)
	}
	if templateID == "" && *yes {
		return a.usageError("generate -yes needs a template id")
	}

	s, err := a.openSession(ctx, templateID, values)
	if err != nil {
		return err
	}
	if !*yes {
		if err := prompt.CollectParameters(ctx, a.driver, s, false); err != nil {
			return err
		}
	}
	fieldErrs, err := s.Preview(ctx)
	if err != nil {
		return err
	}
	if len(fieldErrs) > 0 {
		a.printFieldErrors(fieldErrs)
		return errors.New("missing parameter values")
	}
	view := s.Snapshot()
	raw, err := json.MarshalIndent(view.Preview, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\n", raw)

	forced := *force
	if !*yes {
		ok, err := a.driver.Confirm(ctx, prompt.ConfirmConfig{Message: "Generate the contract?", Default: true})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.stdout, "cancelled")
			return nil
		}
		if !forced {
			forced, err = a.driver.Confirm(ctx, prompt.ConfirmConfig{
				Message: "Force a new version if one already exists?",
				Help:    "Without forcing, generating the same values again returns the current version.",
			})
			if err != nil {
				return err
			}
		}
	}
	if err := s.SetForceRegenerate(forced); err != nil {
		return err
	}
	res, err := s.Generate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "contract version %d (hash %s)\n", res.Contract.Version, res.Contract.Hash)
	d, err := s.DownloadContract(ctx)
	if err != nil {
		return err
	}
	path, err := writeDownload(*out, d.Name, res.File.Name, d.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "saved %s\n", path)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	templateID, args := leadingID(args)
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	values := paramFlag{}
	fs.Var(values, "p", "parameter value as name=value (repeatable)")
	version := fs.Int("version", 0, "download this version")
	out := fs.String("o", ".", "output directory for a downloaded version")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if templateID == "" {
		return a.usageError("history needs a template id")
	}
	s, err := a.openSession(ctx, templateID, values)
	if err != nil {
		return err
	}
	entries, err := s.ShowHistory(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "no contracts generated for these values")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tACTIVE\tGENERATED\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Version, yesNo(e.Active), e.GeneratedAt.Local().Format(time.DateTime), e.File.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if *version == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Version != *version {
			continue
		}
		d, err := s.DownloadHistoryEntry(ctx, e)
		if err != nil {
			return err
		}
		path, err := writeDownload(*out, d.Name, e.File.Name, d.Data)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "saved %s\n", path)
		return nil
	}
	return fmt.Errorf("version %d not found", *version)
}

// leadingID splits off a positional id given before the flags.
func leadingID(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
