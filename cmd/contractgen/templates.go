package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"contractgen/internal/catalog"
	"contractgen/internal/editor"
	"contractgen/pkg/contractapi"
)

// errInvalid reports a rejected form; the field errors were already printed.
var errInvalid = errors.New("template is invalid")

func (a *app) templates(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usageError("templates needs a subcommand")
	}
	svc, err := a.backend(ctx)
	if err != nil {
		return err
	}
	cat := catalog.New(svc, a.log)
	switch sub, rest := args[0], args[1:]; sub {
	case "list":
		return a.listTemplates(ctx, cat, rest)
	case "show":
		return a.showTemplate(ctx, cat, rest)
	case "create":
		return a.saveTemplate(ctx, cat, "", rest)
	case "update":
		if len(rest) == 0 || strings.HasPrefix(rest[0], "-") {
			return a.usageError("templates update needs a template id")
		}
		return a.saveTemplate(ctx, cat, rest[0], rest[1:])
	case "delete":
		if len(rest) != 1 {
			return a.usageError("templates delete needs a template id")
		}
		if err := cat.Delete(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted template %s\n", rest[0])
		return nil
	case "download":
		return a.downloadTemplate(ctx, rest)
	default:
		return a.usageError(fmt.Sprintf("unknown templates subcommand %q", sub))
	}
}

func (a *app) listTemplates(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet("templates list", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	query := fs.String("q", "", "filter by title, description or category")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	list, err := cat.List(ctx)
	if err != nil {
		return err
	}
	list = catalog.Search(list, *query)
	if len(list) == 0 {
		fmt.Fprintln(a.stdout, "no templates found")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPARAMETERS")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Category.Label(), strings.Join(t.Parameters(), ", "))
	}
	return tw.Flush()
}

func (a *app) showTemplate(ctx context.Context, cat *catalog.Catalog, args []string) error {
	if len(args) != 1 {
		return a.usageError("templates show needs a template id")
	}
	t, err := cat.Get(ctx, args[0])
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\n\nparameters: %s\nplaceholders:\n", raw, strings.Join(t.Parameters(), ", "))
	for _, v := range t.Variables {
		fmt.Fprintf(a.stdout, "  %s (%s): %s\n", v.Name(), v.Kind().Label(), v.Placeholder())
	}
	return nil
}

// saveTemplate creates a template, or updates id when set, from a YAML
// definition replayed through the editor.
func (a *app) saveTemplate(ctx context.Context, cat *catalog.Catalog, id string, args []string) error {
	fs := flag.NewFlagSet("templates create", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	defPath := fs.String("f", "", "template definition (YAML)")
	assetPath := fs.String("asset", "", "template document (.docx or .dotx), overrides the definition")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *defPath == "" {
		return a.usageError("a definition file is required (-f)")
	}
	f, err := os.Open(*defPath)
	if err != nil {
		return err
	}
	def, err := editor.DecodeDefinition(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	draft := editor.NewTemplateDraft()
	if id != "" {
		existing, err := cat.Get(ctx, id)
		if err != nil {
			return err
		}
		draft = editor.EditTemplate(existing)
		if len(def.Variables) > 0 {
			draft.Variables = editor.NewVariableEditor(nil)
		}
	}
	errs := def.Apply(draft)

	asset := *assetPath
	if asset == "" && def.Asset != "" {
		asset = def.Asset
		if !filepath.IsAbs(asset) {
			asset = filepath.Join(filepath.Dir(*defPath), asset)
		}
	}
	if asset != "" {
		data, err := os.ReadFile(asset)
		if err != nil {
			return fmt.Errorf("read template document: %w", err)
		}
		draft.SelectAsset(filepath.Base(asset), data)
	}
	if len(errs) > 0 {
		a.printFieldErrors(errs)
		return errInvalid
	}

	saved, fieldErrs, err := cat.Publish(ctx, draft)
	if err != nil {
		return err
	}
	if len(fieldErrs) > 0 {
		a.printFieldErrors(fieldErrs)
		return errInvalid
	}
	fmt.Fprintf(a.stdout, "saved template %s (%s)\n", saved.ID, saved.Title)
	return nil
}

func (a *app) downloadTemplate(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return a.usageError("templates download needs a template id")
	}
	id := args[0]
	fs := flag.NewFlagSet("templates download", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	out := fs.String("o", ".", "output directory")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}
	svc, err := a.backend(ctx)
	if err != nil {
		return err
	}
	d, err := svc.DownloadTemplateAsset(ctx, id)
	if err != nil {
		return err
	}
	path, err := writeDownload(*out, d.Name, "template.docx", d.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "saved %s\n", path)
	return nil
}

func (a *app) printFieldErrors(errs []contractapi.FieldError) {
	for _, e := range errs {
		fmt.Fprintf(a.stderr, "  %s: %s\n", e.Field, e.Message)
	}
}

// writeDownload stores data in dir under the base of name, or fallback when
// the name is unusable.
func writeDownload(dir, name, fallback string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = fallback
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
