package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"

	"contractgen/internal/contracts"
	"contractgen/internal/server"
)

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if strings.EqualFold(a.cfg.Log.Mode, "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	eng, err := a.engine(ctx)
	if err != nil {
		return err
	}
	opts := []server.Option{
		server.WithLogger(a.log),
		server.WithGatherer(a.reg),
		server.WithAuthenticator(server.NewAuthenticator(a.cfg.Server.AuthSecret)),
	}
	if len(a.cfg.Server.Origins) > 0 {
		opts = append(opts, server.WithOrigins(a.cfg.Server.Origins...))
	}
	return server.New(eng, opts...).Run(ctx, *addr)
}

func (a *app) contracts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("contracts", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	templateID := fs.String("template", "", "only contracts of this template")
	query := fs.String("q", "", "filter by identifiers or template title")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	svc, err := a.backend(ctx)
	if err != nil {
		return err
	}
	entries, err := contracts.NewLister(svc, contracts.WithLogger(a.log)).List(ctx, *templateID)
	if err != nil {
		return err
	}
	entries = contracts.Search(entries, *query)
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "no active contracts")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEMPLATE\tCATEGORY\tPRIMARY\tSECONDARY\tVERSION\tGENERATED")
	for _, e := range entries {
		inst := e.Instance
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.TemplateTitle, e.Category, dash(inst.Identifiers.Primary), dash(inst.Identifiers.Secondary),
			inst.Version, inst.GeneratedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *app) whoami() error {
	s := a.session()
	if !s.Authenticated() {
		fmt.Fprintln(a.stdout, "not signed in")
		return nil
	}
	name := s.DisplayName()
	if name == "" {
		name = "(unknown user)"
	}
	fmt.Fprintf(a.stdout, "user: %s\n", name)
	if c, err := s.Claims(); err == nil && !c.ExpiresAt.IsZero() {
		state := "valid"
		if s.Expired(time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(a.stdout, "token expires: %s (%s)\n", c.ExpiresAt.Local().Format(time.DateTime), state)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
