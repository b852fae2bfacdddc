// Command contractgen manages contract templates and generates contracts,
// either against the HTTP API or against the embedded local engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"contractgen/internal/backend"
	"contractgen/internal/blob"
	"contractgen/internal/client"
	"contractgen/internal/config"
	"contractgen/internal/localbackend"
	"contractgen/internal/metrics"
	"contractgen/internal/platform/logger"
	"contractgen/internal/prompt"
	"contractgen/internal/session"
)

var (
	exitFunc  = os.Exit
	newDriver = func() prompt.Driver { return prompt.NewSurvey() }
)

// errUsage reports a command line mistake; usage has already been printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	exitFunc(code)
}

const usageText = `usage: contractgen [-config file] [-local] <command> [arguments]

commands:
  serve                          serve the HTTP API over the local engine
  templates list [-q text]       list templates
  templates show <id>            print a template
  templates create -f def.yaml   create a template from a definition
  templates update <id> -f def.yaml
  templates delete <id>          delete a template
  templates download <id>        download the template document
  generate [<template id>]       collect parameters, preview and generate
  history <template id>          list earlier versions for parameter values
  contracts [-template id]       list active contracts
  whoami                         show the configured session
`

// app holds what every command needs.
type app struct {
	cfg     config.Config
	local   bool
	stdout  io.Writer
	stderr  io.Writer
	log     *logger.Logger
	reg     *prometheus.Registry
	metrics metrics.Recorder
	driver  prompt.Driver

	svc     backend.Service
	closers []func() error
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("contractgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	configPath := fs.String("config", getenv(config.EnvPrefix+"CONFIG"), "path to a YAML config file")
	local := fs.Bool("local", false, "use the local engine instead of the HTTP API")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "contractgen: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(stderr, "contractgen: %v\n", err)
		return 1
	}
	defer log.Sync()
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheus(reg)
	if err != nil {
		fmt.Fprintf(stderr, "contractgen: %v\n", err)
		return 1
	}

	a := &app{
		cfg:     cfg,
		local:   *local,
		stdout:  stdout,
		stderr:  stderr,
		log:     log,
		reg:     reg,
		metrics: rec,
		driver:  newDriver(),
	}
	defer a.close()

	var runErr error
	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "serve":
		runErr = a.serve(ctx, cmdArgs)
	case "templates":
		runErr = a.templates(ctx, cmdArgs)
	case "generate":
		runErr = a.generate(ctx, cmdArgs)
	case "history":
		runErr = a.history(ctx, cmdArgs)
	case "contracts":
		runErr = a.contracts(ctx, cmdArgs)
	case "whoami":
		runErr = a.whoami()
	default:
		fmt.Fprintf(stderr, "contractgen: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, errUsage):
		return 2
	case errors.Is(runErr, prompt.ErrAborted):
		fmt.Fprintln(stderr, "aborted")
		return 130
	default:
		fmt.Fprintf(stderr, "contractgen: %v\n", runErr)
		return 1
	}
}

// backend returns the HTTP client, or the local engine when -local is set.
func (a *app) backend(ctx context.Context) (backend.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if !a.local {
		a.svc = client.New(a.cfg.API.URL,
			client.WithTimeout(a.cfg.API.Timeout),
			client.WithSession(session.NewStore(a.session())),
			client.WithLogger(a.log),
			client.WithMetrics(a.metrics),
		)
		return a.svc, nil
	}
	eng, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}
	a.svc = eng
	return a.svc, nil
}

func (a *app) engine(ctx context.Context) (*localbackend.Engine, error) {
	st, err := localbackend.OpenStore(ctx, a.cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, st.Close)
	blobs, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	resolver, err := localbackend.LoadFixtures(a.cfg.Fixtures)
	if err != nil {
		return nil, err
	}
	a.log.Debug("local engine ready", "storage", st.Driver(), "blob", blobs.Driver())
	return localbackend.New(st, blobs, resolver,
		localbackend.WithLogger(a.log),
		localbackend.WithMetrics(a.metrics),
	), nil
}

func (a *app) session() session.Session {
	return session.Session{Token: a.cfg.API.Token, Username: a.cfg.API.Username}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

// usageError prints msg and the usage text.
func (a *app) usageError(msg string) error {
	fmt.Fprintf(a.stderr, "contractgen: %s\n", msg)
	fmt.Fprint(a.stderr, usageText)
	return errUsage
}
