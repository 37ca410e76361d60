// Package main provides the veloclimat command line: one-off runs, run
// history and operator tokens.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/app"
	"github.com/veloclimat/veloclimat/internal/auth"
	"github.com/veloclimat/veloclimat/internal/config"
	"github.com/veloclimat/veloclimat/internal/ledger"
)

// Version is set at compile time via ldflags.
var Version = "dev"

const usage = `usage: veloclimat <command> [flags]

commands:
  run      run the interpolation once and print the summary
  history  list the most recent runs
  token    issue an operator token
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:], os.Stdout)
	case "history":
		err = historyCmd(ctx, os.Args[2:], os.Stdout)
	case "token":
		err = tokenCmd(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Str("version", Version).
		Logger(), nil
}

func runCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "veloclimat.yaml", "path to the configuration file")
	logLevel := fs.String("log-level", "info", "log level")
	trigger := fs.String("trigger", "cli", "trigger recorded with the run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := newLogger(*logLevel)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result, runErr := a.Runner.Run(ctx, *trigger)
	if result != nil {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	}
	return runErr
}

func historyCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "veloclimat.yaml", "path to the configuration file")
	limit := fs.Int("limit", 20, "number of runs to list")
	id := fs.String("id", "", "show a single run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.Retain)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	if *id != "" {
		run, err := l.Get(ctx, *id)
		if err != nil {
			return err
		}
		return writeJSON(out, run)
	}

	runs, err := l.List(ctx, *limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-9s  %s  %8s  %s",
			run.StartedAt.Format(time.RFC3339), run.Status, run.ID,
			run.Duration.Round(time.Millisecond), run.Trigger)
		if run.Error != "" {
			line += "  " + run.Error
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func tokenCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "veloclimat.yaml", "path to the configuration file")
	operator := fs.String("operator", "", "operator the token is issued to")
	scopes := fs.String("scopes", auth.ScopeRunsRead, "comma separated scopes")
	ttl := fs.Duration("ttl", auth.DefaultTokenExpiry, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return err
	}

	token, expiresAt, err := tokens.Issue(*operator, splitScopes(*scopes), *ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
	return err
}

func splitScopes(s string) []string {
	var scopes []string
	for _, scope := range strings.Split(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
