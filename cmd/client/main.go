// Package main is the interactive Aura Hub client.
//
// It keeps a local view of one user's challenges in sync with the API
// server and exposes it as a shell:
//
//	client -user <uuid> -name Alice
//	client -user <uuid> status          # run one command and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ishell "github.com/abiosoft/ishell"

	"github.com/aura-hub/aura-hub/config"
	"github.com/aura-hub/aura-hub/internal/application/reconcile"
	"github.com/aura-hub/aura-hub/internal/bootstrap"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/infrastructure/external/recordstore"
	"github.com/aura-hub/aura-hub/internal/interface/cli"
	"github.com/aura-hub/aura-hub/pkg/logger"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

const defaultServerURL = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	serverURL := cfg.Remote.BaseURL
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	userFlag := fs.String("user", os.Getenv("AURA_USER_ID"), "user id (uuid)")
	name := fs.String("name", "", "display name, sent to the server on start")
	fs.StringVar(&serverURL, "server", serverURL, "API server base URL")
	verbose := fs.Bool("v", false, "log requests and sync activity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID, err := shared.NewUserID(*userFlag)
	if err != nil {
		return fmt.Errorf("-user: %w", err)
	}

	level := logger.LevelWarn
	if *verbose {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  level,
		Format: logger.FormatText,
	}).Slog()

	clientCfg := recordstore.DefaultClientConfig(serverURL)
	clientCfg.Timeout = cfg.Remote.Timeout
	clientCfg.MaxAttempts = cfg.Remote.MaxAttempts
	clientCfg.RequestsPerSecond = cfg.Remote.RequestsPerSecond
	clientCfg.Burst = cfg.Remote.Burst
	clientCfg.Logger = log
	store := recordstore.NewClient(clientCfg)

	if *name != "" {
		if _, err := store.UpsertUser(ctx, userID, strings.TrimSpace(*name)); err != nil {
			return fmt.Errorf("register user: %w", err)
		}
	}

	clock := timeutil.NewSystemClock(cfg.App.Location)
	rec := reconcile.New(store, userID, reconcile.Options{Logger: log, Clock: clock})
	if err := rec.SyncFromServer(ctx); err != nil {
		// The shell still works on an empty view; sync can be retried.
		fmt.Fprintf(os.Stderr, "initial sync failed: %v\n", err)
	}

	session := cli.NewSession(rec, clock, bootstrap.Rewards(cfg), os.Stdout)
	shell := newShell(ctx, session)

	if rest := fs.Args(); len(rest) > 0 {
		return shell.Process(rest...)
	}

	shell.Printf("Aura Hub, signed in as %s. Type 'help' for commands.\n", userID.Short())
	shell.Run()
	shell.Close()
	rec.Wait()
	return nil
}

func newShell(ctx context.Context, session *cli.Session) *ishell.Shell {
	shell := ishell.New()
	shell.SetPrompt("aura> ")

	for _, cmd := range session.Commands() {
		help := cmd.Help
		if cmd.Usage != "" {
			help = fmt.Sprintf("%s (%s)", cmd.Help, cmd.Usage)
		}
		name := cmd.Name
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: help,
			Func: func(c *ishell.Context) {
				if err := session.Run(ctx, name, c.Args); err != nil {
					c.Err(err)
				}
			},
		})
	}
	return shell
}
