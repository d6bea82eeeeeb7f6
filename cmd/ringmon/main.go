// Package main implements the ring stiffness dashboard sync client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
	"github.com/khalid729/grp-stiffness-test-machine/internal/config"
	"github.com/khalid729/grp-stiffness-test-machine/internal/dashboard"
	"github.com/khalid729/grp-stiffness-test-machine/internal/logging"
	"github.com/khalid729/grp-stiffness-test-machine/internal/machine"
)

// Version is reported at startup.
const Version = "1.0.0"

var errRejected = errors.New("command rejected")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, backendURL, logLevel, commandName string
	var listCommands bool

	flagSet := pflag.NewFlagSet("ringmon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: ./"+config.DefaultFile+" if present)")
	flagSet.StringVar(&backendURL, "backend-url", "", "override backend.url")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.StringVar(&commandName, "command", "", "send one command and exit (see --list-commands)")
	flagSet.BoolVar(&listCommands, "list-commands", false, "list the commands accepted by --command")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if listCommands {
		for _, name := range command.ActionNames() {
			fmt.Println(name)
		}
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()

	dash, err := dashboard.New(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer dash.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if commandName != "" {
		out, err := dash.Execute(ctx, commandName)
		if err != nil {
			return err
		}
		fmt.Println(out.Message)
		if !out.Success {
			return errRejected
		}
		return nil
	}

	var mu sync.Mutex
	last := machine.PhaseDisconnected
	unsubscribe := dash.OnChange(func(s machine.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Phase == last {
			return
		}
		last = s.Phase
		if s.Phase == machine.PhaseComplete {
			logger.Info("test finished", "points", len(dash.Points()),
				"ring_stiffness", s.RingStiffness, "sn_class", s.SNClass, "passed", s.TestPassed)
		}
	})
	defer unsubscribe()

	logger.Info("starting ringmon", "version", Version, "backend", cfg.Backend.URL)
	if err := dash.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect to backend: %w", err)
	}

	<-ctx.Done()
	st := dash.Stats()
	logger.Info("shutting down", "pending", st.Pending, "test_active", st.TestActive,
		"dedup_threshold", st.DedupThreshold, "stats", fmt.Sprintf("%+v", st))
	return nil
}
