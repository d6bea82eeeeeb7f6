// Package main runs a simulated ring stiffness machine backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
	"github.com/khalid729/grp-stiffness-test-machine/internal/config"
	"github.com/khalid729/grp-stiffness-test-machine/internal/logging"
	"github.com/khalid729/grp-stiffness-test-machine/internal/plcsim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen string

	flagSet := pflag.NewFlagSet("plcsim", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: ./"+config.DefaultFile+" if present)")
	flagSet.StringVar(&listen, "listen", "", "override sim.listen")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Sim.Listen = listen
	}

	// The file sink belongs to the dashboard client.
	logCfg := cfg.Log
	logCfg.Dir = ""
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	m := plcsim.NewMachine(plcsim.MachineOptions{
		Limits: command.Limits{
			MaxForce:  cfg.Limits.MaxForce,
			MaxStroke: cfg.Limits.MaxStroke,
			MinSpeed:  cfg.Limits.MinSpeed,
			MaxSpeed:  cfg.Limits.MaxSpeed,
		},
		Sample:       plcsim.Sample{Stiffness: cfg.Sim.SampleStiffness},
		CompleteHold: cfg.Sim.CompleteHold,
		Logger:       logger.Logger,
	})
	defer m.Close()

	server := plcsim.NewServer(m, plcsim.ServerOptions{
		Interval:   cfg.Timing.PushInterval,
		SocketPath: cfg.Backend.SocketPath,
		Logger:     logger.Logger,
	})

	// No WriteTimeout: websocket connections stay open.
	httpServer := &http.Server{
		Addr:              cfg.Sim.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting simulator", "listen", cfg.Sim.Listen, "socket", cfg.Backend.SocketPath,
			"sample_stiffness", cfg.Sim.SampleStiffness)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("telemetry loop stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down simulator")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.DropClients()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	return nil
}
