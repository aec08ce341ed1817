// Copyright (C) 2024 The REPE Authors.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/creachadair/command"

	"github.com/repehq/repe"
	"github.com/repehq/repe/config"
	"github.com/repehq/repe/observability"
	"github.com/repehq/repe/registry"
	"github.com/repehq/repe/repetest"
)

func serveCommand() *command.C {
	var configPath string
	return &command.C{
		Name:  "serve",
		Usage: "[--config path]",
		Help: `Start a REPE server hosting the demonstration math service.

The server exposes /add, /multiply, /divide, /echo, and /status, plus the
registry read/write/call surface under /registry. Configuration is loaded
via config.Load and may be overridden with REPE_-prefixed environment
variables.`,
		SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&configPath, "config", "", "path to a repe.yaml config file")
		},
		Run: func(env *command.Env) error {
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	s := repe.NewServer()
	s.Log = func(format string, args ...any) { sugar.Infof(format, args...) }

	repetest.NewMathService().Register(s)

	reg := registry.New()
	if err := reg.Register("/service", map[string]any{
		"name":    cfg.AppName,
		"methods": []string{"/add", "/multiply", "/divide", "/echo", "/status"},
	}); err != nil {
		return fmt.Errorf("register registry entries: %w", err)
	}
	reg.Serve(s, "/registry")

	if err := s.Start(cfg.Server.Host, cfg.Server.Port); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	sugar.Infow("repe server listening", "addr", s.Addr().String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	sugar.Info("shutting down")
	s.Stop()
	return s.Wait()
}
