// Copyright (C) 2024 The REPE Authors.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/creachadair/mds/mtest"

	"github.com/repehq/repe/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if cfg.UniUDP.Redundancy < 1 {
		t.Fatalf("Default().UniUDP.Redundancy = %d, want >= 1", cfg.UniUDP.Redundancy)
	}
	if cfg.Server.Port == "" {
		t.Fatal("Default().Server.Port is empty")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repe.yaml")
	yaml := "log:\n  level: debug\nserver:\n  port: \"9090\"\nuniudp:\n  redundancy: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.UniUDP.Redundancy != 3 {
		t.Fatalf("UniUDP.Redundancy = %d, want 3", cfg.UniUDP.Redundancy)
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repe.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: chatty\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load: want error for invalid log.level")
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("Load(missing file) = %+v, want an error (explicit path must exist)", cfg)
	}
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repe.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: chatty\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mtest.MustPanic(t, func() { config.MustLoad(path) })
}
