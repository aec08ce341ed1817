// Copyright (C) 2024 The REPE Authors.

package observability_test

import (
	"testing"

	"github.com/repehq/repe/config"
	"github.com/repehq/repe/observability"
)

func TestSetupLoggerZeroValueIsNop(t *testing.T) {
	logger, err := observability.SetupLogger(config.LogConfig{})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("SetupLogger returned a nil logger")
	}
	// A Nop logger's Core reports no level as enabled.
	if logger.Core().Enabled(0) {
		t.Fatal("SetupLogger({}) should be a no-op logger")
	}
}

func TestSetupLoggerWithDefaults(t *testing.T) {
	cfg := config.Default().Log
	logger, err := observability.SetupLogger(cfg)
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	defer logger.Sync()
	if !logger.Core().Enabled(0) {
		t.Fatal("SetupLogger(Default().Log) should log at info level")
	}
}
