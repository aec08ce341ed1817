// Copyright (C) 2024 The REPE Authors.

package fleet_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/repehq/repe"
	"github.com/repehq/repe/fleet"
	"github.com/repehq/repe/repetest"
)

func startNode(t *testing.T, tags ...string) (fleet.NodeConfig, *repe.Server) {
	t.Helper()
	svc := repetest.NewMathService()
	s := repe.NewServer()
	svc.Register(s)
	if err := s.Start("127.0.0.1", "0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})
	addr := s.Addr().String()
	i := strings.LastIndex(addr, ":")
	return fleet.NodeConfig{Name: addr, Host: "127.0.0.1", Port: addr[i+1:], Tags: tags}, s
}

func TestFleetRejectsDuplicateNames(t *testing.T) {
	_, err := fleet.New(time.Second, fleet.DefaultRetryPolicy(),
		fleet.NodeConfig{Name: "a", Host: "x", Port: "1"},
		fleet.NodeConfig{Name: "a", Host: "y", Port: "2"},
	)
	if err == nil {
		t.Fatal("New: want error for duplicate node name")
	}
}

func TestFleetCallAndBroadcast(t *testing.T) {
	cfgA, _ := startNode(t, "east")
	cfgA.Name = "a"
	cfgB, _ := startNode(t, "west")
	cfgB.Name = "b"

	f, err := fleet.New(2*time.Second, fleet.RetryPolicy{MaxAttempts: 1}, cfgA, cfgB)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { f.DisconnectAll() })
	ctx := context.Background()

	res := f.ConnectAll(ctx)
	if len(res.Failed) != 0 {
		t.Fatalf("ConnectAll failed: %v", res.Failed)
	}

	r := f.Call(ctx, "a", "/add", map[string]any{"a": 1, "b": 2})
	if r.Err != nil {
		t.Fatalf("Call: %v", r.Err)
	}
	if r.Value.(map[string]any)["result"] != float64(3) {
		t.Fatalf("Call result = %v", r.Value)
	}

	broadcast := f.Broadcast(ctx, "/echo", map[string]any{"message": "hi"}, nil)
	if len(broadcast) != 2 {
		t.Fatalf("Broadcast returned %d results, want 2", len(broadcast))
	}
	for name, res := range broadcast {
		if res.Err != nil {
			t.Fatalf("Broadcast[%s]: %v", name, res.Err)
		}
	}

	eastOnly := f.Broadcast(ctx, "/echo", map[string]any{"message": "hi"}, []string{"east"})
	if len(eastOnly) != 1 {
		t.Fatalf("Broadcast(tags=east) returned %d results, want 1", len(eastOnly))
	}
	if _, ok := eastOnly["a"]; !ok {
		t.Fatalf("Broadcast(tags=east) = %v, want node a", eastOnly)
	}
}

func TestFleetCallUnknownNode(t *testing.T) {
	f, err := fleet.New(time.Second, fleet.DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := f.Call(context.Background(), "missing", "/add", nil)
	if r.Err == nil {
		t.Fatal("Call(missing node): want error")
	}
}

func TestFleetHealthCheck(t *testing.T) {
	cfg, _ := startNode(t)
	cfg.Name = "only"
	f, err := fleet.New(time.Second, fleet.DefaultRetryPolicy(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { f.DisconnectAll() })
	ctx := context.Background()
	if res := f.ConnectAll(ctx); len(res.Failed) != 0 {
		t.Fatalf("ConnectAll failed: %v", res.Failed)
	}
	health := f.HealthCheck(ctx)
	if !health["only"].Healthy {
		t.Fatalf("HealthCheck = %+v, want healthy", health["only"])
	}
}
