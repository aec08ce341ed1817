// Copyright (C) 2024 The REPE Authors.

package repe

import (
	"context"
	"testing"
	"time"
)

func TestClientTimeoutDropsLateResponse(t *testing.T) {
	release := make(chan struct{})
	s := startTestServer(t, func(s *Server) {
		s.Handle("/slow", func(_ context.Context, _ any, _ Message) (any, error) {
			<-release
			return "done", nil
		})
	})
	c := dialTestClient(t, s)

	_, err := c.Call(context.Background(), "/slow", nil, WithTimeout(30*time.Millisecond))
	if err == nil {
		t.Fatal("Call: got nil error, want TimeoutError")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("err = %#v (%T), want *TimeoutError", err, err)
	}

	c.requestsMu.Lock()
	n := len(c.pending)
	c.requestsMu.Unlock()
	if n != 0 {
		t.Fatalf("pending map has %d entries after timeout, want 0", n)
	}

	close(release) // let the handler's late response arrive and be silently discarded
	time.Sleep(50 * time.Millisecond)
}

func TestClientDecodeInto(t *testing.T) {
	type addResult struct {
		Result float64 `json:"result"`
	}
	s := startTestServer(t, func(s *Server) {
		s.Handle("/add", func(_ context.Context, body any, _ Message) (any, error) {
			m := body.(map[string]any)
			return map[string]any{"result": m["a"].(float64) + m["b"].(float64)}, nil
		})
	})
	c := dialTestClient(t, s)

	got, err := c.Call(context.Background(), "/add", map[string]any{"a": 5, "b": 3}, DecodeInto(&addResult{}))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	res, ok := got.(*addResult)
	if !ok {
		t.Fatalf("got %#v (%T), want *addResult", got, got)
	}
	if res.Result != 8 {
		t.Fatalf("Result = %v, want 8", res.Result)
	}
}

func TestClientRequestIDsMonotonic(t *testing.T) {
	s := startTestServer(t, func(s *Server) {
		s.Handle("/x", func(_ context.Context, _ any, raw Message) (any, error) {
			return raw.Header.ID, nil
		})
	})
	c := dialTestClient(t, s)

	seen := map[uint64]bool{}
	var last uint64
	for i := 0; i < 5; i++ {
		got, err := c.Call(context.Background(), "/x", nil)
		if err != nil {
			t.Fatalf("Call #%d: %v", i, err)
		}
		id := uint64(got.(float64))
		if id <= last {
			t.Fatalf("id %d is not strictly greater than previous %d", id, last)
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
		last = id
	}
}

func TestClientBatch(t *testing.T) {
	s := startTestServer(t, func(s *Server) {
		s.Handle("/echo", func(_ context.Context, body any, _ Message) (any, error) {
			return body, nil
		})
	})
	c := dialTestClient(t, s)

	calls := []BatchCall{
		{Method: "/echo", Params: map[string]any{"n": 1}},
		{Method: "/echo", Params: map[string]any{"n": 2}},
		{Method: "/echo", Params: map[string]any{"n": 3}},
	}
	results := c.Batch(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("result[%d].Err = %v", i, r.Err)
		}
		m := r.Value.(map[string]any)
		if m["n"] != float64(i+1) {
			t.Fatalf("result[%d].Value = %v, want n=%d", i, m, i+1)
		}
	}
}
