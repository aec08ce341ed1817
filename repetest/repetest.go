// Copyright (C) 2024 The REPE Authors.

// Package repetest provides test harnesses for pairing a repe.Server and
// repe.Client without hand-rolling the connect/listen boilerplate in every
// test, plus a small demonstration service.
package repetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/repehq/repe"
)

// Pair starts a Server listening on the loopback interface, connects a
// Client to it, and registers cleanup for both. configure is called on the
// Server before it starts, so handlers and middleware can be installed.
func Pair(t testing.TB, configure func(*repe.Server)) (*repe.Server, *repe.Client) {
	t.Helper()
	s := repe.NewServer()
	if configure != nil {
		configure(s)
	}
	if err := s.Start("127.0.0.1", "0"); err != nil {
		t.Fatalf("repetest: Start: %v", err)
	}
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})

	addr := s.Addr().String()
	i := strings.LastIndex(addr, ":")
	c := repe.NewClient("127.0.0.1", addr[i+1:])
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("repetest: Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return s, c
}

// Loop wires a Server to a Channel-based peer entirely in-process: a
// background goroutine repeatedly receives a Message from ch, dispatches it
// through the server exactly as a TCP connection task would, and sends the
// response back, skipping the reply for notifications. It returns once ch
// is closed. Use the peer end of the same Channel pair (see package
// channel's Direct) to drive the server without opening a socket.
func Loop(s *repe.Server, ch repe.Channel) {
	for {
		req, err := ch.Recv()
		if err != nil {
			return
		}
		resp := s.HandleMessage(context.Background(), req)
		if req.Header.Notify {
			continue
		}
		if err := ch.Send(resp); err != nil {
			return
		}
	}
}
