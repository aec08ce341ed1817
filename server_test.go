// Copyright (C) 2024 The REPE Authors.

package repe

import (
	"context"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, configure func(*Server)) *Server {
	t.Helper()
	s := NewServer()
	configure(s)
	if err := s.Start("127.0.0.1", "0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})
	return s
}

func dialTestClient(t *testing.T, s *Server) *Client {
	t.Helper()
	_, port, err := splitAddr(s.Addr().String())
	if err != nil {
		t.Fatalf("splitAddr: %v", err)
	}
	c := NewClient("127.0.0.1", port)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func splitAddr(addr string) (host, port string, err error) {
	i := strings.LastIndex(addr, ":")
	return addr[:i], addr[i+1:], nil
}

func TestServerAddAndEcho(t *testing.T) {
	s := startTestServer(t, func(s *Server) {
		s.Handle("/add", func(_ context.Context, body any, _ Message) (any, error) {
			m, _ := body.(map[string]any)
			return map[string]any{"result": m["a"].(float64) + m["b"].(float64)}, nil
		})
	})
	c := dialTestClient(t, s)

	got, err := c.Call(context.Background(), "/add", map[string]any{"a": 5, "b": 3})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	m := got.(map[string]any)
	if m["result"] != float64(8) {
		t.Fatalf("result = %v, want 8", m["result"])
	}
}

func TestServerMethodNotFound(t *testing.T) {
	s := startTestServer(t, func(s *Server) {
		s.Handle("/a", func(_ context.Context, _ any, _ Message) (any, error) { return "ok", nil })
	})
	c := dialTestClient(t, s)

	_, err := c.Call(context.Background(), "/b", nil)
	if err == nil {
		t.Fatal("Call(/b): got nil error, want MethodNotFound")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("err = %#v (%T), want *RPCError", err, err)
	}
	if rpcErr.Code != MethodNotFound {
		t.Fatalf("Code = %v, want MethodNotFound", rpcErr.Code)
	}
	if !strings.Contains(rpcErr.Error(), "Method not found") {
		t.Fatalf("Error() = %q, want it to contain %q", rpcErr.Error(), "Method not found")
	}
}

func TestServerNotifySkipsResponse(t *testing.T) {
	received := make(chan struct{}, 1)
	s := startTestServer(t, func(s *Server) {
		s.Handle("/log", func(_ context.Context, _ any, _ Message) (any, error) {
			received <- struct{}{}
			return "ignored", nil
		})
	})
	c := dialTestClient(t, s)

	if err := c.Notify("/log", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked for notify")
	}
}

func TestServerMiddlewareShortCircuit(t *testing.T) {
	s := startTestServer(t, func(s *Server) {
		s.Use(func(m Message) MiddlewareVerdict {
			if m.ParseQuery() == "/blocked" {
				return ShortError(InvalidQuery)
			}
			return Continue()
		})
		s.Handle("/blocked", func(_ context.Context, _ any, _ Message) (any, error) { return "nope", nil })
	})
	c := dialTestClient(t, s)

	_, err := c.Call(context.Background(), "/blocked", nil)
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Code != InvalidQuery {
		t.Fatalf("err = %v, want *RPCError{Code: InvalidQuery}", err)
	}
}

func TestServerHandlerPanicBecomesParseError(t *testing.T) {
	s := startTestServer(t, func(s *Server) {
		s.Handle("/boom", func(_ context.Context, _ any, _ Message) (any, error) {
			panic("kaboom")
		})
	})
	c := dialTestClient(t, s)

	_, err := c.Call(context.Background(), "/boom", nil)
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Code != ParseError {
		t.Fatalf("err = %v, want *RPCError{Code: ParseError}", err)
	}
}
