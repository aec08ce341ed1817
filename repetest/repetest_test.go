// Copyright (C) 2024 The REPE Authors.

package repetest_test

import (
	"context"
	"testing"

	"github.com/repehq/repe"
	"github.com/repehq/repe/channel"
	"github.com/repehq/repe/repetest"
)

func TestMathServiceOverTCP(t *testing.T) {
	svc := repetest.NewMathService()
	_, c := repetest.Pair(t, svc.Register)

	got, err := c.Call(context.Background(), "/add", map[string]any{"a": 2, "b": 3})
	if err != nil {
		t.Fatalf("Call(/add): %v", err)
	}
	if got.(map[string]any)["result"] != float64(5) {
		t.Fatalf("result = %v, want 5", got)
	}

	_, err = c.Call(context.Background(), "/divide", map[string]any{"numerator": 1, "denominator": 0})
	rpcErr, ok := err.(*repe.RPCError)
	if !ok || rpcErr.Code != repe.InvalidBody {
		t.Fatalf("Call(/divide by zero) err = %v, want *RPCError{Code: InvalidBody}", err)
	}
}

func TestMathServiceOverDirectChannel(t *testing.T) {
	svc := repetest.NewMathService()
	s := repe.NewServer()
	svc.Register(s)

	a, b := channel.Direct()
	go repetest.Loop(s, b)
	defer a.Close()

	req := repe.NewMessage(1, "/multiply", repe.QueryJSONPointer, []byte(`{"x":6,"y":7}`), repe.BodyJSON)
	if err := a.Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp, err := a.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if resp.Header.EC != repe.OK {
		t.Fatalf("EC = %v, want OK", resp.Header.EC)
	}
	v, err := resp.ParseBody(repe.DefaultCodecs())
	if err != nil {
		t.Fatalf("ParseBody: %v", err)
	}
	if v.(map[string]any)["result"] != float64(42) {
		t.Fatalf("result = %v, want 42", v)
	}
}
