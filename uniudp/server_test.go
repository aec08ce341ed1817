// Copyright (C) 2024 The REPE Authors.

package uniudp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/repehq/repe"
	"github.com/repehq/repe/uniudp"
)

func TestClientServerRequestInvokesCallback(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket(server): %v", err)
	}
	defer serverConn.Close()
	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket(client): %v", err)
	}
	defer clientConn.Close()

	s := uniudp.NewServer(serverConn).SetTimeouts(200*time.Millisecond, 3*time.Second)

	type response struct {
		method string
		result any
	}
	got := make(chan response, 1)
	s.ResponseCallback = func(method string, result any, _ repe.Message) {
		got <- response{method, result}
	}
	s.Handle("/ping", func(_ context.Context, body any, _ repe.Message) (any, error) {
		return map[string]any{"echo": body}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	client := uniudp.NewClient(clientConn, serverConn.LocalAddr(), uniudp.ClientOptions{
		Redundancy: 1, ChunkSize: 512, FECGroupSize: 1,
	})
	codecs := repe.DefaultCodecs()
	body, err := codecs.Encode("hi", repe.BodyJSON)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := client.SendRequest("/ping", repe.QueryJSONPointer, body, repe.BodyJSON); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	select {
	case r := <-got:
		if r.method != "/ping" {
			t.Fatalf("callback method = %q, want /ping", r.method)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for response callback")
	}
}

func TestClientServerNotifySkipsCallback(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket(server): %v", err)
	}
	defer serverConn.Close()
	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket(client): %v", err)
	}
	defer clientConn.Close()

	s := uniudp.NewServer(serverConn).SetTimeouts(200*time.Millisecond, 2*time.Second)
	called := make(chan struct{}, 1)
	s.ResponseCallback = func(string, any, repe.Message) { called <- struct{}{} }

	handled := make(chan struct{}, 1)
	s.Handle("/note", func(context.Context, any, repe.Message) (any, error) {
		handled <- struct{}{}
		return "ignored", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	client := uniudp.NewClient(clientConn, serverConn.LocalAddr(), uniudp.ClientOptions{
		Redundancy: 1, ChunkSize: 512, FECGroupSize: 1,
	})
	if _, err := client.SendNotify("/note", repe.QueryJSONPointer, nil, repe.BodyUTF8); err != nil {
		t.Fatalf("SendNotify: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for handler to run")
	}
	select {
	case <-called:
		t.Fatal("response callback must not run for a notification")
	case <-time.After(200 * time.Millisecond):
	}
}
