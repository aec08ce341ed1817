// Copyright (C) 2024 The REPE Authors.

package channel_test

import (
	"net"
	"testing"

	"github.com/creachadair/taskgroup"
	"github.com/repehq/repe"
	"github.com/repehq/repe/channel"
)

func TestDirect(t *testing.T) {
	c, s := channel.Direct()

	msg := repe.NewMessage(1, "/x", repe.QueryJSONPointer, []byte("hi"), repe.BodyUTF8)

	g := taskgroup.New(nil)
	g.Go(func() error {
		if err := c.Send(msg); err != nil {
			t.Errorf("A Send: %v", err)
		}
		got, err := c.Recv()
		if err != nil {
			t.Errorf("A Recv: %v", err)
		}
		if got.Header.ID != msg.Header.ID {
			t.Errorf("Message: got %v, want %v", got, msg)
		}
		return nil
	})
	g.Go(func() error {
		got, err := s.Recv()
		if err != nil {
			t.Errorf("B Recv: %v", err)
		}
		if err := s.Send(got); err != nil {
			t.Errorf("B Send: %v", err)
		}
		return nil
	})
	g.Wait()

	if err := c.Close(); err != nil {
		t.Errorf("c.Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("s.Close: %v", err)
	}

	if err := c.Send(repe.Message{}); err == nil {
		t.Error("c.Send after close did not report an error")
	}
	if err := s.Send(repe.Message{}); err == nil {
		t.Error("s.Send after close did not report an error")
	}
	if _, err := c.Recv(); err == nil {
		t.Error("c.Recv after close did not report an error")
	}
	if _, err := s.Recv(); err == nil {
		t.Error("s.Recv after close did not report an error")
	}
}

func TestIO(t *testing.T) {
	ar, bw := net.Pipe()
	br, aw := net.Pipe()
	a := channel.IO(ar, aw)
	b := channel.IO(br, bw)

	msg := repe.NewMessage(9, "/ping", repe.QueryJSONPointer, []byte(`{"n":1}`), repe.BodyJSON)

	g := taskgroup.New(nil)
	g.Go(func() error { return a.Send(msg) })

	got, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Header.ID != msg.Header.ID || string(got.Query) != string(msg.Query) || string(got.Body) != string(msg.Body) {
		t.Fatalf("Recv = %+v, want %+v", got, msg)
	}
	g.Wait()

	a.Close()
	b.Close()
}
