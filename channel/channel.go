// Copyright (C) 2024 The REPE Authors.

// Package channel provides implementations of the repe.Channel interface.
package channel

import (
	"bufio"
	"io"
	"net"

	"github.com/repehq/repe"
)

// Direct constructs a connected pair of in-memory channels that pass
// messages directly without encoding into binary. Messages sent to A are
// received by B and vice versa.
func Direct() (A, B repe.Channel) {
	a2b := make(chan repe.Message)
	b2a := make(chan repe.Message)
	A = direct{send: a2b, recv: b2a}
	B = direct{send: b2a, recv: a2b}
	return
}

type direct struct {
	send chan<- repe.Message
	recv <-chan repe.Message
}

// Send implements a method of the [repe.Channel] interface.
func (d direct) Send(msg repe.Message) (err error) {
	defer safeClose(&err)
	d.send <- msg
	return nil
}

// Recv implements a method of the [repe.Channel] interface.
func (d direct) Recv() (repe.Message, error) {
	msg, ok := <-d.recv
	if !ok {
		return repe.Message{}, net.ErrClosed
	}
	return msg, nil
}

// Close implements a method of the [repe.Channel] interface.
func (d direct) Close() (err error) {
	defer safeClose(&err)
	close(d.send)
	return nil
}

func safeClose(err *error) {
	if x := recover(); x != nil && *err == nil {
		*err = net.ErrClosed
	}
}

// IO constructs a channel that receives from r and sends to wc, framing
// each repe.Message as header + query + body.
func IO(r io.Reader, wc io.WriteCloser) IOChannel {
	return IOChannel{r: bufio.NewReader(r), w: bufio.NewWriter(wc), c: wc}
}

// An IOChannel sends and receives messages on a reader and a writer.
type IOChannel struct {
	r *bufio.Reader
	w *bufio.Writer
	c io.Closer
}

// Send implements a method of the [repe.Channel] interface.
func (c IOChannel) Send(msg repe.Message) error {
	if _, err := c.w.Write(msg.Encode()); err != nil {
		return err
	}
	return c.w.Flush()
}

// Recv implements a method of the [repe.Channel] interface.
func (c IOChannel) Recv() (repe.Message, error) {
	hbuf := make([]byte, repe.HeaderLength)
	if _, err := io.ReadFull(c.r, hbuf); err != nil {
		return repe.Message{}, err
	}
	h, err := repe.DecodeHeader(hbuf)
	if err != nil {
		return repe.Message{}, err
	}
	rest := make([]byte, h.QueryLength+h.BodyLength)
	if _, err := io.ReadFull(c.r, rest); err != nil {
		return repe.Message{}, err
	}
	return repe.Message{Header: h, Query: rest[:h.QueryLength], Body: rest[h.QueryLength:]}, nil
}

// Close implements a method of the [repe.Channel] interface.
func (c IOChannel) Close() error { return c.c.Close() }
