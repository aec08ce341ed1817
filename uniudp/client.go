// Copyright (C) 2024 The REPE Authors.

package uniudp

import (
	"net"
	"time"

	"github.com/repehq/repe"
)

// ClientOptions configures a Client's chunking behavior. It shares its
// shape with SendOptions but omits MessageID, which the client always
// generates itself.
type ClientOptions struct {
	Redundancy   uint16
	ChunkSize    uint16
	FECGroupSize uint16
	Delay        time.Duration
	Warn         func(string)
}

// DefaultClientOptions returns conservative defaults: no redundancy beyond
// a single transmission, an MTU-safe chunk size, and FEC disabled.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Redundancy:   1,
		ChunkSize:    1024,
		FECGroupSize: 1,
	}
}

// Client sends REPE messages as chunked, one-way UniUDP datagrams to a
// single fixed destination.
type Client struct {
	conn net.PacketConn
	dest net.Addr
	opts ClientOptions
}

// NewClient wraps conn to send to dest using opts.
func NewClient(conn net.PacketConn, dest net.Addr, opts ClientOptions) *Client {
	return &Client{conn: conn, dest: dest, opts: opts}
}

// send assigns one id shared by both the REPE message header and the
// UniUDP transport-level message, so a receiver's reassembled message id
// doubles as the RPC id without an extra correlation step.
func (c *Client) send(query string, queryFormat repe.QueryFormat, body []byte, bodyFormat repe.BodyFormat, opts ...repe.MessageOption) (uint64, error) {
	id := nextMessageID()
	msg := repe.NewMessage(id, query, queryFormat, body, bodyFormat, opts...)
	sendOpts := SendOptions{
		Redundancy:   c.opts.Redundancy,
		ChunkSize:    c.opts.ChunkSize,
		FECGroupSize: c.opts.FECGroupSize,
		Delay:        c.opts.Delay,
		Warn:         c.opts.Warn,
		MessageID:    &id,
	}
	if _, err := SendMessage(c.conn, c.dest, msg.Encode(), sendOpts); err != nil {
		return 0, err
	}
	return id, nil
}

// SendNotify encodes a notification and sends it, returning the REPE
// message id used both for the message and as the UniUDP transport id.
func (c *Client) SendNotify(query string, queryFormat repe.QueryFormat, body []byte, bodyFormat repe.BodyFormat) (uint64, error) {
	return c.send(query, queryFormat, body, bodyFormat, repe.WithNotify())
}

// SendRequest encodes a request (notify flag clear) and sends it, returning
// the REPE message id used both for the message and as the UniUDP
// transport id.
func (c *Client) SendRequest(query string, queryFormat repe.QueryFormat, body []byte, bodyFormat repe.BodyFormat) (uint64, error) {
	return c.send(query, queryFormat, body, bodyFormat)
}
