// Copyright (C) 2024 The REPE Authors.

package uniudp

import (
	"net"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/repehq/repe"
)

// FleetNodeConfig describes one UniUDP fan-out destination.
type FleetNodeConfig struct {
	Name string
	Addr net.Addr
	Tags []string
}

type fleetNode struct {
	name string
	addr net.Addr
	tags map[string]bool
}

func (n *fleetNode) hasTags(tags []string) bool {
	for _, t := range tags {
		if !n.tags[t] {
			return false
		}
	}
	return true
}

// SendResult reports the outcome of one node's send within a Fleet
// broadcast. A successful result means the send syscall returned, not that
// the datagram was delivered or reassembled.
type SendResult struct {
	Node      string
	MessageID uint64
	Err       error
	Elapsed   time.Duration
}

// Fleet fans a single UniUDP send out to every configured node (optionally
// filtered by tag) in parallel over one shared socket.
type Fleet struct {
	conn  net.PacketConn
	opts  ClientOptions
	nodes []*fleetNode
}

// NewFleet builds a Fleet sending over conn to the given nodes using opts.
func NewFleet(conn net.PacketConn, opts ClientOptions, configs ...FleetNodeConfig) *Fleet {
	nodes := make([]*fleetNode, 0, len(configs))
	for _, c := range configs {
		tags := make(map[string]bool, len(c.Tags))
		for _, t := range c.Tags {
			tags[t] = true
		}
		nodes = append(nodes, &fleetNode{name: c.Name, addr: c.Addr, tags: tags})
	}
	return &Fleet{conn: conn, opts: opts, nodes: nodes}
}

// SendRequest sends query/body as a request to every node matching tags in
// parallel, returning one SendResult per matching node.
func (f *Fleet) SendRequest(query string, queryFormat repe.QueryFormat, body []byte, bodyFormat repe.BodyFormat, tags []string) []SendResult {
	return f.broadcast(tags, func(c *Client) (uint64, error) {
		return c.SendRequest(query, queryFormat, body, bodyFormat)
	})
}

// SendNotify sends query/body as a notification to every node matching
// tags in parallel, returning one SendResult per matching node.
func (f *Fleet) SendNotify(query string, queryFormat repe.QueryFormat, body []byte, bodyFormat repe.BodyFormat, tags []string) []SendResult {
	return f.broadcast(tags, func(c *Client) (uint64, error) {
		return c.SendNotify(query, queryFormat, body, bodyFormat)
	})
}

func (f *Fleet) broadcast(tags []string, send func(*Client) (uint64, error)) []SendResult {
	var mu sync.Mutex
	var results []SendResult

	g := taskgroup.New(nil)
	for _, n := range f.nodes {
		if !n.hasTags(tags) {
			continue
		}
		n := n
		g.Go(func() error {
			start := time.Now()
			c := NewClient(f.conn, n.addr, f.opts)
			id, err := send(c)
			mu.Lock()
			results = append(results, SendResult{Node: n.name, MessageID: id, Err: err, Elapsed: time.Since(start)})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}
