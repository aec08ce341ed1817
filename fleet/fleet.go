// Copyright (C) 2024 The REPE Authors.

// Package fleet manages a named collection of repe.Client connections and
// fans calls out across them, the way a supervisor process manages a pool
// of RPC peers: connect/disconnect the set as a unit, call one node with
// retry, or broadcast to every node matching a tag filter.
package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/repehq/repe"
)

// RetryPolicy governs Fleet.Call's retry behavior.
type RetryPolicy struct {
	MaxAttempts int           // must be >= 1
	Delay       time.Duration // sleep between attempts
}

// DefaultRetryPolicy retries a call up to 3 times with a 100ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 100 * time.Millisecond}
}

// NodeConfig describes one fleet member.
type NodeConfig struct {
	Name    string
	Host    string
	Port    string
	Tags    []string
	Timeout time.Duration // 0 means use the fleet's default
}

type node struct {
	name    string
	tags    map[string]bool
	timeout time.Duration
	client  *repe.Client
}

func (n *node) hasTags(tags []string) bool {
	for _, t := range tags {
		if !n.tags[t] {
			return false
		}
	}
	return true
}

// Fleet is a named, tag-annotated collection of TCP clients.
type Fleet struct {
	mu             sync.RWMutex
	nodes          map[string]*node
	order          []string
	defaultTimeout time.Duration
	retry          RetryPolicy
}

// New constructs a Fleet from configs, rejecting duplicate node names before
// materializing any client.
func New(defaultTimeout time.Duration, retry RetryPolicy, configs ...NodeConfig) (*Fleet, error) {
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if seen[c.Name] {
			return nil, fmt.Errorf("fleet: duplicate node name %q", c.Name)
		}
		seen[c.Name] = true
	}

	f := &Fleet{
		nodes:          make(map[string]*node, len(configs)),
		order:          make([]string, 0, len(configs)),
		defaultTimeout: defaultTimeout,
		retry:          retry,
	}
	for _, c := range configs {
		tags := make(map[string]bool, len(c.Tags))
		for _, t := range c.Tags {
			tags[t] = true
		}
		f.nodes[c.Name] = &node{
			name:    c.Name,
			tags:    tags,
			timeout: c.Timeout,
			client:  repe.NewClient(c.Host, c.Port),
		}
		f.order = append(f.order, c.Name)
	}
	return f, nil
}

// ConnectResult reports the outcome of a per-node connect/disconnect
// attempt.
type ConnectResult struct {
	Connected []string
	Failed    map[string]error
}

func (f *Fleet) snapshot() []*node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*node, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.nodes[name])
	}
	return out
}

// ConnectAll dials every node in parallel.
func (f *Fleet) ConnectAll(ctx context.Context) ConnectResult {
	return f.forEachNode(func(n *node) error { return n.client.Connect(ctx) })
}

// DisconnectAll closes every node's connection in parallel.
func (f *Fleet) DisconnectAll() ConnectResult {
	return f.forEachNode(func(n *node) error { return n.client.Close() })
}

// ReconnectAll closes then redials every node in parallel.
func (f *Fleet) ReconnectAll(ctx context.Context) ConnectResult {
	return f.forEachNode(func(n *node) error {
		n.client.Close()
		return n.client.Connect(ctx)
	})
}

func (f *Fleet) forEachNode(fn func(*node) error) ConnectResult {
	nodes := f.snapshot()
	var mu sync.Mutex
	res := ConnectResult{Failed: make(map[string]error)}

	g := taskgroup.New(nil)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			err := fn(n)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[n.name] = err
			} else {
				res.Connected = append(res.Connected, n.name)
			}
			return nil
		})
	}
	g.Wait()
	return res
}

// CallResult reports the outcome of a call against one fleet node.
type CallResult struct {
	Node    string
	Value   any
	Err     error
	Elapsed time.Duration
}

// Call runs method against nodeName through the fleet's retry policy: up to
// MaxAttempts attempts, sleeping Delay between them, ensuring the node is
// connected before each attempt and using the node's own timeout if set
// (falling back to the fleet's default otherwise).
func (f *Fleet) Call(ctx context.Context, nodeName, method string, params any, opts ...repe.CallOption) CallResult {
	f.mu.RLock()
	n, ok := f.nodes[nodeName]
	f.mu.RUnlock()
	if !ok {
		return CallResult{Node: nodeName, Err: fmt.Errorf("fleet: unknown node %q", nodeName)}
	}
	return f.callWithRetry(ctx, n, method, params, opts)
}

func (f *Fleet) callWithRetry(ctx context.Context, n *node, method string, params any, opts []repe.CallOption) CallResult {
	timeout := n.timeout
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	attempts := f.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CallResult{Node: n.name, Err: ctx.Err(), Elapsed: time.Since(start)}
			case <-time.After(f.retry.Delay):
			}
		}
		if !n.client.Connected() {
			if err := n.client.Connect(ctx); err != nil {
				lastErr = err
				continue
			}
		}
		callOpts := append([]repe.CallOption{repe.WithTimeout(timeout)}, opts...)
		val, err := n.client.Call(ctx, method, params, callOpts...)
		if err == nil {
			return CallResult{Node: n.name, Value: val, Elapsed: time.Since(start)}
		}
		lastErr = err
	}
	return CallResult{Node: n.name, Err: lastErr, Elapsed: time.Since(start)}
}

// Broadcast snapshots the node set under lock, filters by tags (a node is
// included only if it carries every tag in tags), and calls method on each
// matching node concurrently, returning the per-node result keyed by name.
func (f *Fleet) Broadcast(ctx context.Context, method string, params any, tags []string, opts ...repe.CallOption) map[string]CallResult {
	nodes := f.snapshot()
	var mu sync.Mutex
	results := make(map[string]CallResult)

	g := taskgroup.New(nil)
	for _, n := range nodes {
		if !n.hasTags(tags) {
			continue
		}
		n := n
		g.Go(func() error {
			r := f.callWithRetry(ctx, n, method, params, opts)
			mu.Lock()
			results[n.name] = r
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// MapReduce broadcasts method to every node matching tags, then applies fn
// to the resulting per-node result map.
func (f *Fleet) MapReduce(ctx context.Context, method string, params any, tags []string, fn func(map[string]CallResult) any, opts ...repe.CallOption) any {
	return fn(f.Broadcast(ctx, method, params, tags, opts...))
}

// HealthResult reports one node's health-check outcome.
type HealthResult struct {
	Healthy bool
	Latency time.Duration
	Err     error
}

// HealthCheckEndpoint is the method HealthCheck calls against every node.
const HealthCheckEndpoint = "/status"

// HealthCheck calls HealthCheckEndpoint on every node in parallel with a
// 5-second timeout, reporting per-node health.
func (f *Fleet) HealthCheck(ctx context.Context) map[string]HealthResult {
	nodes := f.snapshot()
	var mu sync.Mutex
	results := make(map[string]HealthResult, len(nodes))

	g := taskgroup.New(nil)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			start := time.Now()
			_, err := n.client.Call(cctx, HealthCheckEndpoint, nil, repe.WithTimeout(5*time.Second))
			mu.Lock()
			results[n.name] = HealthResult{Healthy: err == nil, Latency: time.Since(start), Err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// Names returns the fleet's node names in construction order.
func (f *Fleet) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.order...)
}
