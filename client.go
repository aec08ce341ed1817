// Copyright (C) 2024 The REPE Authors.

package repe

import (
	"context"
	"errors"
	"io"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/taskgroup"
)

// pendingCall is the delivery slot for one outstanding request. decodeInto,
// if set, is used to typed-decode a successful response body instead of the
// generic CodecSet.Decode.
type pendingCall struct {
	ch         chan pendingResult
	decodeInto func(body []byte, codecs CodecSet) (any, error)
}

type pendingResult struct {
	value any
	err   error
}

// Client owns a single TCP connection to a REPE server and multiplexes
// concurrent requests over it, correlating out-of-order responses to their
// caller by request id.
//
// A zero Client is not usable; construct one with NewClient. The exported
// methods are safe for concurrent use by multiple goroutines, mirroring the
// three independent mutual-exclusion domains described for the runtime:
// connection state, the pending-request map, and socket writes.
type Client struct {
	host, port string
	timeout    time.Duration
	nodelay    bool
	codecs     CodecSet

	stateMu   sync.Mutex // guards conn, connected, tasks
	conn      net.Conn
	connected bool
	tasks     *taskgroup.Group

	nextID uint64 // atomic, first issued id is 1

	requestsMu sync.Mutex // guards pending
	pending    map[uint64]*pendingCall

	writeMu sync.Mutex // guards conn.Write ordering

	// Log receives diagnostics for reader-loop errors observed while still
	// connected; it defaults to a no-op.
	Log func(format string, args ...any)
}

// NewClient constructs a Client targeting host:port. It does not connect;
// call Connect (or let the first request do so implicitly is NOT supported
// — callers must Connect explicitly, matching the runtime's explicit
// connection lifecycle).
func NewClient(host, port string) *Client {
	return &Client{
		host:    host,
		port:    port,
		timeout: 30 * time.Second,
		nodelay: true,
		codecs:  DefaultCodecs(),
		pending: make(map[uint64]*pendingCall),
		Log:     func(string, ...any) {},
	}
}

// SetTimeout sets the default per-request timeout used when a call does not
// override it with WithTimeout.
func (c *Client) SetTimeout(d time.Duration) *Client { c.timeout = d; return c }

// SetCodecs replaces the client's CodecSet, used to encode request bodies
// and decode response bodies.
func (c *Client) SetCodecs(codecs CodecSet) *Client { c.codecs = codecs; return c }

// Connected reports whether the client currently holds an open connection.
func (c *Client) Connected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected
}

// dialAddr tries address families in the order the runtime specifies: IPv6
// before IPv4, falling back to whichever family resolves if both specific
// attempts fail.
func dialAddr(ctx context.Context, host, port string) (net.Conn, error) {
	addr := net.JoinHostPort(host, port)
	var lastErr error
	for _, network := range []string{"tcp6", "tcp4", "tcp"} {
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, network, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Connect opens the connection if not already open and starts the
// background reader task. Calling Connect while already connected is a
// no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.connected {
		return nil
	}
	conn, err := dialAddr(ctx, c.host, c.port)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok && c.nodelay {
		tc.SetNoDelay(true)
	}
	c.conn = conn
	c.connected = true
	g := taskgroup.New(nil)
	c.tasks = g
	g.Go(func() error {
		c.readLoop(conn)
		return nil
	})
	return nil
}

// Close disconnects the client, failing every pending request with a
// connection error, and waits for the reader task to exit.
func (c *Client) Close() error {
	c.stateMu.Lock()
	conn := c.conn
	g := c.tasks
	c.connected = false
	c.conn = nil
	c.stateMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if g != nil {
		g.Wait()
	}
	return nil
}

// readLoop is the background reader task: it decodes one response at a time
// and delivers it to the pending caller registered under its id, silently
// discarding responses whose id is unknown (already timed out).
func (c *Client) readLoop(conn net.Conn) {
	defer c.teardown(conn)
	for {
		hbuf := make([]byte, HeaderLength)
		if _, err := io.ReadFull(conn, hbuf); err != nil {
			return
		}
		h, err := DecodeHeader(hbuf)
		if err != nil {
			c.stateMu.Lock()
			stillConnected := c.connected
			c.stateMu.Unlock()
			if stillConnected {
				c.Log("repe: client bad header: %v", err)
			}
			return
		}
		rest := make([]byte, h.QueryLength+h.BodyLength)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		msg := Message{Header: h, Query: rest[:h.QueryLength], Body: rest[h.QueryLength:]}

		c.requestsMu.Lock()
		p, ok := c.pending[h.ID]
		if ok {
			delete(c.pending, h.ID)
		}
		c.requestsMu.Unlock()
		if !ok {
			continue // late or unknown response, discard
		}

		if h.EC != OK {
			rootClientMetrics.requestsErr.Add(1)
			p.ch <- pendingResult{err: &RPCError{Code: h.EC, Body: msg.Body}}
			continue
		}
		var res pendingResult
		if p.decodeInto != nil {
			res.value, res.err = p.decodeInto(msg.Body, c.codecs)
		} else {
			res.value, res.err = msg.ParseBody(c.codecs)
		}
		p.ch <- res
	}
}

func (c *Client) teardown(conn net.Conn) {
	c.stateMu.Lock()
	if c.conn == conn {
		c.connected = false
		c.conn = nil
	}
	c.stateMu.Unlock()

	c.requestsMu.Lock()
	stale := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.requestsMu.Unlock()
	for _, p := range stale {
		p.ch <- pendingResult{err: &ConnectionError{Op: "read", Err: errors.New("connection closed")}}
	}
}

// CallOption configures a single Client.Call.
type CallOption func(*callOpts)

type callOpts struct {
	timeout     time.Duration
	queryFormat QueryFormat
	bodyFormat  BodyFormat
	decodeInto  func([]byte, CodecSet) (any, error)
}

// WithTimeout overrides the client's default timeout for one call.
func WithTimeout(d time.Duration) CallOption { return func(o *callOpts) { o.timeout = d } }

// WithQueryFormat overrides the default JSON-Pointer query format.
func WithQueryFormat(f QueryFormat) CallOption { return func(o *callOpts) { o.queryFormat = f } }

// WithBodyFormat overrides the default JSON body format for request params.
func WithBodyFormat(f BodyFormat) CallOption { return func(o *callOpts) { o.bodyFormat = f } }

// DecodeInto arranges for the response body to be typed-decoded into a
// fresh value shaped like out (out must be a non-nil pointer), instead of
// the generic decode a plain Call would produce.
func DecodeInto(out any) CallOption {
	shape := reflect.TypeOf(out)
	return func(o *callOpts) {
		o.decodeInto = func(body []byte, codecs CodecSet) (any, error) {
			c, err := codecs.lookup(o.bodyFormat)
			if err != nil {
				return nil, err
			}
			td, ok := c.(TypedCodec)
			if !ok {
				return nil, wireErrorf(InvalidBody, "format %d does not support typed decode", o.bodyFormat)
			}
			target := reflect.New(shape.Elem())
			if err := td.DecodeAs(body, target.Interface()); err != nil {
				return nil, err
			}
			return target.Interface(), nil
		}
	}
}

// Call sends a request for method with params and blocks until a response
// is correlated, ctx ends, or the timeout elapses. On success it returns
// the decoded response body (or, with DecodeInto, a pointer to the
// requested shape). A non-OK response surfaces as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params any, opts ...CallOption) (any, error) {
	o := callOpts{timeout: c.timeout, queryFormat: QueryJSONPointer, bodyFormat: BodyJSON}
	for _, opt := range opts {
		opt(&o)
	}

	id, p, err := c.send(method, params, o, false)
	if err != nil {
		rootClientMetrics.requestsErr.Add(1)
		return nil, err
	}
	rootClientMetrics.requestsOut.Add(1)
	rootClientMetrics.requestsPending.Add(1)
	defer rootClientMetrics.requestsPending.Add(-1)

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()
	select {
	case res := <-p.ch:
		if res.err != nil {
			rootClientMetrics.requestsErr.Add(1)
		}
		return res.value, res.err
	case <-timer.C:
		c.requestsMu.Lock()
		delete(c.pending, id)
		c.requestsMu.Unlock()
		rootClientMetrics.timeouts.Add(1)
		return nil, &TimeoutError{ID: id}
	case <-ctx.Done():
		c.requestsMu.Lock()
		delete(c.pending, id)
		c.requestsMu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify sends a one-way message; the server never replies and this method
// never blocks on a response.
func (c *Client) Notify(method string, params any, opts ...CallOption) error {
	o := callOpts{queryFormat: QueryJSONPointer, bodyFormat: BodyJSON}
	for _, opt := range opts {
		opt(&o)
	}
	_, _, err := c.send(method, params, o, true)
	if err == nil {
		rootClientMetrics.notifiesOut.Add(1)
	}
	return err
}

// send encodes and writes a request or notification, registering a pending
// slot for requests, and returns the id used and (for requests) the pending
// slot the caller should wait on.
func (c *Client) send(method string, params any, o callOpts, notify bool) (uint64, *pendingCall, error) {
	c.stateMu.Lock()
	conn := c.conn
	connected := c.connected
	c.stateMu.Unlock()
	if !connected {
		return 0, nil, &ConnectionError{Op: "send", Err: errors.New("not connected")}
	}

	var body []byte
	if params != nil {
		var err error
		body, err = c.codecs.Encode(params, o.bodyFormat)
		if err != nil {
			return 0, nil, err
		}
	}

	id := atomic.AddUint64(&c.nextID, 1)
	var p *pendingCall
	var msg Message
	if notify {
		msg = NewMessage(id, method, o.queryFormat, body, o.bodyFormat, WithNotify())
	} else {
		msg = NewMessage(id, method, o.queryFormat, body, o.bodyFormat)
		p = &pendingCall{ch: make(chan pendingResult, 1), decodeInto: o.decodeInto}
		c.requestsMu.Lock()
		c.pending[id] = p
		c.requestsMu.Unlock()
	}

	c.writeMu.Lock()
	_, err := conn.Write(msg.Encode())
	c.writeMu.Unlock()
	if err != nil {
		if !notify {
			c.requestsMu.Lock()
			delete(c.pending, id)
			c.requestsMu.Unlock()
		}
		return 0, nil, &ConnectionError{Op: "write", Err: err}
	}
	return id, p, nil
}

// asyncCall is the handle returned by CallAsync.
type asyncCall struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the asynchronous call completes and returns its result.
func (a *asyncCall) Wait() (any, error) {
	<-a.done
	return a.val, a.err
}

// CallAsync starts a call without blocking the caller; use the returned
// handle's Wait to collect the result.
func (c *Client) CallAsync(ctx context.Context, method string, params any, opts ...CallOption) *asyncCall {
	a := &asyncCall{done: make(chan struct{})}
	go func() {
		defer close(a.done)
		a.val, a.err = c.Call(ctx, method, params, opts...)
	}()
	return a
}

// Batch submits every call in calls concurrently and returns their results
// in the same order, waiting for all to complete.
func (c *Client) Batch(ctx context.Context, calls []BatchCall) []BatchResult {
	handles := make([]*asyncCall, len(calls))
	for i, bc := range calls {
		handles[i] = c.CallAsync(ctx, bc.Method, bc.Params, bc.Options...)
	}
	results := make([]BatchResult, len(calls))
	for i, h := range handles {
		results[i].Value, results[i].Err = h.Wait()
	}
	return results
}

// BatchCall describes one call to submit via Client.Batch.
type BatchCall struct {
	Method  string
	Params  any
	Options []CallOption
}

// BatchResult is one element of the slice returned by Client.Batch.
type BatchResult struct {
	Value any
	Err   error
}
