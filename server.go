// Copyright (C) 2024 The REPE Authors.

package repe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/creachadair/taskgroup"
)

// Handler processes one decoded request or notification. body is the
// request body already decoded through the server's CodecSet according to
// the message's BodyFormat (nil if decoding failed or its format has no
// registered codec; an empty JSON or BEVE body also decodes to nil); raw is
// the full incoming Message for handlers that need the header, query, or
// original bytes.
//
// A Handler may return a Message or *Message to use verbatim as the
// response (its ID, Query, and other framing are the handler's
// responsibility); any other returned value is wrapped into a response message with BodyJSON,
// EC=OK, the request's ID, and the request's query. A non-nil error becomes
// a PARSE_ERROR response carrying the error text as a UTF-8 body.
type Handler func(ctx context.Context, body any, raw Message) (any, error)

// MiddlewareVerdict is the tagged result of a Middleware call: continue
// dispatch, short-circuit with a fully formed response, or short-circuit
// with an error code.
type MiddlewareVerdict struct {
	kind verdictKind
	msg  Message
	code ErrorCode
}

type verdictKind int

const (
	verdictContinue verdictKind = iota
	verdictMessage
	verdictError
)

// Continue lets dispatch proceed to the next middleware or the handler.
func Continue() MiddlewareVerdict { return MiddlewareVerdict{kind: verdictContinue} }

// ShortMessage short-circuits dispatch, sending msg as the response as-is.
func ShortMessage(msg Message) MiddlewareVerdict {
	return MiddlewareVerdict{kind: verdictMessage, msg: msg}
}

// ShortError short-circuits dispatch, sending an error response with code.
func ShortError(code ErrorCode) MiddlewareVerdict {
	return MiddlewareVerdict{kind: verdictError, code: code}
}

// Middleware inspects an inbound message before handler dispatch; it cannot
// alter the message passed on, since Continue() carries none. Middleware run
// in registration order; the first to return other than Continue() decides
// the response.
type Middleware func(Message) MiddlewareVerdict

// Server accepts REPE connections and dispatches requests to registered
// Handlers through an ordered Middleware chain, one connection task per
// accepted connection.
type Server struct {
	mu         sync.Mutex
	handlers   map[string]Handler
	middleware []Middleware
	codecs     CodecSet

	listenMu sync.Mutex
	listener net.Listener
	running  bool
	tasks    *taskgroup.Group

	// Log, if set, receives diagnostic messages (per-connection read, header
	// and write errors) the way a caller's structured logger would render
	// them; handler panics are reported to the caller, not logged. It
	// defaults to a no-op so a Server is usable with no setup.
	Log func(format string, args ...any)
}

// NewServer constructs a Server with no handlers or middleware, using
// DefaultCodecs for response body encoding.
func NewServer() *Server {
	return &Server{
		handlers: make(map[string]Handler),
		codecs:   DefaultCodecs(),
		Log:      func(string, ...any) {},
	}
}

// SetCodecs replaces the server's CodecSet, used both to decode request
// bodies and to encode default (non-raw) responses.
func (s *Server) SetCodecs(codecs CodecSet) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codecs = codecs
	return s
}

// Handle registers a handler for the given method name (matched against a
// request's parsed query verbatim). Passing a nil handler removes any
// existing registration. Handle returns s to permit chaining.
func (s *Server) Handle(method string, h Handler) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, method)
	} else {
		s.handlers[method] = h
	}
	return s
}

// Use appends mw to the middleware chain, run in the order registered.
func (s *Server) Use(mw Middleware) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw)
	return s
}

// resolveAddr implements the host-selection rules of the address-resolution
// step: ""/"*"/"0.0.0.0" bind all IPv4 interfaces, "::" binds all IPv6
// interfaces, anything else is resolved by name (IPv4 tried before IPv6).
func resolveAddr(network, host, port string) (string, error) {
	switch host {
	case "", "*", "0.0.0.0":
		return net.JoinHostPort("0.0.0.0", port), nil
	case "::":
		return net.JoinHostPort("::", port), nil
	}
	for _, n := range []string{"ip4", "ip6"} {
		if addrs, err := net.DefaultResolver.LookupIP(context.Background(), n, host); err == nil && len(addrs) > 0 {
			return net.JoinHostPort(addrs[0].String(), port), nil
		}
	}
	return net.JoinHostPort(host, port), nil
}

// Start resolves host:port, binds a listener, and begins accepting
// connections; it does not block. Call Wait or Stop to manage the server's
// lifetime.
func (s *Server) Start(host, port string) error {
	addr, err := resolveAddr("tcp", host, port)
	if err != nil {
		return &ConnectionError{Op: "resolve", Err: err}
	}
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return &ConnectionError{Op: "listen", Err: err}
	}

	s.listenMu.Lock()
	s.listener = lst
	s.running = true
	g := taskgroup.New(nil)
	s.tasks = g
	s.listenMu.Unlock()

	g.Go(func() error {
		for {
			conn, err := lst.Accept()
			if err != nil {
				s.listenMu.Lock()
				stopped := !s.running
				s.listenMu.Unlock()
				if stopped {
					return nil
				}
				return err
			}
			rootServerMetrics.connsAccepted.Add(1)
			rootServerMetrics.connsActive.Add(1)
			g.Go(func() error {
				defer rootServerMetrics.connsActive.Add(-1)
				defer conn.Close()
				s.serveConn(conn)
				return nil
			})
		}
	})
	return nil
}

// Addr returns the address the server is listening on, or nil if Start has
// not been called.
func (s *Server) Addr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, causing the accept loop to exit; in-flight
// connection tasks are allowed to drain on their own as their sockets EOF.
// Stop does not block; call Wait to wait for full shutdown.
func (s *Server) Stop() {
	s.listenMu.Lock()
	s.running = false
	lst := s.listener
	s.listenMu.Unlock()
	if lst != nil {
		lst.Close()
	}
}

// Wait blocks until the accept loop and all connection tasks have exited.
func (s *Server) Wait() error {
	s.listenMu.Lock()
	g := s.tasks
	s.listenMu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// serveConn runs the per-connection read loop until EOF or a fatal framing
// error.
func (s *Server) serveConn(conn net.Conn) {
	for {
		hbuf := make([]byte, HeaderLength)
		if _, err := io.ReadFull(conn, hbuf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.Log("repe: server read header: %v", err)
			}
			return
		}
		h, err := DecodeHeader(hbuf)
		if err != nil {
			s.Log("repe: server bad header: %v", err)
			return
		}
		rest := make([]byte, h.QueryLength+h.BodyLength)
		if _, err := io.ReadFull(conn, rest); err != nil {
			s.Log("repe: server read payload: %v", err)
			return
		}
		req := Message{
			Header: h,
			Query:  rest[:h.QueryLength],
			Body:   rest[h.QueryLength:],
		}

		if h.Notify {
			rootServerMetrics.notifiesIn.Add(1)
		} else {
			rootServerMetrics.requestsIn.Add(1)
		}

		resp := s.dispatch(context.Background(), req)
		if h.Notify {
			continue
		}
		if _, err := conn.Write(resp.Encode()); err != nil {
			s.Log("repe: server write response: %v", err)
			return
		}
	}
}

// dispatch runs the middleware chain then the matched handler, always
// producing a response message (even for a notification, whose caller
// simply discards it).
func (s *Server) dispatch(ctx context.Context, req Message) (resp Message) {
	s.mu.Lock()
	mws := append([]Middleware(nil), s.middleware...)
	s.mu.Unlock()

	for _, mw := range mws {
		v := mw(req)
		switch v.kind {
		case verdictMessage:
			return v.msg
		case verdictError:
			rootServerMetrics.requestsErr.Add(1)
			return s.errorResponse(req, v.code, v.code.String())
		}
	}

	method := req.ParseQuery()
	s.mu.Lock()
	h, ok := s.handlers[method]
	codecs := s.codecs
	s.mu.Unlock()
	if !ok {
		rootServerMetrics.requestsErr.Add(1)
		return s.errorResponse(req, MethodNotFound, fmt.Sprintf("Method not found: %s", method))
	}

	body, decErr := req.ParseBody(codecs)
	if decErr != nil {
		body = nil // handlers that don't need the body still run
	}

	result, err := s.callHandler(ctx, h, body, req)
	if err != nil {
		rootServerMetrics.requestsErr.Add(1)
		return NewMessage(req.Header.ID, req.ParseQuery(), req.Header.QueryFormat,
			[]byte(err.Error()), BodyUTF8, WithErrorCode(ParseError))
	}
	if msg, ok := result.(Message); ok {
		return msg
	}
	if msg, ok := result.(*Message); ok {
		return *msg
	}

	respBody, encErr := codecs.Encode(result, BodyJSON)
	if encErr != nil {
		rootServerMetrics.requestsErr.Add(1)
		return NewMessage(req.Header.ID, req.ParseQuery(), req.Header.QueryFormat,
			[]byte(encErr.Error()), BodyUTF8, WithErrorCode(ParseError))
	}
	return NewMessage(req.Header.ID, req.ParseQuery(), req.Header.QueryFormat, respBody, BodyJSON)
}

// callHandler invokes h, recovering a panic into an error so one bad
// handler cannot take down the connection task or the accept loop.
func (s *Server) callHandler(ctx context.Context, h Handler, body any, req Message) (result any, err error) {
	defer func() {
		if x := recover(); x != nil && err == nil {
			err = fmt.Errorf("handler panicked (recovered): %v", x)
		}
	}()
	return h(ctx, body, req)
}

func (s *Server) errorResponse(req Message, code ErrorCode, message string) Message {
	return NewMessage(req.Header.ID, req.ParseQuery(), req.Header.QueryFormat,
		[]byte(message), BodyUTF8, WithErrorCode(code))
}
