// Copyright (C) 2024 The REPE Authors.

package uniudp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/repehq/repe"
)

// ResponseCallback is invoked when a request (as opposed to a notification)
// completes and its handler returned a non-nil result. Panics and errors
// from the callback are caught by the serve loop and logged, never
// propagated.
type ResponseCallback func(method string, result any, msg repe.Message)

// Server dispatches reassembled UniUDP messages by their parsed REPE query,
// the way repe.Server dispatches TCP requests, but one-way: there is no
// wire response, only an optional application-level ResponseCallback.
type Server struct {
	conn              net.PacketConn
	handlers          map[string]repe.Handler
	codecs            repe.CodecSet
	reassembler       *Reassembler
	inactivityTimeout time.Duration
	overallTimeout    time.Duration
	ResponseCallback  ResponseCallback
	Log               func(format string, args ...any)
}

// NewServer wraps conn to serve UniUDP messages.
func NewServer(conn net.PacketConn) *Server {
	return &Server{
		conn:              conn,
		handlers:          make(map[string]repe.Handler),
		codecs:            repe.DefaultCodecs(),
		reassembler:       NewReassembler(),
		inactivityTimeout: 5 * time.Second,
		overallTimeout:    30 * time.Second,
	}
}

// SetTimeouts overrides the per-receive inactivity and overall timeouts
// used by the serve loop.
func (s *Server) SetTimeouts(inactivity, overall time.Duration) *Server {
	s.inactivityTimeout = inactivity
	s.overallTimeout = overall
	return s
}

// Handle registers h for method.
func (s *Server) Handle(method string, h repe.Handler) *Server {
	s.handlers[method] = h
	return s
}

func (s *Server) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log(format, args...)
	}
}

// Serve runs the receive loop until ctx is done or a non-timeout read error
// occurs. A ReceiveMessage call that produces nothing (ErrReceiveTimeout:
// nothing completed within the overall timeout) is silently retried, and a
// timed-out partial report is skipped; a completed message
// with no lost chunks is decoded as a REPE message and dispatched to its
// handler by parsed query.
func (s *Server) Serve(ctx context.Context) error {
	s.reassembler.Warn = func(msg string) { s.logf("%s", msg) }
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		report, err := s.reassembler.ReceiveMessage(s.conn, ReceiveOptions{
			InactivityTimeout: s.inactivityTimeout,
			OverallTimeout:    s.overallTimeout,
		})
		if err != nil {
			if errors.Is(err, ErrReceiveTimeout) {
				continue
			}
			return err
		}
		if report.CompletionReason != ReasonCompleted || len(report.LostChunks) > 0 {
			continue
		}
		s.dispatch(ctx, report)
	}
}

func (s *Server) dispatch(ctx context.Context, report *MessageReport) {
	msg, err := repe.DecodeMessage(report.Payload)
	if err != nil {
		s.logf("uniudp: discarding message %d: %v", report.MessageID, err)
		return
	}

	method := msg.ParseQuery()
	h, ok := s.handlers[method]
	if !ok {
		s.logf("uniudp: no handler for method %q", method)
		return
	}

	body, err := msg.ParseBody(s.codecs)
	if err != nil {
		s.logf("uniudp: message %d: %v", report.MessageID, err)
		return
	}

	result, err := s.callHandler(ctx, h, body, msg)
	if err != nil {
		s.logf("uniudp: handler for %q: %v", method, err)
		return
	}
	if msg.Header.Notify || result == nil || s.ResponseCallback == nil {
		return
	}
	s.invokeCallback(method, result, msg)
}

func (s *Server) callHandler(ctx context.Context, h repe.Handler, body any, msg repe.Message) (result any, err error) {
	defer func() {
		if p := recover(); p != nil && err == nil {
			err = fmt.Errorf("handler panicked (recovered): %v", p)
		}
	}()
	return h(ctx, body, msg)
}

func (s *Server) invokeCallback(method string, result any, msg repe.Message) {
	defer func() {
		if p := recover(); p != nil {
			s.logf("uniudp: response callback for %q panicked: %v", method, p)
		}
	}()
	s.ResponseCallback(method, result, msg)
}
