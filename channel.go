// Copyright (C) 2024 The REPE Authors.

package repe

import "context"

// Channel is a reliable ordered stream of REPE messages shared by two
// endpoints. Server and Client operate directly on net.Conn since the wire
// format is TCP-specific, but Channel gives tests and alternate transports
// (see package channel) a way to exchange Messages without a real socket.
//
// Implementations must be safe for concurrent use by one sender and one
// receiver.
type Channel interface {
	// Send writes msg to the peer.
	Send(Message) error
	// Recv reads the next available message from the peer.
	Recv() (Message, error)
	// Close terminates the channel; pending Send/Recv calls report an error.
	Close() error
}

// HandleMessage runs req through the server's middleware chain and handler
// dispatch exactly as a connection task would, without requiring a real
// socket. It is exported for callers (see package repetest) that drive a
// Server over a Channel or in-process for testing.
func (s *Server) HandleMessage(ctx context.Context, req Message) Message {
	return s.dispatch(ctx, req)
}
