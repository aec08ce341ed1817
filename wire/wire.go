// Package wire provides small fixed-width binary encoding helpers shared by
// the REPE header codec and the UniUDP packet codec. Both wire formats use
// only fixed-width integer fields, so unlike a general-purpose binary
// protocol toolkit this package does not need a variable-length integer
// encoding: callers pick a byte order and get/put fixed-size fields.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// A Builder accumulates fixed-width fields into a byte buffer in the byte
// order given to NewBuilder. The zero value is not usable; use NewBuilder.
type Builder struct {
	order binary.ByteOrder
	buf   []byte
}

// NewBuilder returns a Builder that appends fields in the given byte order,
// with its internal buffer pre-sized to size bytes.
func NewBuilder(order binary.ByteOrder, size int) *Builder {
	return &Builder{order: order, buf: make([]byte, 0, size)}
}

// Put appends raw bytes to b.
func (b *Builder) Put(p []byte) { b.buf = append(b.buf, p...) }

// PutByte appends a single byte to b.
func (b *Builder) PutByte(v byte) { b.buf = append(b.buf, v) }

// PutUint16 appends v to b in the builder's byte order.
func (b *Builder) PutUint16(v uint16) {
	var tmp [2]byte
	b.order.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// PutUint32 appends v to b in the builder's byte order.
func (b *Builder) PutUint32(v uint32) {
	var tmp [4]byte
	b.order.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// PutUint64 appends v to b in the builder's byte order.
func (b *Builder) PutUint64(v uint64) {
	var tmp [8]byte
	b.order.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// Bytes returns the accumulated buffer. The builder retains ownership of the
// returned slice; callers must not retain it past the next call to b.
func (b *Builder) Bytes() []byte { return b.buf }

// Len reports the number of bytes accumulated so far.
func (b *Builder) Len() int { return len(b.buf) }

// A Scanner reads fixed-width fields from a byte slice in a fixed byte
// order. Methods report io.ErrUnexpectedEOF if too few bytes remain.
type Scanner struct {
	order binary.ByteOrder
	rest  []byte
}

// NewScanner constructs a Scanner over buf using the given byte order.
// The scanner retains a slice of buf; the caller must not modify buf while
// the scanner is in use.
func NewScanner(order binary.ByteOrder, buf []byte) *Scanner {
	return &Scanner{order: order, rest: buf}
}

// Len reports the number of unconsumed bytes remaining.
func (s *Scanner) Len() int { return len(s.rest) }

// Rest returns the unconsumed suffix of the input.
func (s *Scanner) Rest() []byte { return s.rest }

// Take consumes and returns the next n bytes of input.
func (s *Scanner) Take(n int) ([]byte, error) {
	if len(s.rest) < n {
		return nil, fmt.Errorf("wire: short read (%d < %d bytes): %w", len(s.rest), n, io.ErrUnexpectedEOF)
	}
	out := s.rest[:n]
	s.rest = s.rest[n:]
	return out, nil
}

// Byte consumes and returns the next byte of input.
func (s *Scanner) Byte() (byte, error) {
	b, err := s.Take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 consumes and decodes the next 2 bytes of input.
func (s *Scanner) Uint16() (uint16, error) {
	b, err := s.Take(2)
	if err != nil {
		return 0, err
	}
	return s.order.Uint16(b), nil
}

// Uint32 consumes and decodes the next 4 bytes of input.
func (s *Scanner) Uint32() (uint32, error) {
	b, err := s.Take(4)
	if err != nil {
		return 0, err
	}
	return s.order.Uint32(b), nil
}

// Uint64 consumes and decodes the next 8 bytes of input.
func (s *Scanner) Uint64() (uint64, error) {
	b, err := s.Take(8)
	if err != nil {
		return 0, err
	}
	return s.order.Uint64(b), nil
}
