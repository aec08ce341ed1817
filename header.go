// Copyright (C) 2024 The REPE Authors.

// Package repe implements the REPE (REmote Procedure managEment) wire
// protocol: a fixed 48-byte header followed by a query section and a body
// section, carried over a reliable ordered byte stream such as TCP.
//
// # Messages
//
// The core type is [Message], a request, response, or notification framed
// per the REPE v1 wire format. Construct one with [NewMessage] and read its
// wire form with [Message.Encode]; parse one back with [DecodeMessage].
//
// # Servers and clients
//
// [Server] accepts connections and dispatches requests to registered
// [Handler] functions through an ordered [Middleware] chain. [Client] owns a
// single connection and correlates responses to outstanding requests by id,
// so many goroutines can share one Client safely.
//
// # Body formats
//
// The body section is tagged with a [BodyFormat] and converted through a
// [Codec] registered in a [CodecSet]; see [DefaultCodecs] for the built-in
// JSON, CBOR ("BEVE"), UTF-8, and raw-binary adapters.
package repe

import (
	"encoding/binary"

	"github.com/creachadair/mds/value"

	"github.com/repehq/repe/wire"
)

// HeaderLength is the fixed size in bytes of a REPE header.
const HeaderLength = 48

// Spec is the fixed magic value identifying the REPE wire protocol.
const Spec uint16 = 0x1507

// Version is the only REPE protocol version this package implements.
const Version uint8 = 1

// byteOrder is the wire byte order for REPE headers: little-endian, unlike
// UniUDP's big-endian packet header (see package uniudp).
var byteOrder = binary.LittleEndian

// QueryFormat tags the encoding of a Message's query section.
type QueryFormat uint16

const (
	QueryRawBinary    QueryFormat = 0
	QueryJSONPointer  QueryFormat = 1
	QueryCustomBase   QueryFormat = 4096
)

// BodyFormat tags the encoding of a Message's body section.
type BodyFormat uint16

const (
	BodyRawBinary  BodyFormat = 0
	BodyBEVE       BodyFormat = 1
	BodyJSON       BodyFormat = 2
	BodyUTF8       BodyFormat = 3
	BodyCustomBase BodyFormat = 4096
)

// Header is the fixed 48-byte preamble of a REPE message. All integer
// fields are little-endian on the wire.
type Header struct {
	Length       uint64
	Spec         uint16
	Version      uint8
	Notify       bool
	ID           uint64
	QueryLength  uint64
	BodyLength   uint64
	QueryFormat  QueryFormat
	BodyFormat   BodyFormat
	EC           ErrorCode
}

// Encode serializes h to its 48-byte wire form.
func (h Header) Encode() []byte {
	b := wire.NewBuilder(byteOrder, HeaderLength)
	b.PutUint64(h.Length)
	b.PutUint16(h.Spec)
	b.PutByte(h.Version)
	b.PutByte(value.Cond[byte](h.Notify, 1, 0))
	b.Put(make([]byte, 4)) // reserved, must be zero
	b.PutUint64(h.ID)
	b.PutUint64(h.QueryLength)
	b.PutUint64(h.BodyLength)
	b.PutUint16(uint16(h.QueryFormat))
	b.PutUint16(uint16(h.BodyFormat))
	b.PutUint32(uint32(h.EC))
	return b.Bytes()
}

// DecodeHeader parses a 48-byte buffer into a Header. It fails with
// InvalidHeader if buf is short, the magic or version don't match, the
// reserved bytes are nonzero, or the declared length is inconsistent with
// the query and body lengths.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLength {
		return Header{}, headerErr("short header (%d < %d bytes)", len(buf), HeaderLength)
	}
	s := wire.NewScanner(byteOrder, buf[:HeaderLength])

	var h Header
	var err error
	if h.Length, err = s.Uint64(); err != nil {
		return Header{}, headerErr("reading length: %v", err)
	}
	specv, _ := s.Uint16()
	h.Spec = specv
	versionv, _ := s.Byte()
	h.Version = versionv
	notifyv, _ := s.Byte()
	h.Notify = notifyv != 0
	reserved, _ := s.Take(4)
	if h.ID, err = s.Uint64(); err != nil {
		return Header{}, headerErr("reading id: %v", err)
	}
	if h.QueryLength, err = s.Uint64(); err != nil {
		return Header{}, headerErr("reading query_length: %v", err)
	}
	if h.BodyLength, err = s.Uint64(); err != nil {
		return Header{}, headerErr("reading body_length: %v", err)
	}
	qf, _ := s.Uint16()
	h.QueryFormat = QueryFormat(qf)
	bf, _ := s.Uint16()
	h.BodyFormat = BodyFormat(bf)
	ec, _ := s.Uint32()
	h.EC = ErrorCode(ec)

	if !isZero(reserved) {
		return Header{}, headerErr("nonzero reserved bytes")
	}
	if h.Spec != Spec {
		return Header{}, headerErr("bad spec 0x%04x", h.Spec)
	}
	if h.Version != Version {
		return Header{}, headerErr("unsupported version %d", h.Version)
	}
	if h.Length != HeaderLength+h.QueryLength+h.BodyLength {
		return Header{}, headerErr("length %d != %d + %d + %d", h.Length, HeaderLength, h.QueryLength, h.BodyLength)
	}
	return h, nil
}

// Valid reports whether h satisfies the wire invariants it can see (magic,
// version, and length consistency). Header carries no reserved field, so
// Valid does not check the reserved bytes: Encode always writes them as
// zero and DecodeHeader rejects nonzero ones. Unlike DecodeHeader it never
// returns an error, just a boolean, for callers that already trust the
// framing and just want a sanity check.
func (h Header) Valid() bool {
	return h.Spec == Spec && h.Version == Version && h.Length == HeaderLength+h.QueryLength+h.BodyLength
}

func headerErr(format string, args ...any) error {
	return wireErrorf(InvalidHeader, format, args...)
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
