// Copyright (C) 2024 The REPE Authors.

// Package uniudp implements a one-way, best-effort-reliable datagram
// transport over UDP: large payloads are chunked, each chunk is replicated
// some number of times for redundancy, and an optional XOR parity chunk per
// contiguous group of data chunks lets the receiver recover a single lost
// chunk without a retransmit round trip.
package uniudp

import (
	"encoding/binary"
	"fmt"

	"github.com/repehq/repe/wire"
)

// HeaderLength is the fixed size of a packet header, in bytes.
const HeaderLength = 30

// SafeUDPPayload is the payload size above which a single packet risks IP
// fragmentation on typical internet paths.
const SafeUDPPayload = 1452

var byteOrder = binary.BigEndian

// PacketHeader is the fixed 30-byte header prefixing every UniUDP packet.
type PacketHeader struct {
	MessageID      uint64
	ChunkIndex     uint32
	TotalChunks    uint32
	MessageLength  uint32
	ChunkSize      uint16
	PayloadLen     uint16
	Redundancy     uint16
	Attempt        uint16 // 1-based
	FECField       uint16 // (group_size << 1) | parity_flag
}

// GroupSize returns the FEC group size packed into FECField. A group size of
// 1 means FEC is disabled for this message.
func (h PacketHeader) GroupSize() uint16 { return h.FECField >> 1 }

// Parity reports whether this packet carries a parity chunk rather than
// data.
func (h PacketHeader) Parity() bool { return h.FECField&1 == 1 }

// FECField packs groupSize and the parity flag into the wire field's shape.
func FECField(groupSize uint16, parity bool) uint16 {
	f := groupSize << 1
	if parity {
		f |= 1
	}
	return f
}

// Pack writes h followed by payload into a single wire-ready buffer. Pack
// does not validate h; the checks happen on receipt, in ParsePacket and the
// Reassembler.
func (h PacketHeader) Pack(payload []byte) []byte {
	b := wire.NewBuilder(byteOrder, HeaderLength+len(payload))
	b.PutUint64(h.MessageID)
	b.PutUint32(h.ChunkIndex)
	b.PutUint32(h.TotalChunks)
	b.PutUint32(h.MessageLength)
	b.PutUint16(h.ChunkSize)
	b.PutUint16(h.PayloadLen)
	b.PutUint16(h.Redundancy)
	b.PutUint16(h.Attempt)
	b.PutUint16(h.FECField)
	b.Put(payload)
	return b.Bytes()
}

// ParsePacket parses buf into a header and its payload slice (which aliases
// buf). It rejects a buffer shorter than the header, a buffer shorter than
// the header plus payload_len (bytes past that are ignored), a payload_len
// that exceeds chunk_size, and a zero fec_field or zero group size.
func ParsePacket(buf []byte) (PacketHeader, []byte, error) {
	if len(buf) < HeaderLength {
		return PacketHeader{}, nil, fmt.Errorf("uniudp: packet too short: %d bytes", len(buf))
	}
	s := wire.NewScanner(byteOrder, buf[:HeaderLength])
	var h PacketHeader
	h.MessageID, _ = s.Uint64()
	h.ChunkIndex, _ = s.Uint32()
	h.TotalChunks, _ = s.Uint32()
	h.MessageLength, _ = s.Uint32()
	h.ChunkSize, _ = s.Uint16()
	h.PayloadLen, _ = s.Uint16()
	h.Redundancy, _ = s.Uint16()
	h.Attempt, _ = s.Uint16()
	h.FECField, _ = s.Uint16()
	if len(buf) < HeaderLength+int(h.PayloadLen) {
		return PacketHeader{}, nil, fmt.Errorf("uniudp: truncated payload: want %d bytes, have %d", h.PayloadLen, len(buf)-HeaderLength)
	}
	if h.PayloadLen > h.ChunkSize {
		return PacketHeader{}, nil, fmt.Errorf("uniudp: payload_len %d exceeds chunk_size %d", h.PayloadLen, h.ChunkSize)
	}
	if h.FECField == 0 || h.GroupSize() == 0 {
		return PacketHeader{}, nil, fmt.Errorf("uniudp: invalid fec_field %#x", h.FECField)
	}
	return h, buf[HeaderLength : HeaderLength+int(h.PayloadLen)], nil
}
