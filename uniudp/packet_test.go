// Copyright (C) 2024 The REPE Authors.

package uniudp_test

import (
	"testing"

	"github.com/repehq/repe/uniudp"
)

func TestPacketRoundTrip(t *testing.T) {
	h := uniudp.PacketHeader{
		MessageID:     42,
		ChunkIndex:    3,
		TotalChunks:   10,
		MessageLength: 9000,
		ChunkSize:     1024,
		PayloadLen:    5,
		Redundancy:    2,
		Attempt:       1,
		FECField:      uniudp.FECField(4, false),
	}
	payload := []byte("hello")
	buf := h.Pack(payload)

	got, gotPayload, err := uniudp.ParsePacket(buf)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got != h {
		t.Fatalf("ParsePacket header = %+v, want %+v", got, h)
	}
	if string(gotPayload) != "hello" {
		t.Fatalf("ParsePacket payload = %q, want hello", gotPayload)
	}
	if got.GroupSize() != 4 || got.Parity() {
		t.Fatalf("GroupSize/Parity = %d/%v, want 4/false", got.GroupSize(), got.Parity())
	}
}

func TestParsePacketRejectsShortBuffer(t *testing.T) {
	if _, _, err := uniudp.ParsePacket(make([]byte, 10)); err == nil {
		t.Fatal("ParsePacket: want error for short buffer")
	}
}

func TestParsePacketRejectsPayloadLenOverflow(t *testing.T) {
	h := uniudp.PacketHeader{ChunkSize: 4, PayloadLen: 4, FECField: uniudp.FECField(1, false)}
	buf := h.Pack([]byte("abcdefghij"))
	// Corrupt payload_len to exceed chunk_size.
	buf[22] = 0
	buf[23] = 10
	if _, _, err := uniudp.ParsePacket(buf); err == nil {
		t.Fatal("ParsePacket: want error when payload_len exceeds chunk_size")
	}
}

func TestParsePacketRejectsZeroFECField(t *testing.T) {
	h := uniudp.PacketHeader{ChunkSize: 4, PayloadLen: 4}
	buf := h.Pack([]byte("abcd"))
	if _, _, err := uniudp.ParsePacket(buf); err == nil {
		t.Fatal("ParsePacket: want error for zero fec_field")
	}
}
