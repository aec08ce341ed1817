// Copyright (C) 2024 The REPE Authors.

package uniudp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
	"sync/atomic"
	"time"
)

var messageIDCounter = newMessageIDCounter()

func newMessageIDCounter() *uint64 {
	var seed uint64
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		seed = binary.BigEndian.Uint64(b[:])
	}
	v := seed
	return &v
}

// nextMessageID returns the pre-increment value of the package's atomic
// message-id counter, seeded once at process start from a random value.
func nextMessageID() uint64 {
	return atomic.AddUint64(messageIDCounter, 1) - 1
}

// SendOptions configures SendMessage.
type SendOptions struct {
	Redundancy   uint16        // number of times each chunk is transmitted, >= 1
	ChunkSize    uint16        // >= 1
	FECGroupSize uint16        // >= 1; 1 disables FEC
	Delay        time.Duration // optional inter-packet pacing
	MessageID    *uint64       // nil selects the next generated id
	Warn         func(string)  // optional MTU warning; nil discards it
}

func (o SendOptions) warn(format string, args ...any) {
	if o.Warn != nil {
		o.Warn(fmt.Sprintf(format, args...))
	}
}

// SendMessage chunks data and writes it to dest through conn, replicating
// each chunk Redundancy times and, if FECGroupSize > 1, emitting one XOR
// parity chunk per contiguous group of FECGroupSize data chunks. It returns
// the message id used.
func SendMessage(conn net.PacketConn, dest net.Addr, data []byte, opts SendOptions) (uint64, error) {
	if opts.Redundancy < 1 || opts.Redundancy > 65535 {
		return 0, fmt.Errorf("uniudp: redundancy %d out of range", opts.Redundancy)
	}
	if opts.ChunkSize < 1 {
		return 0, fmt.Errorf("uniudp: chunk_size must be >= 1")
	}
	if opts.FECGroupSize < 1 || opts.FECGroupSize > 0x7FFF {
		return 0, fmt.Errorf("uniudp: fec_group_size %d out of range", opts.FECGroupSize)
	}

	if HeaderLength+int(opts.ChunkSize) > SafeUDPPayload {
		opts.warn("uniudp: chunk_size %d makes packets larger than the safe UDP payload of %d bytes", opts.ChunkSize, SafeUDPPayload)
	}

	chunkSize := int(opts.ChunkSize)
	totalChunks := (len(data) + chunkSize - 1) / chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}
	if bits.Len64(uint64(totalChunks)) > 32 {
		return 0, fmt.Errorf("uniudp: message too large: %d chunks", totalChunks)
	}

	var messageID uint64
	if opts.MessageID != nil {
		messageID = *opts.MessageID
	} else {
		messageID = nextMessageID()
	}

	fecEnabled := opts.FECGroupSize > 1
	parity := make([]byte, chunkSize)
	groupStart := 0

	flushParity := func(closingIndex int) error {
		if !fecEnabled {
			return nil
		}
		h := PacketHeader{
			MessageID:     messageID,
			ChunkIndex:    uint32(groupStart),
			TotalChunks:   uint32(totalChunks),
			MessageLength: uint32(len(data)),
			ChunkSize:     opts.ChunkSize,
			PayloadLen:    opts.ChunkSize,
			Redundancy:    opts.Redundancy,
			FECField:      FECField(opts.FECGroupSize, true),
		}
		buf := make([]byte, chunkSize)
		copy(buf, parity)
		for attempt := uint16(1); attempt <= opts.Redundancy; attempt++ {
			h.Attempt = attempt
			if _, err := conn.WriteTo(h.Pack(buf), dest); err != nil {
				return fmt.Errorf("uniudp: write parity for group %d: %w", groupStart, err)
			}
			if opts.Delay > 0 {
				time.Sleep(opts.Delay)
			}
		}
		for i := range parity {
			parity[i] = 0
		}
		groupStart = closingIndex + 1
		return nil
	}

	for i := 0; i < totalChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]

		h := PacketHeader{
			MessageID:     messageID,
			ChunkIndex:    uint32(i),
			TotalChunks:   uint32(totalChunks),
			MessageLength: uint32(len(data)),
			ChunkSize:     opts.ChunkSize,
			PayloadLen:    uint16(len(chunk)),
			Redundancy:    opts.Redundancy,
			FECField:      FECField(opts.FECGroupSize, false),
		}
		for attempt := uint16(1); attempt <= opts.Redundancy; attempt++ {
			h.Attempt = attempt
			if _, err := conn.WriteTo(h.Pack(chunk), dest); err != nil {
				return 0, fmt.Errorf("uniudp: write chunk %d: %w", i, err)
			}
			if opts.Delay > 0 {
				time.Sleep(opts.Delay)
			}
		}

		if fecEnabled {
			for j, b := range chunk {
				parity[j] ^= b
			}
			groupOffset := i - groupStart
			last := i == totalChunks-1
			if groupOffset == int(opts.FECGroupSize)-1 || last {
				if err := flushParity(i); err != nil {
					return 0, err
				}
			}
		}
	}

	return messageID, nil
}
