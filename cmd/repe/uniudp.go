// Copyright (C) 2024 The REPE Authors.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"

	"github.com/creachadair/command"

	"github.com/repehq/repe"
	"github.com/repehq/repe/uniudp"
)

func uniudpSendCommand() *command.C {
	var addr, params string
	var redundancy, chunkSize, fecGroupSize uint
	var notify bool
	return &command.C{
		Name:  "uniudp-send",
		Usage: "<method> --addr host:port [--params json]",
		Help: `Send a single REPE message over the UniUDP one-way transport, chunking
and adding redundancy/FEC per the configured tuning flags. There is no
response: UniUDP is fire-and-forget by design.`,
		SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&addr, "addr", "127.0.0.1:9000", "destination host:port")
			fs.StringVar(&params, "params", "{}", "JSON-encoded request params")
			fs.UintVar(&redundancy, "redundancy", 1, "per-chunk send redundancy")
			fs.UintVar(&chunkSize, "chunk-size", 1024, "chunk size in bytes")
			fs.UintVar(&fecGroupSize, "fec-group-size", 1, "FEC group size (1 disables FEC)")
			fs.BoolVar(&notify, "notify", false, "send as a notification instead of a request")
		},
		Run: func(env *command.Env) error {
			if len(env.Args) != 1 {
				return env.Usagef("exactly one method argument is required")
			}
			return runUniUDPSend(env.Args[0], addr, params, notify,
				uniudp.ClientOptions{
					Redundancy:   uint16(redundancy),
					ChunkSize:    uint16(chunkSize),
					FECGroupSize: uint16(fecGroupSize),
				})
		},
	}
}

func runUniUDPSend(method, addr, paramsJSON string, notify bool, opts uniudp.ClientOptions) error {
	var params any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("decode --params: %w", err)
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	dest, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer conn.Close()

	c := uniudp.NewClient(conn, dest, opts)
	var id uint64
	if notify {
		id, err = c.SendNotify(method, repe.QueryJSONPointer, body, repe.BodyJSON)
	} else {
		id, err = c.SendRequest(method, repe.QueryJSONPointer, body, repe.BodyJSON)
	}
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Printf("sent message %d to %s\n", id, addr)
	return nil
}
