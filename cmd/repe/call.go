// Copyright (C) 2024 The REPE Authors.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/creachadair/command"

	"github.com/repehq/repe"
)

func callCommand() *command.C {
	var host, port, params string
	var timeout time.Duration
	c := &command.C{
		Name:  "call",
		Usage: "<method> [--params json] [--host h] [--port p] [--timeout d]",
		Help: `Place a single request against a running REPE server and print the
decoded JSON response body to stdout.`,
		SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&host, "host", "127.0.0.1", "server host")
			fs.StringVar(&port, "port", "8080", "server port")
			fs.StringVar(&params, "params", "{}", "JSON-encoded request params")
			fs.DurationVar(&timeout, "timeout", 10*time.Second, "call timeout")
		},
		Run: func(env *command.Env) error {
			if len(env.Args) != 1 {
				return env.Usagef("exactly one method argument is required")
			}
			return runCall(host, port, env.Args[0], params, timeout, false)
		},
	}
	return c
}

func notifyCommand() *command.C {
	var host, port, params string
	return &command.C{
		Name:  "notify",
		Usage: "<method> [--params json] [--host h] [--port p]",
		Help:  "Send a one-way notification to a running REPE server; there is no response to print.",
		SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&host, "host", "127.0.0.1", "server host")
			fs.StringVar(&port, "port", "8080", "server port")
			fs.StringVar(&params, "params", "{}", "JSON-encoded notification params")
		},
		Run: func(env *command.Env) error {
			if len(env.Args) != 1 {
				return env.Usagef("exactly one method argument is required")
			}
			return runCall(host, port, env.Args[0], params, 0, true)
		},
	}
}

func runCall(host, port, method, paramsJSON string, timeout time.Duration, notify bool) error {
	var params any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("decode --params: %w", err)
	}

	c := repe.NewClient(host, port)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	if notify {
		return c.Notify(method, params)
	}

	result, err := c.Call(ctx, method, params)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	enc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}
