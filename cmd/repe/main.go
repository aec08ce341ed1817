// Copyright (C) 2024 The REPE Authors.

// Program repe is a command-line utility for running and driving REPE
// peers: it can serve the bundled demonstration math service, place a
// single call or notification against a running server, and exercise the
// UniUDP one-way transport.
package main

import (
	"os"
	"path/filepath"

	"github.com/creachadair/command"
)

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for running and driving REPE peers.",
		Commands: []*command.C{
			serveCommand(),
			callCommand(),
			notifyCommand(),
			uniudpSendCommand(),
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}
