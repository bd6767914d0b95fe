// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command entrypoint is a thin Docker entrypoint for lwalletd: it fills in
// container-friendly defaults (data directory, network) from environment
// variables and execs the daemon with them prepended, so callers can still
// override any of it with their own trailing flags.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const defaultApp = "lwalletd"

// argN either returns the argument at the provided position within the
// given args slice when it exists or an empty string otherwise.
func argN(args []string, n int) string {
	if len(args) > n {
		return args[n]
	}
	return ""
}

// prepend returns a new slice consisting of val followed by args.
func prepend(args []string, val string) []string {
	newArgs := make([]string, 0, len(args)+1)
	newArgs = append(newArgs, val)
	newArgs = append(newArgs, args...)
	return newArgs
}

func main() {
	exeName := filepath.Base(os.Args[0])

	args := make([]string, len(os.Args)-1)
	copy(args, os.Args[1:])

	if arg0 := argN(args, 0); arg0 == "" || arg0[0] == '-' {
		fmt.Printf("%s: assuming arguments for %s\n", exeName, defaultApp)
		args = prepend(args, defaultApp)
	}

	arg0 := argN(args, 0)
	args = args[1:]
	if arg0 == defaultApp {
		if dataDir := os.Getenv("LWALLET_DATA"); dataDir != "" {
			args = prepend(args, fmt.Sprintf("--datadir=%s", dataDir))
		}
		if network := os.Getenv("LWALLET_NETWORK"); network != "" {
			args = prepend(args, fmt.Sprintf("--network=%s", network))
		}
	}

	cmd := exec.Command(arg0, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ProcessState.ExitCode())
	}
}
