// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/chainlight/lwallet/client"
	"github.com/chainlight/lwallet/filtersync"
	"github.com/chainlight/lwallet/headersync"
	"github.com/chainlight/lwallet/headerstore"
	"github.com/chainlight/lwallet/peermgr"
	"github.com/chainlight/lwallet/txsign"
	"github.com/chainlight/lwallet/wallet"
)

// logRotator writes every logged line to both stdout and a size-rotated
// file; it is nil until initLogRotator runs.
var logRotator *rotator.Rotator

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var backendLog = slog.NewBackend(logWriter{})

// subsystemLoggers maps a short subsystem tag to the logger wired into the
// matching package via its UseLogger hook.
var subsystemLoggers = map[string]slog.Logger{
	"LWAL": backendLog.Logger("LWAL"), // main
	"PEER": backendLog.Logger("PEER"),
	"HSTR": backendLog.Logger("HSTR"),
	"HSYN": backendLog.Logger("HSYN"),
	"FSYN": backendLog.Logger("FSYN"),
	"TXSN": backendLog.Logger("TXSN"),
	"WALT": backendLog.Logger("WALT"),
	"CLNT": backendLog.Logger("CLNT"),
}

var log = subsystemLoggers["LWAL"]

// initLogRotator creates the log directory (if needed) and opens the
// rotating log file at logFile.
func initLogRotator(logFile string) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log rotator: %v\n", err)
		os.Exit(1)
	}
	logRotator = r
}

// useLoggers wires each subsystem logger into its package via UseLogger.
func useLoggers() {
	peermgr.UseLogger(subsystemLoggers["PEER"])
	headerstore.UseLogger(subsystemLoggers["HSTR"])
	headersync.UseLogger(subsystemLoggers["HSYN"])
	filtersync.UseLogger(subsystemLoggers["FSYN"])
	txsign.UseLogger(subsystemLoggers["TXSN"])
	wallet.UseLogger(subsystemLoggers["WALT"])
	client.UseLogger(subsystemLoggers["CLNT"])
}

// setLogLevels sets every subsystem logger to level, parsed via
// slog.LevelFromString.
func setLogLevels(levelStr string) error {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelStr)
	}
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
	return nil
}
