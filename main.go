// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"emgrep/cmd"
	applog "emgrep/internal/log"
	"emgrep/pkg/build"
)

// main is the entry point for the EMG rep engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments
//   - Load and validate configuration
//
// 2. Concurrent Phase (Hot Path):
//   - Open history storage and outbound transports
//   - Run the engine and attach the sample source
//   - Serve the control API
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Close any open set
//   - Stop the engine and release resources
//
// One-off commands (list, presets, history, replay, calibrate) run their
// own short version of the same phases.
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Fatal(err)
	}

	options, err := cmd.ParseArgs()
	if err != nil {
		log.Fatal(err)
	}
	if !options.Live && options.Command == "" {
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Termination signals cancel ctx; Run returns once shutdown is done.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd.Run(ctx, options)
	stop()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}
