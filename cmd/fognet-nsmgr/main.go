// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// fognet-nsmgr is the per-namespace helper spawned by fognetd. It joins one
// network namespace at startup and serves interface operations over a unix
// socket so the daemon never has to setns() itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/nsmanager"
)

func main() {
	netnsName := flag.String("netns", "", "network namespace to join")
	id := flag.String("id", "", "namespace entity id, for log correlation")
	socket := flag.String("socket", "", "unix socket to serve on")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *netnsName == "" || *socket == "" {
		fmt.Fprintln(os.Stderr, "fognet-nsmgr: --netns and --socket are required")
		os.Exit(2)
	}

	logger := logging.New(logging.Config{Level: *logLevel, Output: os.Stderr}).
		WithComponent("nsmgr").
		WithFields("netns", *netnsName, "namespace_id", *id)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Serve must stay on the main goroutine: setns() binds to the thread.
	if err := nsmanager.Serve(ctx, *netnsName, *socket, logger); err != nil {
		logger.Error("Helper exiting", "error", err)
		os.Exit(1)
	}
}
