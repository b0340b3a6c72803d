// Package main provides dexprobe, an end-to-end probe that drives the DEX
// frontend through a real browser with the MetaMask extension loaded.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

// errScenariosFailed makes the process exit non-zero without printing the
// failures twice; the reporter has already shown them.
var errScenariosFailed = errors.New("one or more scenarios failed")

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n\nShutting down gracefully...")
		cancel()
	}()

	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		if !errors.Is(err, errScenariosFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
