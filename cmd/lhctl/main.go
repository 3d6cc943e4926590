// Package main is the entry point for the lhctl CLI.
//
// lhctl upgrades Longhorn inside a Kubernetes cluster with a backup taken
// before every change, detects version conflicts between the Longhorn
// components and rolls back from a backup bundle.
//
// For detailed usage information, run:
//
//	lhctl --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/lhctl/cmd/lhctl/commands"
	"github.com/imamik/lhctl/cmd/lhctl/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	commands.SetVersionInfo(version, commit, date)

	err := commands.Root().ExecuteContext(ctx)
	stop()

	code := handlers.ExitCode(err)
	switch {
	case err == nil:
	case code == handlers.ExitOK:
		fmt.Fprintln(os.Stderr, "Cancelled, nothing was changed.")
	case code == handlers.ExitUsage:
		fmt.Fprintf(os.Stderr, "Error: %v\nRun 'lhctl --help' for usage.\n", err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
