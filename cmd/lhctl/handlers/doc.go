// Package handlers implements the execution of lhctl commands.
//
// Each handler loads the configuration, connects to the cluster and runs
// one orchestrator operation. Output goes to stdout, progress logs to
// stderr.
package handlers
