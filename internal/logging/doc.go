// Package logging provides structured logging for lhctl using zerolog.
//
// A single global logger is configured once from the CLI flags via Init.
// Long-running operations report progress through an Observer, which renders
// phase-prefixed lines and structured events on top of the global logger.
package logging
