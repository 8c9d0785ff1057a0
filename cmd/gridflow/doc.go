// Package main hosts the Gridflow CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, queue maintenance operations, job submission, and
// configuration scaffolding. It centralizes configuration resolution and
// socket discovery so subcommands can focus on user experience instead of
// wiring. When the daemon is offline, queue commands fall back to opening the
// queue database directly.
package main
