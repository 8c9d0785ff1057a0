// Package runner executes one external command to completion, streaming its
// combined output and enforcing an optional wall-clock deadline.
//
// The subprocess is started as the leader of a new process group so the
// watchdog can terminate the whole subtree. Output lines are dispatched in
// emission order to the echo logger, the per-task log file, and the optional
// line handler, including a final drain after the process exits.
package runner
