// Package jobs maintains aggregate job state. After each task outcome the
// daemon asks the manager to recompute the owning job's status from its task
// counts; when a job reaches a terminal status its outputs are packaged and a
// notification is published.
package jobs
