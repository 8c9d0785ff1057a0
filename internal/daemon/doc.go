// Package daemon runs the task-processing service. A fixed pool of workers
// polls the queue, claims tasks, and executes them through the task runner;
// the supervisor enforces single-instance execution and owns the pool's
// lifecycle.
package daemon
