// Package queue persists jobs and their tasks in SQLite and exposes the
// claim/retry lifecycle the daemon workers drive.
//
// The Store owns the database connection, schema initialization, the atomic
// ClaimNextTask operation, and every status transition. A task is identified
// by its (job_id, task_name) pair; its parameter specification is stored as
// ordered JSON so the environment handed to payload scripts is reproducible.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package queue
