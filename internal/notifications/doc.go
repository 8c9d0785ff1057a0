// Package notifications publishes job lifecycle events to an ntfy topic.
// When no topic is configured the service degrades to a noop, so callers
// never need to branch on whether notifications are enabled.
package notifications
