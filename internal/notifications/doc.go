// Package notifications delivers migration run summaries via ntfy.
//
// The service publishes to the topic configured under [notifications] and
// degrades to a no-op when no topic is set. Delivery failures are returned
// to the caller, which logs them; a notification never changes the outcome
// of a run.
package notifications
