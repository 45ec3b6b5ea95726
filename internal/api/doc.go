// Package api is the HTTP surface the workflow backend talks to.
//
// Credential submissions are answered with 202 as soon as the delivery work
// item is queued; the outcome is recorded asynchronously on the audit entry.
// Reminders run synchronously and report the agent's output. Every route
// under /agent and /api sits behind the service gate in package middleware.
package api
