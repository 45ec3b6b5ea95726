// Package events decouples the HTTP layer from background work. A handler
// publishes a TaskRequestEvent naming a task type; whatever subscribed to that
// type turns it into queued work. The in-process emitter delivers
// synchronously, so an accepted event has been handed to its subscribers by
// the time EmitEvent returns.
package events
