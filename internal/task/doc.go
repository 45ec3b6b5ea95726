// Package task runs background work for the agent service. It persists every
// task before it is queued, executes tasks on a worker pool and can delay a
// task on the clock, which is how the escalator schedules outer retries. It
// also hosts the periodic reminder sweep and can recover unfinished tasks
// after a restart.
package task
