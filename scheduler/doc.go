// Package scheduler implements the task orchestrator: a worker pool with
// declared capabilities, a priority task queue, and a recurring tick that
// matches pending tasks to idle, capability-compatible workers and runs
// them through pluggable execution strategies.
//
// The orchestrator is constructed per process and passed by handle; there
// is no ambient global instance. Task failures are isolated: they are
// recorded on the task and never cascade into the scheduling loop or
// other workers.
package scheduler
