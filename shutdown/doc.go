// Package shutdown coordinates graceful teardown of the long-running
// pieces of a swarm: the orchestrator stops assigning first, learning
// sessions are ended next, and transports and stores close last.
//
// Handlers register with a phase. Lower phases run first, and handlers
// within the same phase run concurrently.
package shutdown
