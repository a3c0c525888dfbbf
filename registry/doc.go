// Package registry tracks the worker pool: which workers exist, what they
// can do, and how they have performed.
//
// Workers register with a type and a set of capability tags. The scheduler
// matches pending tasks against those tags and is the sole mutator of
// worker status; the registry itself does not enforce scheduling rules.
// Observers can Watch for membership and status changes.
package registry
