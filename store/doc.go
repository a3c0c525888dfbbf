// Package store provides the record store the core writes audit and
// observability records to: task outcomes, worker performance snapshots,
// rewards, and exported agent knowledge.
//
// The core never reads the store back for correctness; everything needed
// to schedule and learn lives in memory. The store exists so dashboards
// and offline analysis can subscribe to what happened.
//
// Two implementations are provided: MemoryStore for tests and
// single-process use, and NATSStore backed by a JetStream key-value
// bucket for durable, externally observable records.
package store
