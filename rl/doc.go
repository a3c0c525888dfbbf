// Package rl implements the Q-learning core: agents that own a sparse
// Q-table and select actions epsilon-greedily, and an environment that
// applies action effects, computes rewards, distributes them across
// agents, and tracks training sessions.
//
// The environment's Step call is synchronous and side-effecting. Callers
// must serialize Step calls per agent; at most one step per agent may be
// in flight at a time.
package rl
