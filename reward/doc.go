// Package reward turns action outcomes into scalar reward signals.
//
// The calculator is a pure function of the action taken, the state before
// and after, the task outcome, and optional user feedback: the same inputs
// and configuration always produce the same value. Bonus and penalty rules
// are small condition expressions over named numeric fields, parsed into a
// typed AST at configuration time; they are never executed as code, and a
// rule that fails to parse or evaluate is treated as not matching.
package reward
