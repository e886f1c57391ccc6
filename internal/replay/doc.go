// Package replay drives state reconstruction over a selection of stored
// events and assembles the result.
//
// A replay is an independent unit of work: the Controller loads events once
// (the only blocking step), normalizes and filters them, and hands them to a
// Session. A batch replay runs the session to completion; an interactive one
// suspends between commands and holds no store connection while paused.
//
// Session life cycle:
//
//	Idle → Loading → Replaying ⇄ Paused → Completed
//	                     ↘ Failed (store unavailable)
//
// Every command returns an immutable State describing the session after it.
// Cancellation and timeouts end a session as Completed with the Cancelled or
// Truncated flag; partial steps are never dropped.
package replay
