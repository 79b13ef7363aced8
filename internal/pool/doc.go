// Package pool manages the finite sending resources a client owns: phone
// numbers, mailboxes and social seats.
//
// Each resource has a capacity per counting window. Acquire reserves one
// slot on the least-used eligible resource with a single atomic
// check-and-increment in the CounterStore, so usage never exceeds capacity
// no matter how many workers acquire concurrently. Counters are keyed by
// the window start and reset by rolling over to a new key.
//
// Release reports how the send went. Success keeps the slot and clears the
// failure streak. Failure refunds the slot and extends the streak; a long
// enough streak demotes the resource to degraded, then suspended.
//
// Warming resources ramp up along a day-indexed schedule and graduate to
// active once the ramp reaches their full capacity.
package pool
