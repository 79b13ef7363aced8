// Package dispatch is the root of the engine. For one "lead is due for
// channel X" event it resolves the missing contact field, asks the
// compliance gate, takes a slot from the resource pool, sends through the
// channel's provider, and records exactly one DispatchDecision.
//
// Work on one (lead, channel, sequence step) is serialized through a lock
// on its idempotency key, so at most one send per key can succeed.
//
// The package also exposes the admin overrides compliance staff use to lift
// a suppression. Neither override ever lifts a DNCR registration.
package dispatch
