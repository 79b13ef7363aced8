// Package compliance decides whether an outbound action may fire for a
// lead, on a channel, at a given moment.
//
// The gate runs its checks in a fixed order and stops at the first hold:
//
//  1. suppression: the lead is flagged do-not-contact (blocks permanently)
//  2. DNCR: voice and SMS numbers on a do-not-call registry (blocks, and
//     suppresses the lead so later attempts stop at step 1)
//  3. business hours in the lead's timezone (defers to the next window)
//  4. approval mode: manual and co-pilot first touches wait for a human
//
// Registry answers are cached by E.164 number with an explicit expiry.
// Items awaiting approval go to a ReviewQueue.
package compliance
