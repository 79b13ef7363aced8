// Package waterfall resolves missing lead contact fields by walking an
// ordered chain of enrichment providers, cheapest first.
//
// For each field the resolver tries tiers in strictly increasing index
// order. A not_found answer moves to the next tier and puts the tier on
// cool-down for that lead. Transient failures are retried within the tier
// up to a fixed attempt budget. Every call is recorded as a
// ResolutionAttempt so the audit trail shows exactly what was tried and
// what it cost.
package waterfall
