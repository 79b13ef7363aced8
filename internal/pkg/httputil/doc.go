// Package httputil holds the JSON response and request helpers every API
// handler uses, so error envelopes and logging look the same everywhere.
package httputil
