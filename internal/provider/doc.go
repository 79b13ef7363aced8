// Package provider implements the uniform adapter contract for third-party
// data and messaging vendors.
//
// An adapter makes one call and classifies the outcome; it never mutates the
// lead or the sending resource. Two capabilities share the contract:
//
//   - Enricher: look up a missing contact field for a lead
//   - Sender:   deliver a message on a channel through an acquired resource
//
// The set of adapter variants is fixed and selected from configuration at
// startup by a Registry:
//
//   - json_api.go: generic HTTP lookup vendor (enricher)
//   - scraper.go:  headless-browser scraping service (enricher)
//   - ses.go:      AWS SES v2 mailbox sends (sender)
//   - webhook.go:  SMS and voice telephony webhooks (sender)
//   - linkedin.go: social seat messaging over OAuth2 client credentials (sender)
//   - postal.go:   print-and-mail vendor (sender)
//   - static.go:   deterministic in-process adapter for tests and local runs
package provider
