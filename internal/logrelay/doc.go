// Package logrelay streams a device's runtime logs to the operator. A
// session tails the device's NDJSON log endpoint, survives connection
// drops by reconnecting with capped exponential backoff, and suppresses
// duplicate lines across reconnects using the device sequence cursor.
package logrelay
