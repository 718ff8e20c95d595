// Package pairing establishes trust with a device on the local network:
// probe with bounded backoff, request a challenge, wait for the operator to
// confirm on the device itself, then persist the issued token through the
// registry. Nothing is persisted for pairings that time out or are rejected.
package pairing
