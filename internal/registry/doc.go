// Package registry persists the set of known devices and their pairing
// state in a local SQLite database, and hands out per-alias file locks so
// state-mutating operations (pair, deploy, remove) on the same device are
// serialized across processes while different devices proceed concurrently.
package registry
