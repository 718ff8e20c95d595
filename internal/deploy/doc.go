// Package deploy sequences one install+launch attempt against a paired
// device: pending → installing → launching → running, with any stage able to
// fail. Install retries transient connectivity failures with backoff; launch
// is never retried; running is confirmed by a bounded health probe. The
// whole sequence is never retried automatically — the operator re-invokes.
package deploy
