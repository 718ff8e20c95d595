// Package webos speaks the local-network developer protocol exposed by
// webOS-style smart TVs: pairing challenge/confirmation, artifact install,
// application launch, health probing, and cursor-resumable log tailing.
// Connectivity failures are tagged transient so the owning components can
// apply their bounded retry policies; device-reported rejections are not.
package webos
