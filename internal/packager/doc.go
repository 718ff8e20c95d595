// Package packager validates an application manifest and drives the external
// packaging tool that turns a source directory into an installable artifact.
// The tool is invoked through an Executor interface so orchestration logic is
// testable without the real binary. Identical inputs reuse a cached artifact
// keyed by manifest identity and source content hash.
package packager
