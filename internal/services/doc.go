// Package services defines the shared failure taxonomy and context
// annotations used across the deployment pipeline. Components wrap errors
// with a sentinel marker so the CLI can classify a failure without parsing
// message text, and carry device/stage identity through context so log
// records stay correlated.
package services
