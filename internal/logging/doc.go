// Package logging builds the slog loggers used by the CLI and the pipeline
// components. It provides a console handler for operator output, a JSON
// handler for machine consumption, and helpers that merge context-carried
// device/stage identity into log records.
package logging
