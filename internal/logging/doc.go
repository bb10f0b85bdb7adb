// Package logging builds the slog loggers used across melt and carries the
// standardized attribute helpers and field names.
package logging
