// Package logging constructs the structured slog logger used across the
// module. Output format (json or text) and level are configuration-driven;
// components derive scoped loggers with logger.With("component", ...).
package logging
