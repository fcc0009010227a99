// Package logging builds the application slog logger and standardizes the
// structured field names used across components. It offers a console handler
// for interactive use, a JSON handler for machine consumption, and helpers
// that derive logger attributes from context annotations.
package logging
