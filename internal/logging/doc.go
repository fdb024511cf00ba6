// Package logging wraps log/slog with the console and JSON handlers the
// daemon uses, plus context-aware helpers that stamp media/job identifiers
// onto every record.
package logging
