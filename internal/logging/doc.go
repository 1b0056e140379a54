// Package logging provides structured logging for hindex.
// Logs are JSON via log/slog. By default they go to stderr only; with the
// --debug flag they are additionally written to a rotating file under
// ~/.hindex/logs/ so a failed overnight index run can be reconstructed.
package logging
