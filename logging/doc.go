// Package logging provides a minimal logging interface and adapters for refinery.
//
// The Logger interface defines the standard leveled methods (Debug, Info,
// Warn, Error) that loops, pipelines and runners use for observability. The
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - RunLogger, a slog backed logger with run/component context and
//     helpers for step, model call and run completion records
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	l := loop.New(critic, refiner, loop.WithLogger(logger.WithComponent("loop")))
package logging
