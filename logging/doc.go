// Package logging provides a minimal logging interface and adapters for the kernel.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the dispatcher, spooler and hook registry use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - KernelLogger with component / session / batch context
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	d, err := dispatch.New(executor, func(o *dispatch.Options) { o.Logger = logger })
package logging
