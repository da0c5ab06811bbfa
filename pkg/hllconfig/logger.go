package hllconfig

import "log"

// Logger is the minimal Printf-style seam the core logs through. Embedders
// route it to their own logging stack; the background workers and the
// set's best-effort cleanup paths use it exclusively, never returning log
// output as an error.
type Logger interface {
	Printf(format string, args ...any)
}

// NopLogger discards everything. It is the zero-value-friendly default
// for callers that don't care about diagnostics.
type NopLogger struct{}

// Printf implements Logger by doing nothing.
func (NopLogger) Printf(string, ...any) {}

// StdLogger adapts the standard library's *log.Logger to Logger.
type StdLogger struct {
	L *log.Logger
}

// Printf implements Logger.
func (s StdLogger) Printf(format string, args ...any) {
	if s.L == nil {
		return
	}

	s.L.Printf(format, args...)
}
