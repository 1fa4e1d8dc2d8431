// Package logging provides structured logging for iborker tools.
//
// It wraps Go's log/slog to emit JSON lines, with persistent attributes so
// every entry written while a client ID is held can be traced back to the
// tool, its category and the ID itself.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logDir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithTool("history").WithClientID(101).Info("client id allocated")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"client id allocated","tool":"history","client_id":101}
//
// An empty logDir logs to stderr. [NewLoggerWithRotation] rotates
// iborker.log by size; since several tool processes may share one log
// directory, each keeps its own append handle and rotation is best effort.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on entries.
package logging
