// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance supporting different environments
// (development vs production) with console or JSON encoding.
//
// # Run Correlation
//
// Every sync invocation is tagged with a run id. The WithRunID helper
// attaches it to the log entry, ensuring that all logs belonging to one
// reconciliation pass can be correlated.
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("sync started")
//
//	l := logger.WithRunID(log, runID)
//	l.Warn("entity skipped", zap.Error(err))
package logger
