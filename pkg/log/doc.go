// Package log provides the structured logging facade used across opendata.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that routes records through the
// formatter/output pipeline, so the output format stays consistent no matter
// which path a record takes.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("bench"))
//	l.Info("run started", log.Int("partitions", 4))
//
// # Interop
//
// To capture stdlib log output (Pebble logs through it), use RedirectStdLog.
package log
