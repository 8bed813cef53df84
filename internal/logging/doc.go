// Package logging provides the leveled logging interface used across
// backup-timeline.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// Messages are written through a zap logger: a colored console encoder when
// stderr is a terminal, JSON lines otherwise. The level is configured via the
// DEBUG or LOG_LEVEL environment variables and can be overridden at runtime
// with SetLevel.
package logging
