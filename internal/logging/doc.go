// Package logging provides a simple leveled logging interface for the
// media manager, backed by logrus.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true. Configure adds an optional rotating log file (lumberjack)
// and JSON output.
package logging
