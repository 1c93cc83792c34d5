// Package logging provides structured logging for rotelhex.
//
// This package wraps zap logger with convenience functions for common logging
// patterns. It provides both general logging functions and specialized
// functions for the serial protocol.
//
// # Log Levels
//
//   - Debug: Frame dumps, dropped frames, websocket traffic
//   - Info: Port events, HTTP requests, label programming
//   - Warn: Channel loss and reopen attempts
//   - Error: Startup failures, monitor loop exits
//
// # Specialized Logging
//
//	logging.LogFrame("tx", cmd.Raw)
//	logging.LogPortEvent("/dev/ttyUSB0", "opened")
//	logging.LogWebSocketMessage(remoteAddr, "sent", msgType, payload)
//
// # Configuration
//
// Logging is silent unless a level is given, either explicitly or through
// ROTEL_LOG_LEVEL:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// InitializeWithFile adds a size-rotated log file (lumberjack) next to stdout.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// are meant to be called once at startup.
package logging
