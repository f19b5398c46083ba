package kvenv

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler and configures the
// log level based on the KVENV_LOG_LEVEL environment variable. Defaults to Info level.
//
// Call this once at process startup if the application wants kvenv's default logging
// configuration; the package otherwise logs through slog's existing default handler.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("KVENV_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
