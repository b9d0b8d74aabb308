package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process-wide zerolog instance every component's logger is
// derived from via GetForComponent.
var Logger zerolog.Logger

// Initialize sets up the global logger. Output always goes to stdout in
// zerolog's console format; if LOG_FILE is set, every record is mirrored
// there as well so a round's full history survives a container restart
// without a log-aggregation sidecar.
func Initialize(logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}

	output := zerolog.MultiLevelWriter(consoleWriter)
	if path := os.Getenv("LOG_FILE"); path != "" {
		if file, err := FileWriter(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to open log file, logging to stdout only")
		} else {
			output = zerolog.MultiLevelWriter(consoleWriter, file)
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = Logger
}

// GetForComponent returns a logger with a component field set, so every
// record can be filtered back to the scheduler, round executor, state
// store, or whichever package emitted it.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter opens path for append, creating it if necessary, for use as
// an additional zerolog writer alongside the console.
func FileWriter(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}
