// Package logging provides application-wide logging configuration.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var debugEnabled bool

// Init initializes the global logger with a console writer on stderr.
func Init(debug bool) {
	InitWriter(os.Stderr, debug, false)
}

// InitWriter initializes the global logger on w. When jsonOutput is set the
// logger writes one JSON object per line instead of console formatting.
func InitWriter(w io.Writer, debug, jsonOutput bool) {
	debugEnabled = debug
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	if jsonOutput {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	})
}

// DebugEnabled reports whether debug logging is enabled.
func DebugEnabled() bool {
	return debugEnabled
}

// Task returns a child logger tagged with a task id and test index.
func Task(taskID string, testIndex int) zerolog.Logger {
	return log.With().Str("task_id", taskID).Int("test_index", testIndex).Logger()
}
