// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/inconshreveable/log15"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// lvl15 maps a LogLevel onto the log15 level used for handler filtering.
func (l LogLevel) lvl15() log15.Lvl {
	switch l {
	case LevelDebug:
		return log15.LvlDebug
	case LevelInfo:
		return log15.LvlInfo
	case LevelWarn:
		return log15.LvlWarn
	case LevelError:
		return log15.LvlError
	default:
		return log15.LvlCrit
	}
}

// --- Global Logger State ---

// currentLevel holds the current global log level atomically.
var currentLevel atomic.Uint32

// root is the log15 logger every component logger descends from.
var root = log15.New()

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level and re-installs the filtering handler.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	root.SetHandler(log15.LvlFilterHandler(level.lvl15(),
		log15.StreamHandler(os.Stderr, log15.TerminalFormat())))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetHandler replaces the output handler, ignoring the level filter. Tests use
// it with log15.DiscardHandler to keep output quiet.
func SetHandler(h log15.Handler) {
	root.SetHandler(h)
}

// New returns a structured logger carrying the given key/value context, e.g.
// New("component", "engine").
func New(ctx ...interface{}) log15.Logger {
	return root.New(ctx...)
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message.
func Debugf(format string, v ...interface{}) {
	root.Debug(fmt.Sprintf(format, v...))
}

// Infof logs a formatted info message.
func Infof(format string, v ...interface{}) {
	root.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...interface{}) {
	root.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...interface{}) {
	root.Error(fmt.Sprintf(format, v...))
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...interface{}) {
	root.Crit(fmt.Sprintf(format, v...))
	os.Exit(1)
}
