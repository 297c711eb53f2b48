// SPDX-License-Identifier: MIT
package transport

import (
	applog "emgrep/internal/log"

	"github.com/inconshreveable/log15"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct {
	logger log15.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{logger: applog.New("transport", "log")}
	lt.logger.Info("using logging transport")
	return lt
}

// Send logs the received data. Envelope frames arrive ten times a second, so
// they are logged at debug; everything else at info.
func (lt *LoggingTransport) Send(data any) error {
	switch m := data.(type) {
	case EnvelopeFrame:
		lt.logger.Debug("envelope", "rms", m.RMS, "ratio", m.Ratio, "state", m.State, "reps", m.Reps)
	case RepMessage:
		lt.logger.Info("rep", "kind", m.Kind, "reps", m.Reps, "duration", m.DurationSeconds)
	case SetMessage:
		lt.logger.Info("set finished", "summary", m.Summary)
	default:
		lt.logger.Debug("message", "data", data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.logger.Debug("close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
