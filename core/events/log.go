package events

import (
	"log/slog"

	"bridgelet/core/types"
)

// LogEmitter forwards every event to a structured logger. Events carrying a
// typed payload have their attributes flattened into the log record.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates an emitter writing to the provided logger; nil falls
// back to the process default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(evt Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	attrs := []any{slog.String("eventType", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.logger.Info("event", attrs...)
}
