package pipeline

import "log/slog"

// EventSink receives stage progress notifications while a run advances.
// Messages for one run arrive in emission order; a stage's completion or
// failure message is always last for that stage.
type EventSink interface {
	RunEvent(runID string, stage Stage, message string)
}

// NopSink discards all events.
type NopSink struct{}

// RunEvent implements EventSink.
func (NopSink) RunEvent(string, Stage, string) {}

// LogSink forwards events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates an EventSink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// RunEvent implements EventSink.
func (s *LogSink) RunEvent(runID string, stage Stage, message string) {
	s.logger.Info("pipeline event",
		slog.String("run_id", runID),
		slog.String("stage", string(stage)),
		slog.String("message", message),
	)
}

// Compile-time checks.
var (
	_ EventSink = NopSink{}
	_ EventSink = (*LogSink)(nil)
)
