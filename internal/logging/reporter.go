package logging

import (
	"fmt"
	"time"
)

// Reporter emits build events for one component (matrix generation, local
// builds). Nil-safe: a nil Reporter drops everything, so callers never
// have to guard event emission.
type Reporter struct {
	component  string
	runID      string
	dispatcher *Dispatcher
}

// NewReporter creates a reporter for the given component. The dispatcher
// may be nil.
func (d *Dispatcher) NewReporter(component string) *Reporter {
	if d == nil {
		return nil
	}
	return &Reporter{component: component, dispatcher: d}
}

// WithRun returns a reporter that stamps events with the plan run ID.
func (r *Reporter) WithRun(runID string) *Reporter {
	if r == nil {
		return nil
	}
	return &Reporter{component: r.component, runID: runID, dispatcher: r.dispatcher}
}

// Infof emits an informational event.
func (r *Reporter) Infof(format string, args ...any) {
	r.emit(LevelInfo, "", format, args...)
}

// Warnf emits a warning event.
func (r *Reporter) Warnf(format string, args ...any) {
	r.emit(LevelWarn, "", format, args...)
}

// Errorf emits an error event.
func (r *Reporter) Errorf(format string, args ...any) {
	r.emit(LevelError, "", format, args...)
}

// Tool emits an informational event about a specific tool.
func (r *Reporter) Tool(tool, format string, args ...any) {
	r.emit(LevelInfo, tool, format, args...)
}

func (r *Reporter) emit(level Level, tool, format string, args ...any) {
	if r == nil || r.dispatcher == nil {
		return
	}
	_ = r.dispatcher.Write(&Event{
		Timestamp: time.Now(),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		Tool:      tool,
		RunID:     r.runID,
		Fields: map[string]any{
			"component": r.component,
		},
	})
}
