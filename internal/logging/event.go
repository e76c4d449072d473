// Package logging forwards scbuilder build events to remote destinations
// (syslog, OTLP collectors) so CI runs leave a trace outside the job log.
package logging

import (
	"sync"
	"time"
)

// Level represents event severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one build event to be forwarded.
type Event struct {
	Timestamp time.Time
	Level     Level
	Message   string

	// Tool is the catalog tool the event concerns, if any.
	Tool string

	// RunID is the plan run the event belongs to, if any.
	RunID string

	Fields map[string]any
}

// attributes flattens the event into a key-value map for structured
// backends. Tool and RunID are folded in alongside Fields.
func (e *Event) attributes() map[string]any {
	attrs := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		attrs[k] = v
	}
	if e.Tool != "" {
		attrs["tool"] = e.Tool
	}
	if e.RunID != "" {
		attrs["run_id"] = e.RunID
	}
	return attrs
}

// Writer is the interface for event destinations.
type Writer interface {
	// Write sends an event to the destination.
	Write(ev *Event) error

	// Close flushes any buffered data and closes the writer.
	Close() error
}

// Dispatcher fans out events to multiple writers.
type Dispatcher struct {
	writers     []Writer
	errorLogger *ErrorLogger
	mu          sync.RWMutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// AddWriter adds a writer to the dispatcher.
func (d *Dispatcher) AddWriter(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, w)
}

// Write sends an event to all registered writers. Errors from individual
// writers are ignored so one dead receiver cannot starve the rest.
func (d *Dispatcher) Write(ev *Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.writers {
		_ = w.Write(ev)
	}
	return nil
}

// Close closes all registered writers and the error logger.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.writers {
		_ = w.Close()
	}
	if d.errorLogger != nil {
		_ = d.errorLogger.Close()
	}
	d.writers = nil
	return nil
}

// HasWriters reports whether any writers are registered.
func (d *Dispatcher) HasWriters() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.writers) > 0
}
