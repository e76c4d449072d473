package logging

import (
	"fmt"
	"path/filepath"
	"time"

	"scbuilder/internal/config"
)

// NewDispatcherFromConfig creates a dispatcher with writers for every
// configured receiver. globalAttrs are added to all events (OTLP resource
// attributes). errorLogDir is where delivery failures are recorded; empty
// disables the local error log.
func NewDispatcherFromConfig(receivers []config.ReceiverConfig, globalAttrs map[string]string, errorLogDir string) (*Dispatcher, error) {
	d := NewDispatcher()

	var errorLogger *ErrorLogger
	if errorLogDir != "" {
		var err error
		errorLogger, err = NewErrorLogger(filepath.Join(errorLogDir, "logging-errors.log"))
		if err != nil {
			return nil, fmt.Errorf("failed to create error logger: %w", err)
		}
		d.errorLogger = errorLogger
	}

	for i, r := range receivers {
		w, err := newWriterFromConfig(r, globalAttrs, errorLogger)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("receiver %d (%s): %w", i, r.Type, err)
		}
		d.AddWriter(w)
	}

	return d, nil
}

// newWriterFromConfig creates a Writer from a ReceiverConfig.
func newWriterFromConfig(r config.ReceiverConfig, globalAttrs map[string]string, errorLogger *ErrorLogger) (Writer, error) {
	switch r.Type {
	case "syslog":
		return NewSyslogWriter(SyslogConfig{
			Facility:    r.Facility,
			Tag:         r.Tag,
			ErrorLogger: errorLogger,
		})

	case "syslog-remote":
		protocol := r.Protocol
		if protocol == "" {
			protocol = "udp"
		}
		return NewSyslogWriter(SyslogConfig{
			Network:     protocol,
			Address:     r.Address,
			Facility:    r.Facility,
			Tag:         r.Tag,
			ErrorLogger: errorLogger,
		})

	case "otlp":
		endpoint := r.Endpoint
		if endpoint == "" {
			endpoint = r.Address
		}

		var flushInterval time.Duration
		if r.FlushInterval != "" {
			parsed, err := time.ParseDuration(r.FlushInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid flush_interval %q: %w", r.FlushInterval, err)
			}
			flushInterval = parsed
		}

		return NewOTLPWriter(OTLPConfig{
			Endpoint:           endpoint,
			Protocol:           r.Protocol,
			Headers:            r.Headers,
			BatchSize:          r.BatchSize,
			FlushInterval:      flushInterval,
			Insecure:           r.Insecure,
			ResourceAttributes: globalAttrs,
			ErrorLogger:        errorLogger,
		})

	default:
		return nil, fmt.Errorf("unknown receiver type: %q", r.Type)
	}
}
