package logging

import (
	"encoding/json"
	"fmt"
	"log/syslog"
	"time"
)

// SyslogConfig contains syslog writer configuration.
type SyslogConfig struct {
	// Network is empty for local syslog, or "udp"/"tcp" for remote.
	Network string

	// Address is the remote syslog server address (e.g. "logs.example.com:514").
	// Empty for local syslog.
	Address string

	// Facility is the syslog facility (e.g. "local0", "user", "daemon").
	Facility string

	// Tag is the program tag for syslog messages.
	Tag string

	// ErrorLogger records delivery failures (optional).
	ErrorLogger *ErrorLogger
}

// SyslogWriter sends events to syslog, local or remote.
type SyslogWriter struct {
	writer      *syslog.Writer
	errorLogger *ErrorLogger
	address     string // for error messages
}

// syslogEvent is the JSON shape written to syslog.
type syslogEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Tool      string         `json:"tool,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// NewSyslogWriter connects to syslog.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	priority := parseFacility(cfg.Facility) | syslog.LOG_INFO

	tag := cfg.Tag
	if tag == "" {
		tag = "scbuilder"
	}

	var (
		writer  *syslog.Writer
		err     error
		address = "local"
	)
	if cfg.Network != "" && cfg.Address != "" {
		writer, err = syslog.Dial(cfg.Network, cfg.Address, priority, tag)
		address = cfg.Network + "://" + cfg.Address
	} else {
		writer, err = syslog.New(priority, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}

	return &SyslogWriter{
		writer:      writer,
		errorLogger: cfg.ErrorLogger,
		address:     address,
	}, nil
}

// Write sends an event to syslog as structured JSON.
func (s *SyslogWriter) Write(ev *Event) error {
	msg, err := json.Marshal(syslogEvent{
		Timestamp: ev.Timestamp,
		Level:     ev.Level,
		Message:   ev.Message,
		Tool:      ev.Tool,
		RunID:     ev.RunID,
		Fields:    ev.Fields,
	})
	if err != nil {
		msg = []byte(ev.Message)
	}

	var writeErr error
	switch ev.Level {
	case LevelDebug:
		writeErr = s.writer.Debug(string(msg))
	case LevelWarn:
		writeErr = s.writer.Warning(string(msg))
	case LevelError:
		writeErr = s.writer.Err(string(msg))
	default:
		writeErr = s.writer.Info(string(msg))
	}

	if writeErr != nil {
		s.errorLogger.Logf("syslog", "failed to write to %s: %v", s.address, writeErr)
	}
	return writeErr
}

// Close closes the syslog connection.
func (s *SyslogWriter) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}

// parseFacility converts a facility name to syslog.Priority.
func parseFacility(name string) syslog.Priority {
	switch name {
	case "kern":
		return syslog.LOG_KERN
	case "user":
		return syslog.LOG_USER
	case "mail":
		return syslog.LOG_MAIL
	case "daemon":
		return syslog.LOG_DAEMON
	case "auth":
		return syslog.LOG_AUTH
	case "syslog":
		return syslog.LOG_SYSLOG
	case "cron":
		return syslog.LOG_CRON
	case "authpriv":
		return syslog.LOG_AUTHPRIV
	case "local1":
		return syslog.LOG_LOCAL1
	case "local2":
		return syslog.LOG_LOCAL2
	case "local3":
		return syslog.LOG_LOCAL3
	case "local4":
		return syslog.LOG_LOCAL4
	case "local5":
		return syslog.LOG_LOCAL5
	case "local6":
		return syslog.LOG_LOCAL6
	case "local7":
		return syslog.LOG_LOCAL7
	default:
		return syslog.LOG_LOCAL0
	}
}
