// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	sessionID string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		sessionID: l.sessionID,
	}
}

// WithSession returns a new logger tagged with the given session ID.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		sessionID: sessionID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		f := fields[0]
		if l.sessionID != "" {
			f = cloneFields(f)
			f["session"] = l.sessionID
		}
		fieldStr = formatFields(f)
	} else if l.sessionID != "" {
		fieldStr = formatFields(map[string]interface{}{"session": l.sessionID})
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// cloneFields copies a field map so session tagging never mutates caller state.
func cloneFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// DispatchStart logs the start of a routed delegation.
func (l *Logger) DispatchStart(agentID string) {
	l.Info("dispatch_start", map[string]interface{}{
		"agent": agentID,
	})
}

// DispatchComplete logs the outcome of a routed delegation.
func (l *Logger) DispatchComplete(agentID string, duration time.Duration, outcome string) {
	l.Info("dispatch_complete", map[string]interface{}{
		"agent":    agentID,
		"duration": duration.String(),
		"outcome":  outcome,
	})
}

// AuthzDecision logs an authorization decision. The credential never
// appears here; only the caller identity and the verdict.
func (l *Logger) AuthzDecision(caller, agentID string, allowed bool, reason string) {
	fields := map[string]interface{}{
		"caller": caller,
		"agent":  agentID,
		"allow":  allowed,
	}
	if !allowed {
		fields["reason"] = reason
		l.Warn("authz_deny", fields)
		return
	}
	l.Debug("authz_allow", fields)
}

// PhaseStart logs the start of a remediation phase.
func (l *Logger) PhaseStart(runID, phase string) {
	l.Info("phase_start", map[string]interface{}{
		"run":   runID,
		"phase": phase,
	})
}

// PhaseComplete logs the completion of a remediation phase.
func (l *Logger) PhaseComplete(runID, phase string, duration time.Duration, outcome string) {
	l.Info("phase_complete", map[string]interface{}{
		"run":      runID,
		"phase":    phase,
		"duration": duration.String(),
		"outcome":  outcome,
	})
}

// RunComplete logs the terminal status of a remediation run.
func (l *Logger) RunComplete(runID, status string, duration time.Duration) {
	l.Info("run_complete", map[string]interface{}{
		"run":      runID,
		"status":   status,
		"duration": duration.String(),
	})
}
