package logging

import "log"

const (
	// TraceLevel indicates a log message's level of criticality
	TraceLevel = iota
	// DebugLevel indicates a log message's level of criticality
	DebugLevel
	// InfoLevel indicates a log message's level of criticality
	InfoLevel
	// WarnLevel indicates a log message's level of criticality
	WarnLevel
	// ErrorLevel indicates a log message's level of criticality
	ErrorLevel
	// FatalLevel indicates a log message's level of criticality
	FatalLevel
)

// LogLevelToString translates a log level enum to a string representation
func LogLevelToString(level int) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "TRACE"
	}
}

// Logger emits messages at or above a minimum level, via the standard logger
type Logger struct {
	minLevel int
}

// CreateLogger is a factory for Loggers
func CreateLogger(minLevel int) *Logger {
	return &Logger{minLevel: minLevel}
}

// Logf logs a formatted message at the given level, if the level is enabled
func (l *Logger) Logf(level int, format string, v ...interface{}) {
	if l == nil || level < l.minLevel {
		return
	}
	log.Printf("[%s] "+format, append([]interface{}{LogLevelToString(level)}, v...)...)
}
