package observability

import (
	"fmt"
	"log"
	"strings"
)

// StdLogger adapts a standard library logger to the Logger contract. Fields
// render as trailing key=value pairs.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger wraps the given standard logger. A nil logger is rejected in
// favour of the package noop.
func NewStdLogger(logger *log.Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return &StdLogger{logger: logger}
}

func (l *StdLogger) Debug(msg string, fields ...Field) { l.print("DEBUG", msg, fields) }
func (l *StdLogger) Info(msg string, fields ...Field)  { l.print("INFO", msg, fields) }
func (l *StdLogger) Error(msg string, fields ...Field) { l.print("ERROR", msg, fields) }

func (l *StdLogger) print(level, msg string, fields []Field) {
	if len(fields) == 0 {
		l.logger.Printf("%s %s", level, msg)
		return
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", field.Key, field.Value))
	}
	l.logger.Printf("%s %s %s", level, msg, strings.Join(parts, " "))
}
