// Package eventlog is the boundary to the host's event-log sink. The engine
// reports trace, warning, and error entries through a single sink; the host
// decides where they land.
package eventlog

import "fmt"

// MaxEntryLen is the platform-imposed ceiling on a single log entry. Longer
// messages are chunked into slices of this length.
const MaxEntryLen = 31000

// Severity classifies a log entry.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "trace"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Sink receives log entries. Implementations are host-owned and must not
// assume entries arrive shorter than MaxEntryLen; the Logger guarantees it.
type Sink interface {
	Write(severity Severity, message string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(severity Severity, message string)

func (f SinkFunc) Write(severity Severity, message string) { f(severity, message) }

// Logger wraps a Sink with severity helpers and chunking. Trace entries are
// gated by the trace flag; warnings and errors always pass through.
type Logger struct {
	sink  Sink
	trace bool
}

// New creates a Logger over the given sink. A nil sink yields a logger that
// drops everything.
func New(sink Sink, trace bool) *Logger {
	return &Logger{sink: sink, trace: trace}
}

// TraceEnabled reports whether trace entries are being emitted.
func (l *Logger) TraceEnabled() bool { return l != nil && l.trace }

// Tracef logs a trace entry when tracing is enabled.
func (l *Logger) Tracef(format string, args ...interface{}) {
	if l == nil || l.sink == nil || !l.trace {
		return
	}
	l.emit(SeverityTrace, fmt.Sprintf(format, args...))
}

// Warnf logs a warning entry.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}
	l.emit(SeverityWarning, fmt.Sprintf(format, args...))
}

// Errorf logs an error entry.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}
	l.emit(SeverityError, fmt.Sprintf(format, args...))
}

func (l *Logger) emit(sev Severity, msg string) {
	for _, chunk := range Chunk(msg, MaxEntryLen) {
		l.sink.Write(sev, chunk)
	}
}

// Chunk splits s into slices of at most size bytes. The slices concatenate
// byte-for-byte to the original. An empty string yields one empty chunk so
// that every emit reaches the sink.
func Chunk(s string, size int) []string {
	if size <= 0 || len(s) <= size {
		return []string{s}
	}
	chunks := make([]string, 0, (len(s)+size-1)/size)
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}
