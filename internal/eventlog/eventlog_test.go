package eventlog

import (
	"strings"
	"testing"
)

type capture struct {
	severities []Severity
	messages   []string
}

func (c *capture) Write(sev Severity, msg string) {
	c.severities = append(c.severities, sev)
	c.messages = append(c.messages, msg)
}

func TestChunkShortMessage(t *testing.T) {
	chunks := Chunk("hello", MaxEntryLen)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("Chunk(short) = %v, want single chunk", chunks)
	}
}

func TestChunkExactBoundary(t *testing.T) {
	msg := strings.Repeat("a", MaxEntryLen)
	chunks := Chunk(msg, MaxEntryLen)
	if len(chunks) != 1 {
		t.Errorf("len(chunks) = %d, want 1", len(chunks))
	}
}

func TestChunkLongMessage(t *testing.T) {
	// 62,500 chars must become 31000 + 31000 + 500.
	msg := strings.Repeat("x", 62500)
	chunks := Chunk(msg, MaxEntryLen)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 31000 || len(chunks[1]) != 31000 || len(chunks[2]) != 500 {
		t.Errorf("chunk lengths = %d,%d,%d, want 31000,31000,500",
			len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if strings.Join(chunks, "") != msg {
		t.Error("chunks do not concatenate to the original message")
	}
}

func TestTraceGating(t *testing.T) {
	sink := &capture{}

	quiet := New(sink, false)
	quiet.Tracef("invisible")
	if len(sink.messages) != 0 {
		t.Errorf("trace logged with tracing disabled: %v", sink.messages)
	}

	quiet.Warnf("warned")
	quiet.Errorf("failed")
	if len(sink.messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(sink.messages))
	}
	if sink.severities[0] != SeverityWarning || sink.severities[1] != SeverityError {
		t.Errorf("severities = %v", sink.severities)
	}

	loud := New(sink, true)
	loud.Tracef("visible %d", 1)
	if sink.messages[len(sink.messages)-1] != "visible 1" {
		t.Errorf("trace message = %q", sink.messages[len(sink.messages)-1])
	}
}

func TestLongErrorChunkedThroughLogger(t *testing.T) {
	sink := &capture{}
	log := New(sink, false)
	log.Errorf("%s", strings.Repeat("e", MaxEntryLen+1))
	if len(sink.messages) != 2 {
		t.Fatalf("got %d chunks, want 2", len(sink.messages))
	}
	if len(sink.messages[0]) != MaxEntryLen || len(sink.messages[1]) != 1 {
		t.Errorf("chunk lengths = %d,%d", len(sink.messages[0]), len(sink.messages[1]))
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	log.Tracef("no panic")
	log.Warnf("no panic")
	log.Errorf("no panic")
}
