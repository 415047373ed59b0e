package hub

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionExpired is returned by the transport when the hub session has
// timed out. The engine re-authenticates at the next checkpoint.
var ErrSessionExpired = errors.New("hub session expired")

// FieldMessage is one field-level validation message.
type FieldMessage struct {
	FieldName string
	Message   string
}

// ValidationFault is the hub's typed validation error: a summary plus
// field-level messages. The engine logs it as a single structured entry and
// skips the artifact.
type ValidationFault struct {
	Summary  string
	Messages []FieldMessage
}

func (f *ValidationFault) Error() string {
	var b strings.Builder
	b.WriteString(f.Summary)
	for _, m := range f.Messages {
		fmt.Fprintf(&b, "; %s: %s", m.FieldName, m.Message)
	}
	return b.String()
}

// IsSessionExpired reports whether err is (or wraps) a session expiry.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
