// Package types defines the shared data model for the sync engine: typed
// custom-property values, identity mappings, and the hub-side artifact shapes.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind identifies which branch of a TypedValue is populated.
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindText
	KindInteger
	KindDecimal
	KindBoolean
	KindDate
	KindList
	KindMultiList
	KindUser
)

// String returns the lowercase kind name, for log messages.
func (k ValueKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	case KindMultiList:
		return "multilist"
	case KindUser:
		return "user"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// TypedValue is a tagged variant over the custom-property value types shared
// by both systems. Exactly one branch is populated; the zero value is absent.
type TypedValue struct {
	kind    ValueKind
	text    string
	integer int
	dec     decimal.Decimal
	boolean bool
	date    time.Time
	list    string
	multi   []string
	user    string
}

// Absent returns the empty value.
func Absent() TypedValue { return TypedValue{} }

// Text wraps a free-text value.
func Text(s string) TypedValue { return TypedValue{kind: KindText, text: s} }

// Integer wraps an integer value.
func Integer(n int) TypedValue { return TypedValue{kind: KindInteger, integer: n} }

// Decimal wraps a decimal value.
func Decimal(d decimal.Decimal) TypedValue { return TypedValue{kind: KindDecimal, dec: d} }

// Boolean wraps a boolean value.
func Boolean(b bool) TypedValue { return TypedValue{kind: KindBoolean, boolean: b} }

// Date wraps a timestamp, normalized to UTC.
func Date(t time.Time) TypedValue { return TypedValue{kind: KindDate, date: t.UTC()} }

// List wraps a single-select option, held as the option name or id string.
func List(option string) TypedValue { return TypedValue{kind: KindList, list: option} }

// MultiList wraps a multi-select set of option names or id strings.
func MultiList(options []string) TypedValue {
	return TypedValue{kind: KindMultiList, multi: options}
}

// User wraps a user login.
func User(login string) TypedValue { return TypedValue{kind: KindUser, user: login} }

// Kind reports which branch is populated.
func (v TypedValue) Kind() ValueKind { return v.kind }

// IsAbsent reports whether no branch is populated.
func (v TypedValue) IsAbsent() bool { return v.kind == KindAbsent }

// TextValue returns the text branch.
func (v TypedValue) TextValue() (string, bool) { return v.text, v.kind == KindText }

// IntValue returns the integer branch.
func (v TypedValue) IntValue() (int, bool) { return v.integer, v.kind == KindInteger }

// DecimalValue returns the decimal branch.
func (v TypedValue) DecimalValue() (decimal.Decimal, bool) {
	return v.dec, v.kind == KindDecimal
}

// BoolValue returns the boolean branch.
func (v TypedValue) BoolValue() (bool, bool) { return v.boolean, v.kind == KindBoolean }

// DateValue returns the date branch.
func (v TypedValue) DateValue() (time.Time, bool) { return v.date, v.kind == KindDate }

// ListValue returns the single-select branch.
func (v TypedValue) ListValue() (string, bool) { return v.list, v.kind == KindList }

// MultiListValue returns the multi-select branch.
func (v TypedValue) MultiListValue() ([]string, bool) {
	return v.multi, v.kind == KindMultiList
}

// UserValue returns the user-login branch.
func (v TypedValue) UserValue() (string, bool) { return v.user, v.kind == KindUser }

// DisplayString renders the value for logs and free-text targets.
func (v TypedValue) DisplayString() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindInteger:
		return fmt.Sprintf("%d", v.integer)
	case KindDecimal:
		return v.dec.String()
	case KindBoolean:
		return fmt.Sprintf("%t", v.boolean)
	case KindDate:
		return v.date.Format(time.RFC3339)
	case KindList:
		return v.list
	case KindMultiList:
		return fmt.Sprintf("%v", v.multi)
	case KindUser:
		return v.user
	}
	return ""
}
