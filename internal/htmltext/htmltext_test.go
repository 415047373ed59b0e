package htmltext

import "testing"

func TestToPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain passthrough", "no markup here", "no markup here"},
		{"paragraphs", "<p>first</p><p>second</p>", "first\nsecond"},
		{"line breaks", "line one<br>line two", "line one\nline two"},
		{"nested markup", "<div><b>bold</b> and <i>italic</i></div>", "bold and italic"},
		{"list items", "<ul><li>a</li><li>b</li></ul>", "a\nb"},
		{"script dropped", "<p>kept</p><script>alert(1)</script>", "kept"},
		{"entities decoded", "<p>a &amp; b</p>", "a & b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToPlainText(tt.in); got != tt.want {
				t.Errorf("ToPlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"escapes entities", "a < b & c", "a &lt; b &amp; c"},
		{"newlines become breaks", "one\ntwo", "one<br />two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPlainText(tt.in); got != tt.want {
				t.Errorf("FromPlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTripKeepsText(t *testing.T) {
	original := "Crash on login\nSteps: open app"
	if got := ToPlainText(FromPlainText(original)); got != original {
		t.Errorf("round trip = %q, want %q", got, original)
	}
}
