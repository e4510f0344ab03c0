package normalize

import (
	"strings"
	"testing"
)

func TestNormalizeMojibake(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"curly apostrophe", "doesnâ€™t", "doesn’t"},
		{"left quote", "â€œquoted", "“quoted"},
		{"ellipsis", "waitâ€¦", "wait…"},
		{"en dash", "1â€“2", "1–2"},
		{"em dash", "aâ€”b", "a—b"},
		{"vietnamese a-hook", "cáº£m", "cảm"},
		{"vietnamese d-bar", "Ä‘iá»‡n", "điện"},
		{"vietnamese u-horn", "Æ°u", "ưu"},
		{"clean text untouched", "xin chào", "xin chào"},
		// Chained corruption: repairing the first sequence exposes a second
		// one, which a single replacer pass would leave behind.
		{"chained vietnamese", "Ã¡»", "ề"},
		{"chained apostrophe", "Ã¢€™", "’"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeControls(t *testing.T) {
	in := "\uFEFFa\x00b\x08c\x1Fd"
	if got := Normalize(in); got != "abcd" {
		t.Errorf("got %q, want %q", got, "abcd")
	}

	// Unicode line/paragraph separators become newlines.
	if got := Normalize("a\u2028b\u2029c"); got != "a\nb\nc" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeAmpersands(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a & b", "a &amp; b"},
		{"a &amp; b", "a &amp; b"},
		{"&nbsp;x", "&nbsp;x"},
		{"&#160;x", "&#160;x"},
		{"&#x1F600;y", "&#x1F600;y"},
		{"AT&T", "AT&amp;T"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "a  \t b\n\n\n\nc\n  <p>  </p>  <p>x</p>"
	got := Normalize(in)
	if strings.Contains(got, "  ") {
		t.Errorf("horizontal runs not collapsed: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank lines not capped: %q", got)
	}
	if !strings.Contains(got, "</p><p>") {
		t.Errorf("inter-tag whitespace not removed: %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"doesnâ€™t  matter &  more\n\n\n\n<p> </p> <td></td>",
		"cáº£m Æ¡n & &amp; \u2028 ok",
		"plain text with nothing to fix",
		// Repair output that re-forms a repairable sequence must be fully
		// repaired in one call.
		"Ã¡»",
		"Ã¢€™",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}
