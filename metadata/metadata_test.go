package metadata

import (
	"strings"
	"testing"
)

func TestHas(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"mmd block", "title: Test\nauthor: Me\n\n# Introduction\n", true},
		{"mmd key with spaces", "Base Header Level: 2\n\nBody", true},
		{"yaml front matter", "---\ntitle: Test\n---\n# Body\n", true},
		{"heading first", "# Introduction\n\ntitle: Test\n", false},
		{"url first line", "http://example.com\n", false},
		{"directive first line", "{{header.md}}\n", false},
		{"empty", "", false},
		{"unterminated yaml", "---\ntitle: Test\n# Body\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Has([]byte(tt.text)); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStrip_MMDBlock(t *testing.T) {
	got := Strip([]byte("title: Test\n  continued\nauthor: Me\n\n# Introduction\n"))
	if string(got) != "# Introduction\n" {
		t.Errorf("expected body only, got %q", got)
	}
}

func TestStrip_YAMLFrontMatter(t *testing.T) {
	got := Strip([]byte("---\ntitle: Test\n---\nBody text\n"))
	if strings.TrimSpace(string(got)) != "Body text" {
		t.Errorf("expected body only, got %q", got)
	}
}

func TestStrip_NoMetadataUnchanged(t *testing.T) {
	in := []byte("Plain paragraph.\n\nAnother.")
	got := Strip(in)
	if string(got) != string(in) {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestStrip_MetadataOnly(t *testing.T) {
	got := Strip([]byte("title: Only"))
	if len(got) != 0 {
		t.Errorf("expected empty body, got %q", got)
	}
}

func TestCut_ReportsSkippedLines(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		body  string
		lines int
	}{
		{"mmd block", "title: Test\nauthor: Me\n\nBody\n", "Body\n", 3},
		{"no metadata", "Body\n", "Body\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, lines := Cut([]byte(tt.text))
			if strings.TrimSpace(string(body)) != strings.TrimSpace(tt.body) {
				t.Errorf("expected body %q, got %q", tt.body, body)
			}
			if lines != tt.lines {
				t.Errorf("expected %d skipped lines, got %d", tt.lines, lines)
			}
		})
	}
}

func TestCut_YAMLLinesMapBodyToSource(t *testing.T) {
	body, lines := Cut([]byte("---\ntitle: Test\n---\nBody\n"))
	i := strings.Index(string(body), "Body")
	if i < 0 {
		t.Fatalf("expected body text, got %q", body)
	}
	// "Body" is on line 4 of the source.
	if got := 1 + lines + strings.Count(string(body[:i]), "\n"); got != 4 {
		t.Errorf("expected line 4, got %d", got)
	}
}
