package directive

import (
	"fmt"
	"strings"
)

// Format names the output a document is being expanded for. The resolver
// passes it through untouched; only the grammar looks at it.
type Format string

const (
	FormatHTML   Format = "html"
	FormatText   Format = "text"
	FormatLaTeX  Format = "latex"
	FormatMemoir Format = "memoir"
	FormatBeamer Format = "beamer"
	FormatOPML   Format = "opml"
	FormatODF    Format = "odf"
	FormatRTF    Format = "rtf"
	FormatLyX    Format = "lyx"
	FormatMMD    Format = "mmd"
)

var knownFormats = map[string]Format{
	"html":   FormatHTML,
	"text":   FormatText,
	"latex":  FormatLaTeX,
	"memoir": FormatMemoir,
	"beamer": FormatBeamer,
	"opml":   FormatOPML,
	"odf":    FormatODF,
	"rtf":    FormatRTF,
	"lyx":    FormatLyX,
	"mmd":    FormatMMD,
}

// ParseFormat maps a format name to its Format. An empty name means html.
func ParseFormat(name string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return FormatHTML, nil
	}
	f, ok := knownFormats[key]
	if !ok {
		return "", fmt.Errorf("unknown output format %q", name)
	}
	return f, nil
}

// Extension returns the file extension a wildcard target ("file.*")
// resolves to for this format.
func (f Format) Extension() string {
	switch f {
	case FormatHTML:
		return ".html"
	case FormatLaTeX, FormatMemoir, FormatBeamer:
		return ".tex"
	case FormatOPML:
		return ".opml"
	case FormatODF:
		return ".fodt"
	case FormatRTF:
		return ".rtf"
	case FormatLyX:
		return ".lyx"
	default:
		return ".txt"
	}
}
