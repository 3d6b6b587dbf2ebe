// Package metadata detects and strips the metadata block at the top of a
// MultiMarkdown document. It never interprets keys or values.
package metadata

import (
	"bytes"
	"regexp"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// Only the YAML fence is recognised; "{" and ";;;" openers collide with
// ordinary document text such as a leading "{{file}}" directive.
var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// mmdKeyLine matches a MultiMarkdown "Key: value" line.
var mmdKeyLine = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]*:([ \t].*|)$`)

// Has reports whether text opens with a metadata block.
func Has(text []byte) bool {
	if _, ok := frontMatterBody(text); ok {
		return true
	}
	return hasMMDBlock(text)
}

// Strip returns text without its leading metadata block.
func Strip(text []byte) []byte {
	body, _ := Cut(text)
	return body
}

// Cut splits off the leading metadata block and reports how many lines it
// spanned, so positions in the body can be mapped back to the source.
func Cut(text []byte) (body []byte, lines int) {
	if body, ok := frontMatterBody(text); ok {
		start := len(text) - len(body)
		if i := bytes.LastIndex(text, body); len(body) > 0 && i >= 0 {
			start = i
		}
		return body, bytes.Count(text[:start], []byte("\n"))
	}
	if !hasMMDBlock(text) {
		return text, 0
	}

	rest := text
	for len(rest) > 0 {
		line, next := cutLine(rest)
		rest = next
		lines++
		if len(bytes.TrimSpace(line)) == 0 {
			break
		}
	}
	return rest, lines
}

func frontMatterBody(text []byte) ([]byte, bool) {
	if !bytes.HasPrefix(text, []byte("---")) {
		return nil, false
	}
	var meta map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(text), &meta, yamlFormat)
	if err != nil {
		return nil, false
	}
	// Parse hands back the whole input when no block was found.
	if len(body) == len(text) {
		return nil, false
	}
	return body, true
}

func hasMMDBlock(text []byte) bool {
	line, _ := cutLine(text)
	line = bytes.TrimRight(line, "\r")
	return mmdKeyLine.Match(line)
}

func cutLine(b []byte) (line, rest []byte) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:]
	}
	return b, nil
}
