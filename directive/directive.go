// Package directive locates MultiMarkdown transclusion directives
// ("{{file.md}}") in document text.
package directive

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Directive is one transclusion reference found in a document.
type Directive struct {
	// Raw is the target exactly as written between the braces, trimmed.
	Raw string
	// Target is Raw with any ".*" wildcard replaced for the format.
	Target string
	// Start and End delimit the bytes the directive replaces.
	Start int
	End   int
}

// Locator walks the directives of one document.
type Locator interface {
	// Next returns the first directive that starts at or after offset.
	Next(offset int) (Directive, bool)
}

var directivePattern = regexp.MustCompile(`\{\{([^{}\r\n]+)\}\}`)

// MMD is the MultiMarkdown directive grammar.
type MMD struct {
	md goldmark.Markdown
}

// NewMMD returns the grammar. The goldmark instance is only used to find
// code regions, so no extensions are needed.
func NewMMD() *MMD {
	return &MMD{
		md: goldmark.New(),
	}
}

// Locator scans src once and returns a Locator over its directives.
func (g *MMD) Locator(src []byte, format Format) Locator {
	return &sliceLocator{directives: g.Scan(src, format)}
}

// Scan returns every directive in src, in source order.
func (g *MMD) Scan(src []byte, format Format) []Directive {
	matches := directivePattern.FindAllSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return nil
	}

	code := g.codeRegions(src)

	var out []Directive
	for _, m := range matches {
		start, end := m[0], m[1]
		if code.contains(start) {
			continue
		}
		raw := strings.TrimSpace(string(src[m[2]:m[3]]))
		if raw == "" || isTOC(raw) {
			continue
		}
		out = append(out, Directive{
			Raw:    raw,
			Target: expandWildcard(raw, format),
			Start:  start,
			End:    end,
		})
	}
	return out
}

func isTOC(raw string) bool {
	upper := strings.ToUpper(raw)
	return upper == "TOC" || strings.HasPrefix(upper, "TOC:")
}

func expandWildcard(raw string, format Format) string {
	if !strings.HasSuffix(raw, ".*") {
		return raw
	}
	return strings.TrimSuffix(raw, ".*") + format.Extension()
}

type region struct {
	start, stop int
}

type regions []region

func (rs regions) contains(pos int) bool {
	i := sort.Search(len(rs), func(i int) bool { return rs[i].stop > pos })
	return i < len(rs) && rs[i].start <= pos
}

// codeRegions returns the byte ranges of code blocks and code spans,
// sorted by start.
func (g *MMD) codeRegions(src []byte) regions {
	doc := g.md.Parser().Parse(text.NewReader(src))

	var out regions
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			if lines.Len() > 0 {
				out = append(out, region{start: lines.At(0).Start, stop: lines.At(lines.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					out = append(out, region{start: t.Segment.Start, stop: t.Segment.Stop})
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

type sliceLocator struct {
	directives []Directive
}

func (l *sliceLocator) Next(offset int) (Directive, bool) {
	i := sort.Search(len(l.directives), func(i int) bool { return l.directives[i].Start >= offset })
	if i == len(l.directives) {
		return Directive{}, false
	}
	return l.directives[i], true
}
