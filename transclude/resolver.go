// Package transclude expands MultiMarkdown "{{file}}" transclusion
// directives and records which files each expansion pulled in.
package transclude

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"mdtransclude/directive"
	"mdtransclude/metadata"
)

// Resolver expands transclusion directives. It holds configuration only
// and is safe for concurrent use.
type Resolver struct {
	fs            FileSystem
	grammar       Grammar
	logger        Logger
	strict        bool
	maxDepth      int
	maxSize       int
	dedupe        bool
	stripMetadata bool
	root          string
}

// Result is the outcome of one expansion.
type Result struct {
	Text        string        `json:"-"`
	Manifest    *Manifest     `json:"manifest"`
	Diagnostics []*Diagnostic `json:"diagnostics"`
}

// NewResolver builds a lenient resolver over the OS filesystem with the
// MultiMarkdown grammar, then applies opts. Included files are spliced
// verbatim unless WithStripMetadata is set.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		fs:      OSFileSystem{},
		grammar: directive.NewMMD(),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasMetadata reports whether text opens with a metadata block.
func (r *Resolver) HasMetadata(text string) bool {
	return metadata.Has([]byte(text))
}

// Expand replaces every directive in text, resolving relative targets
// against baseDir. An empty baseDir disables transclusion and returns the
// text unchanged.
//
// In lenient mode problems are returned as Result.Diagnostics and the
// offending directive is replaced by nothing. In strict mode the first
// problem aborts the expansion and is returned as the error.
func (r *Resolver) Expand(text, baseDir string, format directive.Format) (*Result, error) {
	if baseDir == "" {
		return &Result{Text: text, Manifest: NewManifest(), Diagnostics: []*Diagnostic{}}, nil
	}
	dir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory %s: %w", baseDir, err)
	}

	e := r.newExpansion(format)
	return e.run(&frame{dir: dir, src: []byte(text)})
}

// ExpandFile reads path and expands it relative to its own directory. The
// file itself is treated as open, so including it from anywhere below is
// a cycle; it is never listed in its own manifest.
func (r *Resolver) ExpandFile(path string, format directive.Format) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := r.fs.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read %s: %w", abs, ErrIsDirectory)
	}
	src, err := r.fs.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("read %s: %w", abs, ErrNotUTF8)
	}

	e := r.newExpansion(format)
	e.open[abs] = true
	return e.run(&frame{path: abs, dir: filepath.Dir(abs), src: src})
}

// expansion is the state of one top-level call.
type expansion struct {
	r        *Resolver
	format   directive.Format
	open     map[string]bool
	manifest *Manifest
	diags    []*Diagnostic

	// size is the number of output bytes admitted so far.
	size  int
	cache map[string]cacheEntry
}

type cacheEntry struct {
	text string
	// height is how many levels of includes sit below the cached file.
	height int
}

// frame is one document on the expansion stack.
type frame struct {
	path  string
	dir   string
	src   []byte
	loc   directive.Locator
	pos   int
	depth int
	// lineBase is the number of source lines dropped with the metadata
	// block.
	lineBase int
	height   int
	out      strings.Builder
	// tainted marks frames whose subtree produced a diagnostic; their
	// output depends on where they were reached and is never cached.
	tainted bool
}

func (r *Resolver) newExpansion(format directive.Format) *expansion {
	e := &expansion{
		r:        r,
		format:   format,
		open:     make(map[string]bool),
		manifest: NewManifest(),
		diags:    []*Diagnostic{},
	}
	if r.dedupe {
		e.cache = make(map[string]cacheEntry)
	}
	return e
}

func (e *expansion) run(root *frame) (*Result, error) {
	root.loc = e.r.grammar.Locator(root.src, e.format)
	e.size = literalLen(root.src, root.loc)

	stack := []*frame{root}
	for {
		top := stack[len(stack)-1]

		d, ok := top.loc.Next(top.pos)
		if !ok {
			top.out.Write(top.src[top.pos:])
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return &Result{Text: top.out.String(), Manifest: e.manifest, Diagnostics: e.diags}, nil
			}
			delete(e.open, top.path)

			parent := stack[len(stack)-1]
			expanded := top.out.String()
			parent.out.WriteString(expanded)
			parent.height = max(parent.height, top.height+1)
			if top.tainted {
				parent.tainted = true
			} else if e.cache != nil {
				e.cache[top.path] = cacheEntry{text: expanded, height: top.height}
			}
			continue
		}

		top.out.Write(top.src[top.pos:d.Start])
		top.pos = d.End

		child, cached, diag := e.enter(top, d)
		switch {
		case diag != nil:
			top.tainted = true
			if err := e.report(diag); err != nil {
				return nil, err
			}
		case child != nil:
			stack = append(stack, child)
		default:
			top.out.WriteString(cached.text)
			top.height = max(top.height, cached.height+1)
		}
	}
}

// enter resolves d and either opens a new frame for it, returns its cached
// expansion, or explains why it cannot be expanded.
func (e *expansion) enter(parent *frame, d directive.Directive) (*frame, cacheEntry, *Diagnostic) {
	path := resolveTarget(parent.dir, d.Target)
	fail := func(kind Kind, err error) *Diagnostic {
		return &Diagnostic{
			Kind:   kind,
			Source: parent.path,
			Line:   1 + parent.lineBase + bytes.Count(parent.src[:d.Start], []byte("\n")),
			Offset: d.Start,
			Target: d.Raw,
			Path:   path,
			Err:    err,
		}
	}

	r := e.r
	if r.root != "" && !within(r.root, path) {
		return nil, cacheEntry{}, fail(MissingInclude, ErrOutsideRoot)
	}
	if e.open[path] {
		return nil, cacheEntry{}, fail(CyclicInclude, nil)
	}
	if r.maxDepth > 0 && parent.depth+1 > r.maxDepth {
		return nil, cacheEntry{}, fail(DepthExceeded, fmt.Errorf("limit is %d", r.maxDepth))
	}

	// A cached subtree is only reused where all of it still fits under the
	// depth limit; otherwise it is expanded again so the limit applies.
	if cached, ok := e.cache[path]; ok && (r.maxDepth == 0 || parent.depth+1+cached.height <= r.maxDepth) {
		if !e.admit(len(cached.text)) {
			return nil, cacheEntry{}, fail(SizeExceeded, fmt.Errorf("limit is %d bytes", r.maxSize))
		}
		r.logger.Debug("transclusion reused", "path", path, "source", parent.path)
		return nil, cached, nil
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, cacheEntry{}, fail(MissingInclude, err)
	}
	if info.IsDir() {
		return nil, cacheEntry{}, fail(MissingInclude, ErrIsDirectory)
	}
	src, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, cacheEntry{}, fail(MissingInclude, err)
	}
	if !utf8.Valid(src) {
		return nil, cacheEntry{}, fail(EncodingError, ErrNotUTF8)
	}
	lineBase := 0
	if r.stripMetadata {
		src, lineBase = metadata.Cut(src)
	}
	loc := r.grammar.Locator(src, e.format)
	if !e.admit(literalLen(src, loc)) {
		return nil, cacheEntry{}, fail(SizeExceeded, fmt.Errorf("limit is %d bytes", r.maxSize))
	}

	e.manifest.Add(path)
	e.open[path] = true
	r.logger.Debug("transcluding", "path", path, "source", parent.path, "depth", parent.depth+1)

	return &frame{
		path:     path,
		dir:      filepath.Dir(path),
		src:      src,
		loc:      loc,
		depth:    parent.depth + 1,
		lineBase: lineBase,
	}, cacheEntry{}, nil
}

// literalLen is the number of bytes of src that reach the output as is,
// that is everything but the directives themselves.
func literalLen(src []byte, loc directive.Locator) int {
	n := len(src)
	for d, ok := loc.Next(0); ok; d, ok = loc.Next(d.End) {
		n -= d.End - d.Start
	}
	return n
}

// admit accounts n more output bytes against the size limit.
func (e *expansion) admit(n int) bool {
	if e.r.maxSize > 0 && e.size+n > e.r.maxSize {
		return false
	}
	e.size += n
	return true
}

func (e *expansion) report(d *Diagnostic) error {
	if e.r.strict {
		return strictError(d)
	}
	e.r.logger.Warn("transclusion skipped", "kind", d.Kind.String(), "source", d.Source, "line", d.Line, "target", d.Target)
	e.diags = append(e.diags, d)
	return nil
}

func resolveTarget(dir, target string) string {
	target = filepath.FromSlash(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return filepath.Clean(target)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
