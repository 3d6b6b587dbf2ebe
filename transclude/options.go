package transclude

import (
	"path/filepath"

	"mdtransclude/directive"
)

// Grammar finds directives in a document. The format is forwarded
// untouched from the caller.
type Grammar interface {
	Locator(src []byte, format directive.Format) directive.Locator
}

// Logger receives expansion events. glog loggers satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fsys FileSystem) Option {
	return func(r *Resolver) {
		if fsys != nil {
			r.fs = fsys
		}
	}
}

// WithGrammar replaces the MultiMarkdown directive grammar.
func WithGrammar(g Grammar) Option {
	return func(r *Resolver) {
		if g != nil {
			r.grammar = g
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(l Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStrict aborts expansion on the first diagnostic.
func WithStrict(strict bool) Option {
	return func(r *Resolver) { r.strict = strict }
}

// WithMaxDepth limits include nesting. Zero means unlimited.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) { r.maxDepth = max(n, 0) }
}

// WithMaxSize limits the bytes of included content admitted into one
// expansion. Zero means unlimited.
func WithMaxSize(n int) Option {
	return func(r *Resolver) { r.maxSize = max(n, 0) }
}

// WithDedupe reuses the expanded text of a file when a diamond reaches it
// again within the same expansion.
func WithDedupe(dedupe bool) Option {
	return func(r *Resolver) { r.dedupe = dedupe }
}

// WithStripMetadata controls whether the metadata block of included files
// is dropped before splicing. Off by default.
func WithStripMetadata(strip bool) Option {
	return func(r *Resolver) { r.stripMetadata = strip }
}

// WithRoot confines targets to dir and its descendants.
func WithRoot(dir string) Option {
	return func(r *Resolver) {
		if dir == "" {
			r.root = ""
			return
		}
		if abs, err := filepath.Abs(dir); err == nil {
			r.root = abs
		}
	}
}
