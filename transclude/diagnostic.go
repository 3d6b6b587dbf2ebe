package transclude

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies a transclusion problem.
type Kind int

const (
	// MissingInclude: the target does not exist, is a directory, could not
	// be read, or lies outside the configured root.
	MissingInclude Kind = iota + 1
	// CyclicInclude: the target is already being expanded further up.
	CyclicInclude
	// EncodingError: the target is not valid UTF-8.
	EncodingError
	// DepthExceeded: the directive is nested deeper than the limit.
	DepthExceeded
	// SizeExceeded: splicing the target would exceed the output limit.
	SizeExceeded
)

var (
	ErrIsDirectory = errors.New("target is a directory")
	ErrOutsideRoot = errors.New("target is outside the transclusion root")
	ErrNotUTF8     = errors.New("content is not valid UTF-8")
)

func (k Kind) String() string {
	switch k {
	case MissingInclude:
		return "missing include"
	case CyclicInclude:
		return "cyclic include"
	case EncodingError:
		return "encoding error"
	case DepthExceeded:
		return "depth exceeded"
	case SizeExceeded:
		return "size exceeded"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TextCode is the machine-readable code attached to strict-mode errors.
func (k Kind) TextCode() string {
	switch k {
	case MissingInclude:
		return "TRANSCLUDE_MISSING_INCLUDE"
	case CyclicInclude:
		return "TRANSCLUDE_CYCLIC_INCLUDE"
	case EncodingError:
		return "TRANSCLUDE_ENCODING_ERROR"
	case DepthExceeded:
		return "TRANSCLUDE_DEPTH_EXCEEDED"
	case SizeExceeded:
		return "TRANSCLUDE_SIZE_EXCEEDED"
	default:
		return "TRANSCLUDE_UNKNOWN"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic records one directive that could not be expanded.
type Diagnostic struct {
	Kind Kind `json:"kind"`
	// Source is the file containing the directive; empty for root text
	// handed to Expand.
	Source string `json:"source,omitempty"`
	Line   int    `json:"line"`
	Offset int    `json:"offset"`
	Target string `json:"target"`
	Path   string `json:"path,omitempty"`
	Err    error  `json:"-"`
}

func (d *Diagnostic) Error() string {
	source := d.Source
	if source == "" {
		source = "<input>"
	}
	msg := fmt.Sprintf("%s:%d: %s {{%s}}", source, d.Line, d.Kind, d.Target)
	if d.Err != nil {
		msg += ": " + d.Err.Error()
	}
	return msg
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// strictError turns the first diagnostic of a strict expansion into the
// error returned to the caller.
func strictError(d *Diagnostic) error {
	return goerrors.Wrap(d, goerrors.CategoryValidation, "transclusion aborted").
		WithTextCode(d.Kind.TextCode())
}
