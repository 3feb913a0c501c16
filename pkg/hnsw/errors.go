// pkg/hnsw/errors.go
package hnsw

import "fmt"

// ErrorKind classifies a failure the way the index's error table does: each
// kind has one fixed propagation policy and is never retried.
type ErrorKind int

const (
	// NotAnIndex: meta magic mismatch on open.
	NotAnIndex ErrorKind = iota
	// DimMismatch: query or insert vector dimension doesn't match meta.dims.
	DimMismatch
	// BadAlgorithm: unrecognized algorithm option at create time.
	BadAlgorithm
	// PageAddFailed: a tuple couldn't be placed on a page that free-space
	// accounting claimed had room.
	PageAddFailed
	// BadDegree: a tuple's outDegree exceeds its maxM, discovered on read.
	BadDegree
	// SelfLink: an attempt to link a node to itself.
	SelfLink
	// LevelMismatch: an attempt to link nodes that live at different levels.
	LevelMismatch
	// DuringInterrupt: the host's cancellation signal fired mid-operation.
	DuringInterrupt
	// Corruption: a page's trailing sentinel didn't match HNSW_PAGE_ID.
	Corruption
)

func (k ErrorKind) String() string {
	switch k {
	case NotAnIndex:
		return "NotAnIndex"
	case DimMismatch:
		return "DimMismatch"
	case BadAlgorithm:
		return "BadAlgorithm"
	case PageAddFailed:
		return "PageAddFailed"
	case BadDegree:
		return "BadDegree"
	case SelfLink:
		return "SelfLink"
	case LevelMismatch:
		return "LevelMismatch"
	case DuringInterrupt:
		return "DuringInterrupt"
	case Corruption:
		return "Corruption"
	default:
		return "Unknown"
	}
}

// Error is a kinded, fatal-to-the-operation error. No Kind here is ever
// retried; callers surface it and unwind whatever arena or pin they held.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err is a *hnsw.Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
