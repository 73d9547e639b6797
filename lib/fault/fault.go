// Package fault defines the tagged error values returned by the query service. Every fallible operation that needs
// the caller to choose between retrying, logging and continuing, or surfacing the failure wraps its error in an
// *Error carrying one of the Kinds below.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

// Failure kinds.
const (
	Unknown Kind = iota
	Bootstrap
	CachePopulation
	Discovery
	Authentication
	Query
	NotFound
	Invalid
)

func (k Kind) String() string {
	switch k {
	case Bootstrap:
		return "bootstrap"
	case CachePopulation:
		return "cache_population"
	case Discovery:
		return "discovery"
	case Authentication:
		return "authentication"
	case Query:
		return "query"
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind. Op names the operation that failed and Key the platform, cache key or
// request the failure relates to.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

// New returns an *Error of the given kind.
func New(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// Errorf returns an *Error of the given kind with a formatted message as its cause.
func Errorf(kind Kind, op, key, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " [" + e.Key + "]"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
