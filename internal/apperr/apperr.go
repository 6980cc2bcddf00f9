// Package apperr classifies the failures of the pipelines and the API layer.
//
// Only UpstreamUnavailable and StoreUnavailable end a pipeline run. The other
// kinds are either local to one record or describe a caller mistake.
package apperr

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type Kind string

const (
	// KindUpstreamUnavailable: the open-data service failed at the network
	// level, timed out or answered with a non-success result code.
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	// KindParseFailure: a date or an XML document could not be read. It
	// affects one field or record only.
	KindParseFailure Kind = "PARSE_FAILURE"
	// KindIdentityMissing: a record without a usable id. It is dropped.
	KindIdentityMissing Kind = "IDENTITY_MISSING"
	// KindStoreUnavailable: the database rejected a read or a commit.
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidInput     Kind = "INVALID_INPUT"
	// KindInternal is reported for errors that carry no Kind.
	KindInternal Kind = "INTERNAL"
)

// Error is a classified failure. Stack points at where the failure was first
// classified, or at the innermost stack already carried by Err.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Stack   []byte
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StackTrace() []byte {
	return e.Stack
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err, Stack: stackFor(message, err)}
}

// stackFor reuses a stack already in err's chain so that reclassifying an
// error keeps the original call site.
func stackFor(message string, err error) []byte {
	if err == nil {
		return goerrors.New(message).Stack()
	}
	var classified *Error
	if errors.As(err, &classified) && len(classified.Stack) > 0 {
		return classified.Stack
	}
	var traced *goerrors.Error
	if errors.As(err, &traced) {
		return traced.Stack()
	}
	return goerrors.Wrap(err, 3).Stack()
}

func UpstreamUnavailable(message string, err error) *Error {
	return New(KindUpstreamUnavailable, message, err)
}

func ParseFailure(message string, err error) *Error {
	return New(KindParseFailure, message, err)
}

func IdentityMissing(message string) *Error {
	return New(KindIdentityMissing, message, nil)
}

func StoreUnavailable(message string, err error) *Error {
	return New(KindStoreUnavailable, message, err)
}

func NotFound(message string, err error) *Error {
	return New(KindNotFound, message, err)
}

func InvalidInput(message string, err error) *Error {
	return New(KindInvalidInput, message, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether running the same work again may succeed.
// Unclassified errors, including context cancellation, count as retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindInvalidInput, KindNotFound, KindIdentityMissing:
		return false
	}
	return true
}
