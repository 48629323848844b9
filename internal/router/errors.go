package router

import (
	"fmt"
	"strings"
)

// Kind classifies a router failure. The string values appear on the wire
// as errorKind.
type Kind string

const (
	KindInvalidRequest       Kind = "InvalidRequest"
	KindNoProvidersAvailable Kind = "NoProvidersAvailable"
	KindAllProvidersFailed   Kind = "AllProvidersFailed"
	KindUnknownProvider      Kind = "UnknownProvider"
)

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest}
	ErrNoProvidersAvailable = &Error{Kind: KindNoProvidersAvailable}
	ErrAllProvidersFailed   = &Error{Kind: KindAllProvidersFailed}
	ErrUnknownProvider      = &Error{Kind: KindUnknownProvider}
)

// Failure is the last error seen from one provider during a call.
type Failure struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// Error is returned by every router operation that fails.
type Error struct {
	Kind           Kind      `json:"errorKind"`
	Message        string    `json:"message"`
	ProvidersTried []string  `json:"providersTried,omitempty"`
	Failures       []Failure `json:"failures,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Provider+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, "; "))
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
