package inference

import "github.com/pkg/errors"

// Kind is the closed taxonomy of generator failures. Provider-internal error
// shapes never cross this boundary; callers branch on the kind only.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindEmptyResponse      Kind = "empty_response"
	KindEmptyInput         Kind = "empty_input"
	KindProviderError      Kind = "provider_error"
)

// Error is the only error type GenerateReply returns.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return "reply generator: " + string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// KindOf extracts the failure kind from err, or KindProviderError when err is
// not a generator error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) && ge != nil {
		return ge.Kind
	}
	return KindProviderError
}

// IsKind reports whether err is a generator error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge != nil && ge.Kind == kind
}
