package authsentry

import (
	"fmt"
	"strings"
)

// ErrorKind classifies an engine failure. Callers branch on the kind
// (via errors.Is against the exported sentinels) rather than on message
// text, which is not a stable surface.
type ErrorKind uint8

const (
	// KindValidation indicates a malformed request (bad email shape,
	// missing fields) rejected before any state was touched.
	KindValidation ErrorKind = iota + 1
	// KindInvalidCredentials covers unknown email and wrong password
	// identically, to avoid account enumeration.
	KindInvalidCredentials
	// KindAccountSuspended is an exported constant used by the authentication engine.
	KindAccountSuspended
	// KindAccountLocked is an exported constant used by the authentication engine.
	KindAccountLocked
	// KindEmailNotVerified is an exported constant used by the authentication engine.
	KindEmailNotVerified
	// KindPasswordExpired is an exported constant used by the authentication engine.
	KindPasswordExpired
	// KindTwoFactorRequired signals that the caller must resubmit the
	// login request with a second-factor code. It is retryable.
	KindTwoFactorRequired
	// KindInvalidTwoFactorCode is an exported constant used by the authentication engine.
	KindInvalidTwoFactorCode
	// KindInvalidToken covers invalid, expired, and already-used one-time
	// and refresh tokens. The three cases are indistinguishable externally.
	KindInvalidToken
	// KindRateLimitExceeded is an exported constant used by the authentication engine.
	KindRateLimitExceeded
	// KindSessionExpired is an exported constant used by the authentication engine.
	KindSessionExpired
	// KindWeakPassword is an exported constant used by the authentication engine.
	KindWeakPassword
	// KindUserNotFound is an exported constant used by the authentication engine.
	KindUserNotFound
	// KindInsufficientPermissions is an exported constant used by the authentication engine.
	KindInsufficientPermissions
	// KindServiceUnavailable wraps collaborator/infrastructure failures
	// (store timeout, crypto failure) so internal error types never leak.
	KindServiceUnavailable
)

// Error is the engine's structured error type. It carries a kind for
// programmatic matching and an optional details map for user-facing
// rendering. Details never contain secrets or password material.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Details) == 0 {
		return e.Message
	}

	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (")
	first := true
	for _, k := range sortedDetailKeys(e.Details) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(e.Details[k])
	}
	b.WriteString(")")
	return b.String()
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error of the same kind, so detail-carrying
// instances still match their exported sentinel under errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetails returns a copy of e carrying the given detail pairs. The
// receiver is never mutated; sentinels stay immutable.
func (e *Error) WithDetails(pairs ...string) *Error {
	if e == nil {
		return nil
	}
	clone := &Error{
		Kind:    e.Kind,
		Message: e.Message,
		Details: make(map[string]string, len(e.Details)+len(pairs)/2),
		cause:   e.cause,
	}
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		clone.Details[pairs[i]] = pairs[i+1]
	}
	return clone
}

func sortedDetailKeys(details map[string]string) []string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

var (
	// ErrValidation is an exported sentinel used by the authentication engine.
	ErrValidation = &Error{Kind: KindValidation, Message: "invalid request"}
	// ErrInvalidCredentials is an exported sentinel used by the authentication engine.
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	// ErrAccountSuspended is an exported sentinel used by the authentication engine.
	ErrAccountSuspended = &Error{Kind: KindAccountSuspended, Message: "account suspended"}
	// ErrAccountLocked is an exported sentinel used by the authentication engine.
	ErrAccountLocked = &Error{Kind: KindAccountLocked, Message: "account temporarily locked"}
	// ErrEmailNotVerified is an exported sentinel used by the authentication engine.
	ErrEmailNotVerified = &Error{Kind: KindEmailNotVerified, Message: "email not verified"}
	// ErrPasswordExpired is an exported sentinel used by the authentication engine.
	ErrPasswordExpired = &Error{Kind: KindPasswordExpired, Message: "password expired"}
	// ErrTwoFactorRequired is an exported sentinel used by the authentication engine.
	ErrTwoFactorRequired = &Error{Kind: KindTwoFactorRequired, Message: "two-factor code required"}
	// ErrInvalidTwoFactorCode is an exported sentinel used by the authentication engine.
	ErrInvalidTwoFactorCode = &Error{Kind: KindInvalidTwoFactorCode, Message: "invalid two-factor code"}
	// ErrInvalidToken is an exported sentinel used by the authentication engine.
	ErrInvalidToken = &Error{Kind: KindInvalidToken, Message: "invalid or expired token"}
	// ErrRateLimitExceeded is an exported sentinel used by the authentication engine.
	ErrRateLimitExceeded = &Error{Kind: KindRateLimitExceeded, Message: "rate limit exceeded"}
	// ErrSessionExpired is an exported sentinel used by the authentication engine.
	ErrSessionExpired = &Error{Kind: KindSessionExpired, Message: "session expired"}
	// ErrWeakPassword is an exported sentinel used by the authentication engine.
	ErrWeakPassword = &Error{Kind: KindWeakPassword, Message: "password does not meet strength requirements"}
	// ErrUserNotFound is an exported sentinel used by the authentication engine.
	ErrUserNotFound = &Error{Kind: KindUserNotFound, Message: "user not found"}
	// ErrInsufficientPermissions is an exported sentinel used by the authentication engine.
	ErrInsufficientPermissions = &Error{Kind: KindInsufficientPermissions, Message: "insufficient permissions"}
	// ErrServiceUnavailable is an exported sentinel used by the authentication engine.
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable, Message: "authentication backend unavailable"}
	// ErrEngineNotReady is an exported sentinel used by the authentication engine.
	ErrEngineNotReady = &Error{Kind: KindServiceUnavailable, Message: "engine not initialized"}
)

// wrapUnavailable converts a collaborator failure into ErrServiceUnavailable
// while preserving the cause for errors.Unwrap chains.
func wrapUnavailable(op string, err error) *Error {
	return &Error{
		Kind:    KindServiceUnavailable,
		Message: fmt.Sprintf("authentication backend unavailable: %s", op),
		cause:   err,
	}
}
