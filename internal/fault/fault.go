// Package fault defines the failure taxonomy shared by the key, token, session
// and principal packages. Every failure carries a stable machine-readable code
// and belongs to exactly one Kind.
package fault

import (
	"errors"
	"strings"
)

// Kind groups codes into the classes callers branch on.
type Kind string

const (
	KindCredential Kind = "credential"
	KindState      Kind = "state"
	KindConflict   Kind = "conflict"
	KindSignature  Kind = "signature"
	KindExpiry     Kind = "expiry"
)

const (
	CodeMissingCredential    = "MISSING_CREDENTIAL"
	CodeInvalidCredential    = "INVALID_CREDENTIAL"
	CodeTokenMalformed       = "TOKEN_MALFORMED"
	CodeTokenPurposeMismatch = "TOKEN_PURPOSE_MISMATCH"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodePrincipalInactive    = "PRINCIPAL_INACTIVE"
	CodeSessionInvalid       = "SESSION_INVALID"
	CodeKeyNotFound          = "KEY_NOT_FOUND"
	CodeNoActiveKey          = "NO_ACTIVE_KEY"
	CodeKeyConflict          = "KEY_CONFLICT"
)

var (
	ErrMissingCredential    = New(KindCredential, CodeMissingCredential, "credential is missing")
	ErrInvalidCredential    = New(KindCredential, CodeInvalidCredential, "credential is invalid")
	ErrTokenMalformed       = New(KindCredential, CodeTokenMalformed, "token is malformed")
	ErrTokenPurposeMismatch = New(KindCredential, CodeTokenPurposeMismatch, "token purpose does not match")
	ErrInvalidSignature     = New(KindSignature, CodeInvalidSignature, "token signature is invalid")
	ErrTokenExpired         = New(KindExpiry, CodeTokenExpired, "token has expired")
	ErrPrincipalInactive    = New(KindState, CodePrincipalInactive, "principal is inactive")
	ErrSessionInvalid       = New(KindState, CodeSessionInvalid, "session is revoked or expired")
	ErrKeyNotFound          = New(KindState, CodeKeyNotFound, "key not found")
	ErrNoActiveKey          = New(KindState, CodeNoActiveKey, "tenant has no active key")
	ErrKeyConflict          = New(KindConflict, CodeKeyConflict, "tenant already has an active key")
)

// Error is a coded failure. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New builds a coded error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of e carrying cause.
func (e *Error) With(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithDetail returns a copy of e with detail appended to the message.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	if detail = strings.TrimSpace(detail); detail != "" {
		cp.Message = e.Message + ": " + detail
	}
	return &cp
}

// As extracts the outermost coded error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf reports the kind of the outermost coded error in err's chain.
func KindOf(err error) (Kind, bool) {
	fe, ok := As(err)
	if !ok {
		return "", false
	}
	return fe.Kind, true
}

// CodeOf returns the stable code of err, or "" when err is not coded.
func CodeOf(err error) string {
	fe, ok := As(err)
	if !ok {
		return ""
	}
	return fe.Code
}
