package gateway

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failures the rest of the system branches on.
// Store and transport errors are classified into a Kind once, at the
// gateway boundary.
type Kind string

const (
	// KindNotFound means the session document was deleted or never existed.
	KindNotFound Kind = "not_found"

	// KindPermissionDenied means the store rejected the operation.
	KindPermissionDenied Kind = "permission_denied"

	// KindUnknown covers any unclassified transport or store error.
	KindUnknown Kind = "unknown"

	// KindConfigurationMissing means no store is configured. It is a boot
	// condition, never produced by a running gateway.
	KindConfigurationMissing Kind = "configuration_missing"
)

// Common errors, one per Kind. Check them with errors.Is:
//
//	if errors.Is(err, gateway.ErrNotFound) {
//	    // session was deleted
//	}
var (
	ErrNotFound             = errors.New("session not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrUnknown              = errors.New("unknown store error")
	ErrConfigurationMissing = errors.New("store configuration missing")
)

// ErrAlreadyExists is returned by Create when the id is taken. It is
// classified as KindUnknown; callers that care test for it directly.
var ErrAlreadyExists = errors.New("session already exists")

// Sentinel returns the error value for k.
func (k Kind) Sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindConfigurationMissing:
		return ErrConfigurationMissing
	default:
		return ErrUnknown
	}
}

// ParseKind maps a wire string to a Kind, defaulting to KindUnknown.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindNotFound, KindPermissionDenied, KindConfigurationMissing:
		return Kind(s)
	default:
		return KindUnknown
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind      Kind
	Op        string // get, subscribe, set, create, delete, list, exists
	SessionID string
	Err       error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.Sentinel().Error()
	if e.SessionID != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.SessionID, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil && !errors.Is(e.Err, e.Kind.Sentinel()) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind's sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, SessionID: id, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err for op on id. A nil err stays nil.
func Wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return &Error{Kind: Classify(err), Op: op, SessionID: id, Err: err}
}

// Classify returns the Kind of err. Unrecognised errors are KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		if ge == nil {
			return ""
		}
		return ge.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrConfigurationMissing):
		return KindConfigurationMissing
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err means the session is gone.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}

// IsPermissionDenied reports whether the store rejected the operation.
func IsPermissionDenied(err error) bool {
	return Classify(err) == KindPermissionDenied
}

// IsFatal returns true if retrying in place cannot help: the session is
// gone, access is denied, or no store is configured.
func IsFatal(err error) bool {
	switch Classify(err) {
	case KindNotFound, KindPermissionDenied, KindConfigurationMissing:
		return true
	default:
		return false
	}
}

// AsError is Wrap for callers that need the concrete type, such as
// subscription events. err must not be nil.
func AsError(op, id string, err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: Classify(err), Op: op, SessionID: id, Err: err}
}
