package security

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure reported by the security tool.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindToolUnavailable
	KindItemNotFound
	KindDuplicateItem
	KindDuplicateKeychain
	KindNoSuchKeychain
	KindAuthFailed
	KindInteractionNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindToolUnavailable:
		return "tool_unavailable"
	case KindItemNotFound:
		return "item_not_found"
	case KindDuplicateItem:
		return "duplicate_item"
	case KindDuplicateKeychain:
		return "duplicate_keychain"
	case KindNoSuchKeychain:
		return "no_such_keychain"
	case KindAuthFailed:
		return "auth_failed"
	case KindInteractionNotAllowed:
		return "interaction_not_allowed"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrToolUnavailable       = errors.New("security tool unavailable")
	ErrItemNotFound          = errors.New("item not found")
	ErrDuplicateItem         = errors.New("item already exists")
	ErrDuplicateKeychain     = errors.New("keychain already exists")
	ErrNoSuchKeychain        = errors.New("keychain not found")
	ErrAuthFailed            = errors.New("authentication failed")
	ErrInteractionNotAllowed = errors.New("user interaction not allowed")
)

var kindErrors = map[Kind]error{
	KindInvalidArgument:       ErrInvalidArgument,
	KindToolUnavailable:       ErrToolUnavailable,
	KindItemNotFound:          ErrItemNotFound,
	KindDuplicateItem:         ErrDuplicateItem,
	KindDuplicateKeychain:     ErrDuplicateKeychain,
	KindNoSuchKeychain:        ErrNoSuchKeychain,
	KindAuthFailed:            ErrAuthFailed,
	KindInteractionNotAllowed: ErrInteractionNotAllowed,
}

// The tool exits with the low byte of the Security framework OSStatus.
var exitKinds = map[int]Kind{
	36: KindInteractionNotAllowed, // errSecInteractionNotAllowed -25308
	44: KindItemNotFound,          // errSecItemNotFound -25300
	45: KindDuplicateItem,         // errSecDuplicateItem -25299
	48: KindDuplicateKeychain,     // errSecDuplicateKeychain -25296
	50: KindNoSuchKeychain,        // errSecNoSuchKeychain -25294
	51: KindAuthFailed,            // errSecAuthFailed -25293
}

// Error is the single error type surfaced for every failed operation.
// Message carries the tool's own diagnostic text.
type Error struct {
	Op       string
	Kind     Kind
	ExitCode int
	Message  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes the sentinel for the error's kind, if any.
func (e *Error) Unwrap() error {
	return kindErrors[e.Kind]
}

// InvalidArgument returns a locally raised validation error.
func InvalidArgument(op, format string, args ...any) *Error {
	return &Error{
		Op:       op,
		Kind:     KindInvalidArgument,
		ExitCode: -1,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Classify builds an *Error from a non-zero exit of the tool.
func Classify(op string, exitCode int, diagnostic string) *Error {
	msg := strings.TrimSpace(diagnostic)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", exitCode)
	}
	kind, ok := exitKinds[exitCode]
	if !ok {
		kind = kindFromMessage(msg)
	}
	return &Error{Op: op, Kind: kind, ExitCode: exitCode, Message: msg}
}

func kindFromMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "keychain with the same name already exists"):
		return KindDuplicateKeychain
	case strings.Contains(lower, "already exists in the keychain"):
		return KindDuplicateItem
	case strings.Contains(lower, "keychain could not be found"):
		return KindNoSuchKeychain
	case strings.Contains(lower, "item could not be found"):
		return KindItemNotFound
	case strings.Contains(lower, "user name or passphrase you entered is not correct"):
		return KindAuthFailed
	case strings.Contains(lower, "user interaction is not allowed"):
		return KindInteractionNotAllowed
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
