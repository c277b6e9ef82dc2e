// Package errdefs defines the error kinds shared by every vmtopo component.
//
// Components return *Error values carrying a Kind so callers can branch with
// errors.Is against the kind sentinels (ErrNotFound, ErrBackend, ...) without
// caring which package produced the failure.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindCorrupt
	KindSpawn
	KindBackend
	KindStorageCommand
	KindIO
	KindUsage
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindCorrupt:
		return "corrupt"
	case KindSpawn:
		return "spawn"
	case KindBackend:
		return "backend"
	case KindStorageCommand:
		return "storage command"
	case KindIO:
		return "io"
	case KindUsage:
		return "usage"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Kind sentinels, usable with errors.Is.
var (
	ErrNotFound       = &sentinel{KindNotFound}
	ErrInvalid        = &sentinel{KindInvalid}
	ErrCorrupt        = &sentinel{KindCorrupt}
	ErrSpawn          = &sentinel{KindSpawn}
	ErrBackend        = &sentinel{KindBackend}
	ErrStorageCommand = &sentinel{KindStorageCommand}
	ErrIO             = &sentinel{KindIO}
	ErrUsage          = &sentinel{KindUsage}
	ErrCommand        = &sentinel{KindCommand}
)

type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return s.kind.String() }

// Error is a classified failure. Op names the operation ("read port",
// "snapshot"), Subject the node, file or image it concerned.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	// Stderr holds the diagnostic output of a failed external command.
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Subject != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Subject)
	}
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(msg)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" && !strings.Contains(msg, stderr) {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// New builds a classified error.
func New(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

func NotFound(op, subject string, err error) *Error { return New(KindNotFound, op, subject, err) }
func Invalid(op, subject string, err error) *Error  { return New(KindInvalid, op, subject, err) }
func Corrupt(op, subject string, err error) *Error  { return New(KindCorrupt, op, subject, err) }
func Spawn(op, subject string, err error) *Error    { return New(KindSpawn, op, subject, err) }
func Backend(op, subject string, err error) *Error  { return New(KindBackend, op, subject, err) }
func IO(op, subject string, err error) *Error       { return New(KindIO, op, subject, err) }

// Usage reports a violated command-line contract.
func Usage(format string, args ...any) *Error {
	return New(KindUsage, "", "", fmt.Errorf(format, args...))
}

// StorageCommand reports a non-zero exit from a storage command.
func StorageCommand(op, subject, stderr string, err error) *Error {
	e := New(KindStorageCommand, op, subject, err)
	e.Stderr = stderr
	return e
}

// Command reports a non-zero exit from a host tool other than storage.
func Command(op, subject, stderr string, err error) *Error {
	e := New(KindCommand, op, subject, err)
	e.Stderr = stderr
	return e
}
