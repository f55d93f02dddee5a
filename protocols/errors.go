package protocols

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrConnection = errors.New("connection failed")
	ErrList       = errors.New("list failed")
	ErrTransfer   = errors.New("transfer failed")
	ErrCleanup    = errors.New("cleanup failed")
)

// Error carries the contract kind together with the native cause.
type Error struct {
	Kind    error // one of the Err* kinds above
	Backend Kind
	Op      string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Backend, e.Op, e.Path, e.Err)
}

// Unwrap exposes both the kind and the native cause, so callers can match
// either errors.Is(err, ErrTransfer) or errors.Is(err, fs.ErrNotExist).
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func connectionError(b Kind, op, target string, err error) error {
	return &Error{Kind: ErrConnection, Backend: b, Op: op, Path: target, Err: err}
}

func listError(b Kind, dir string, err error) error {
	return &Error{Kind: ErrList, Backend: b, Op: "list", Path: dir, Err: err}
}

func transferError(b Kind, op, p string, err error) error {
	return &Error{Kind: ErrTransfer, Backend: b, Op: op, Path: p, Err: err}
}

func cleanupError(b Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrCleanup, Backend: b, Op: "disconnect", Err: err}
}

// errNotConnected is returned when an operation runs before Connect.
var errNotConnected = errors.New("not connected")

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// IsList reports whether err is a listing failure.
func IsList(err error) bool { return errors.Is(err, ErrList) }

// IsTransfer reports whether err is a download, upload or delete failure.
func IsTransfer(err error) bool { return errors.Is(err, ErrTransfer) }
