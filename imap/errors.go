package imap

import "fmt"

// Kind classifies a failed protocol operation
type Kind int

const (
	KindConnection Kind = iota + 1
	KindAuthentication
	KindFolderList
	KindSelect
	KindFetch
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindAuthentication:
		return "authentication error"
	case KindFolderList:
		return "folder list error"
	case KindSelect:
		return "select error"
	case KindFetch:
		return "fetch error"
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Error is returned by every operation of the gateway.
// Use errors.Is with one of the Err* values to check the kind.
type Error struct {
	Kind Kind
	Op   string // e.g. "select INBOX"
	Err  error
}

// Sentinels for errors.Is
var (
	ErrConnection     = &Error{Kind: KindConnection}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrFolderList     = &Error{Kind: KindFolderList}
	ErrSelect         = &Error{Kind: KindSelect}
	ErrFetch          = &Error{Kind: KindFetch}
)

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels, which only carry a kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
