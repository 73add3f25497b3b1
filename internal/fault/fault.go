// Package fault tags errors with how the batch pipeline should react to
// them, so retry decisions are a switch on Kind instead of status sniffing.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindTerminal fails the item without retrying. It is the zero value so
	// untagged errors are terminal.
	KindTerminal Kind = iota
	// KindAuthExpired means the origin refused the credential; refresh it
	// and retry the same item.
	KindAuthExpired
	// KindTransient retries the item as-is.
	KindTransient
	// KindFatal stops the whole run.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "authExpired"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "terminal"
	}
}

type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTerminal
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

func Terminal(op string, err error) error {
	return &Error{Kind: KindTerminal, Op: op, Err: err}
}

func AuthExpired(op string, err error) error {
	return &Error{Kind: KindAuthExpired, Op: op, Err: err}
}

func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// HTTP classifies a non-2xx response. 401 and 403 mean the credential was
// rejected; everything else is terminal for the item.
func HTTP(op string, status int) error {
	kind := KindTerminal
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		kind = KindAuthExpired
	}
	return &Error{Kind: kind, Op: op, Status: status}
}
