package backend

import "github.com/corvid-systems/reactor/internal/interfaces"

// kindError is a minimal error carrying one of the taxonomy's ErrorKinds.
// The root package's Error type recognizes this via the Kind() method (see
// root errors.go's WrapError) and folds it into a structured *Error without
// internal/backend needing to import the root package.
type kindError struct {
	kind interfaces.ErrorKind
	msg  string
}

func (e *kindError) Error() string              { return e.msg }
func (e *kindError) Kind() interfaces.ErrorKind { return e.kind }

func errRange() error {
	return &kindError{kind: interfaces.KindRange, msg: "fd out of range for this backend"}
}

func errAlreadyRegistered() error {
	return &kindError{kind: interfaces.KindAlreadyRegistered, msg: "atom already registered"}
}

func errNotRegistered() error {
	return &kindError{kind: interfaces.KindNotRegistered, msg: "atom not registered"}
}
