package cart

import "errors"

var (
	ErrOffline         = errors.New("purchase requires a connection")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// UserError is a failure of a user-initiated cart operation. Message is
// safe to show as-is.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userError(msg string, err error) error {
	return &UserError{Message: msg, Err: err}
}
