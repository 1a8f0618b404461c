package models

import (
	"errors"
	"fmt"
)

// ErrInsufficientStock is returned when an order asks for more units than
// a product has left.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrAlreadyPaid is returned when a completion is attempted against an
// order that already has a completed payment.
var ErrAlreadyPaid = errors.New("order already paid")

// InvalidStateError reports an operation attempted from a state that does
// not allow it. Distinct from I/O failures so handlers can surface it as
// a user-facing message.
type InvalidStateError struct {
	Current   string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.Current, e.Attempted)
}
