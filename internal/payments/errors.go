package payments

import "errors"

var (
	// ErrDuplicatePayment is returned when the booking already has a payment.
	ErrDuplicatePayment = errors.New("payments: booking already has a payment")

	// ErrReferenceCollision is returned when an external reference belongs to another payment.
	ErrReferenceCollision = errors.New("payments: external reference already used by another payment")

	// ErrReferenceImmutable is returned when a payment already carries a different reference.
	ErrReferenceImmutable = errors.New("payments: external reference already set")

	// ErrNotFound is returned when a payment does not exist.
	ErrNotFound = errors.New("payments: payment not found")

	// ErrInvalidTransition is returned when the lifecycle forbids the change, such as cancelling a confirmed payment.
	ErrInvalidTransition = errors.New("payments: invalid status transition")

	// ErrInvalidPayment is returned for structurally invalid input.
	ErrInvalidPayment = errors.New("payments: invalid payment")
)
