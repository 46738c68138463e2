package booking

import "errors"

var (
	ErrInvalidSlot          = errors.New("invalid slot")
	ErrAlreadyBooked        = errors.New("slot already booked")
	ErrUnauthorized         = errors.New("wrong admin password")
	ErrConfirmationRequired = errors.New("reset must be confirmed")
	ErrInvalidReaction      = errors.New("invalid reaction")
	ErrInvalidBooker        = errors.New("booker name is required")
)
