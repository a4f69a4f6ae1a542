package database

import "errors"

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrVendorNotFound  = errors.New("vendor not found")
	ErrUserNotFound    = errors.New("user not found")

	// ErrConcurrentModification is returned when a versioned update matched
	// no row: the booking changed under the caller.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)
