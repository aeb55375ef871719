package diner

import "errors"

// Error classes surfaced to callers.  Handlers map them to HTTP status
// codes with errors.Is; anything else is a generic persistence failure.
var (
	// ErrValidation reports bad input such as a missing price tier or a
	// week that is not a Thursday.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyRegistered is returned when the user already holds an
	// active registration for the target week.
	ErrAlreadyRegistered = errors.New("already registered this week")

	// ErrNotFound is returned when the registrant or restaurant does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotAssigned is returned when revealing a registrant without a restaurant.
	ErrNotAssigned = errors.New("registrant has no assigned restaurant")

	// ErrConflict is returned when the record's state forbids the operation,
	// e.g. overriding a cancelled registrant or deleting a restaurant that
	// registrants still reference.
	ErrConflict = errors.New("conflict")
)
