package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors below wrap one of these so callers can match
// either the kind or the exact cause with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrPermission      = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrSchemaMissing   = errors.New("storage relation missing")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service failed")
)

var (
	ErrOfferNotFound    = fmt.Errorf("group offer %w", ErrNotFound)
	ErrResponseNotFound = fmt.Errorf("member response %w", ErrNotFound)
	ErrContractNotFound = fmt.Errorf("fulfillment contract %w", ErrNotFound)
	ErrNotGroupMember   = fmt.Errorf("%w: not a group member", ErrPermission)
	ErrNotGroupAdmin    = fmt.Errorf("%w: not a group admin", ErrPermission)
	ErrNotResponseOwner = fmt.Errorf("%w: caller is not the responding member", ErrPermission)
	ErrOfferClosed      = fmt.Errorf("%w: offer is closed", ErrInvalidState)
	ErrResponseFinal    = fmt.Errorf("%w: response is final", ErrInvalidState)
	ErrInvalidStatus    = fmt.Errorf("%w: unrecognized status", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyTitle       = fmt.Errorf("%w: title is required", ErrValidation)
	ErrMissingDeadline  = fmt.Errorf("%w: deadline is required", ErrValidation)
	ErrNoPayoutShape    = fmt.Errorf("%w: no payout relation available", ErrInvalidState)
)
