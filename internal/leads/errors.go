package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("leads: name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("leads: either email or phone is required")

	// ErrMissingTenantID is returned when a lead is not scoped to a dealership.
	ErrMissingTenantID = errors.New("leads: tenant id is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrDuplicateContact is returned when the phone or email already belongs to another lead.
	ErrDuplicateContact = errors.New("leads: phone or email already registered")

	// ErrVersionConflict is returned when the lead changed between read and write.
	ErrVersionConflict = errors.New("leads: concurrent update detected")

	// ErrInvalidStatus is returned when a status outside the funnel vocabulary is written.
	ErrInvalidStatus = errors.New("leads: status outside funnel vocabulary")
)
