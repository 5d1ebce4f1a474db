package services

import "errors"

var (
	// ErrStoreUnavailable wraps any persistence failure on the ingest path.
	// Callers should retry the whole request.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrIncidentNotFound is returned when an incident id does not exist
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrAlertNotFound is returned when an alert id does not exist
	ErrAlertNotFound = errors.New("alert not found")

	// ErrScheduleNotFound is returned when a schedule id does not exist
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidTransition is returned for status changes the lifecycle forbids
	ErrInvalidTransition = errors.New("invalid status transition")
)
