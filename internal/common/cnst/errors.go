package cnst

import "errors"

var (
	// ErrUnknownCollection is returned when a collection name is outside the closed set
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrRecordNotFound is returned when a record id does not exist in a collection
	ErrRecordNotFound = errors.New("record not found")
	// ErrNotRestorable is returned when restore is attempted on a cascade-deleted record
	ErrNotRestorable = errors.New("record was cascade-deleted and cannot be restored independently")
	// ErrTenantNotFound is returned when a clinic code matches nothing anywhere
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantDeleted is returned when a slug resolves to a tenant marked deleted
	ErrTenantDeleted = errors.New("tenant is deleted")
	// ErrRemoteUnavailable is returned when the remote document store cannot be reached
	ErrRemoteUnavailable = errors.New("remote document store unavailable")
	// ErrMirrorClosed is returned when a task is enqueued after the mirror shut down
	ErrMirrorClosed = errors.New("mirror queue is closed")
)
