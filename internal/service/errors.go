package service

import "errors"

var (
	// ErrValidation wraps every field-constraint rejection. These are
	// surfaced synchronously, before any persistence call.
	ErrValidation = errors.New("validation failed")

	// ErrRemoteMemberCreate rejects member creation while a session is
	// active: members are authenticated accounts there, not records.
	ErrRemoteMemberCreate = errors.New("members cannot be created in remote mode")

	// ErrNoSession rejects operations that require the remote store.
	ErrNoSession = errors.New("no active session")
)
