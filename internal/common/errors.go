package common

import (
	"errors"
	"fmt"
)

// Errors shared by every module. Platform failures are turned into one of
// these by Classify, domain failures are returned directly.
var (
	// A grant or application is already outstanding for the subject
	ErrAlreadyActive = errors.New("already active")
	// The record (grant, application, member, role...) does not exist
	ErrNotFound = errors.New("not found")
	// The platform rejected the mutation, usually a role hierarchy problem
	ErrPermissionDenied = errors.New("permission denied")
	// Rate limits, timeouts and server side failures of the platform API
	ErrTransientIO = errors.New("transient platform failure")
	// The subject is no longer a member of the guild
	ErrUnknownMember = fmt.Errorf("unknown member: %w", ErrNotFound)
	// The record is past its expiry and waiting to be swept
	ErrExpired = fmt.Errorf("expired: %w", ErrNotFound)
	// The application cannot move from its current status to the requested one
	ErrInvalidTransition = errors.New("invalid status transition")
	// A role or channel the module needs has not been configured yet
	ErrNotConfigured = errors.New("not configured")
)
