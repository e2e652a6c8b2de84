package service

import "errors"

// Workflow error taxonomy. Handlers map these onto the HTTP surface; the
// split between identity-state errors (surfaced) and side-channel errors
// (logged and discarded) is the load-bearing design decision here.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidActionToken  = errors.New("invalid or expired token")
	ErrNotificationFailure = errors.New("notification dispatch failed")
)
