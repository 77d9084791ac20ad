package models

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrForbidden = errors.New("forbidden")
	ErrNotOwner  = errors.New("incident is accepted by another responder")

	ErrIncidentNotFound     = errors.New("incident not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrImageNotFound        = errors.New("incident has no image")

	ErrAlreadyProcessed  = errors.New("already processed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmailTaken        = errors.New("email already registered")
	ErrUserInUse         = errors.New("user is referenced by incidents")
)
