package services

import "errors"

var (
	ErrAgentNotFound      = errors.New("agent not found or inactive")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
