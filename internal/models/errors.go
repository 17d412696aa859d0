package models

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input provided")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrConflict            = errors.New("conflict")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnknownAction       = errors.New("unknown notification action")
)
