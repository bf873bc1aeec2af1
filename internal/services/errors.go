package services

import "errors"

var (
	// ErrInvalidValue is returned when a field value is outside its
	// enumeration or a required field is empty.
	ErrInvalidValue = errors.New("invalid value")
	// ErrForbidden is returned when the caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotifyFailed is returned when a confirmation email could not be
	// handed to the notification channel.
	ErrNotifyFailed = errors.New("notification dispatch failed")
)
