package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidChatID = errors.New("chat id is not a valid uuid")
	ErrEmptyMessage  = errors.New("message text is empty")
	ErrBusy          = errors.New("operation already in flight")
	ErrUnauthorized  = errors.New("missing or rejected credentials")
	ErrDisposed      = errors.New("client has been disposed")
	ErrNotConfirmed  = errors.New("action not confirmed")
)
