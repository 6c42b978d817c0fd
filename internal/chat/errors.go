package chat

import "errors"

var (
	// ErrValidation rejects a malformed request (empty message, missing chat).
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers ids that do not exist and chats the caller is not a
	// member of.
	ErrNotFound = errors.New("not found")
	// ErrForbidden rejects actions reserved for the sender or the group admin.
	ErrForbidden = errors.New("forbidden")
)
