package docstore

import "errors"

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrAlreadyExists is returned when a create targets an existing document.
	ErrAlreadyExists = errors.New("docstore: already exists")
	// ErrBatchTooLarge is returned when a commit exceeds the store's operation cap.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds operation limit")
	// ErrInvalidWrite is returned for writes that are neither a create nor an update.
	ErrInvalidWrite = errors.New("docstore: invalid write")
)
