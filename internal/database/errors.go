package database

import "errors"

var (
	// ErrNodeNotFound is returned when no node matches the given id and owner.
	ErrNodeNotFound = errors.New("node not found or you are not the owner")

	// ErrInvalidParent is returned when a parent id does not resolve to a
	// folder owned by the same owner.
	ErrInvalidParent = errors.New("parent is missing, not a folder, or belongs to another owner")

	// ErrInvalidMetadata is returned when folder/file fields are mixed up:
	// file metadata on a folder, or a file without it.
	ErrInvalidMetadata = errors.New("node metadata does not match its folder/file kind")

	// ErrInvalidName is returned for empty or blank node names.
	ErrInvalidName = errors.New("node name cannot be empty")

	// ErrCycleDetected is returned when a move would make a node its own ancestor.
	ErrCycleDetected = errors.New("move would create a cycle in the folder tree")

	// ErrStorageUnavailable is returned when the object storage backend fails.
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// ErrTransactionConflict is returned after a structural operation kept
	// colliding with concurrent changes and ran out of retries. Safe to retry.
	ErrTransactionConflict = errors.New("concurrent structural change detected")
)
