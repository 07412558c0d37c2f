package storage

import dErrors "scoresync/pkg/domain-errors"

var (
	// ErrNotFound keeps storage-specific misses consistent across in-memory
	// and PostgreSQL implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")
)
