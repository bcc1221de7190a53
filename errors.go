package main

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound means a referenced row (room, user) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint (username, email) was hit.
	ErrConflict = errors.New("already exists")
)

// StorageError wraps a transient failure of the durable store. Callers
// decide per call site whether it is fatal to the request or just logged.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure, which we surface as ErrConflict.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
