package storage

import "errors"

var (
	// ErrNotFound indicates no file was recorded under the requested id.
	ErrNotFound = errors.New("storage: record not found")
)
