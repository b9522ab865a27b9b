package repository

import "errors"

var (
	// ErrHistoryNotFound indicates no upload history record matched
	ErrHistoryNotFound = errors.New("upload history not found")

	// ErrUnsupportedDriver indicates a database driver without a schema
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
