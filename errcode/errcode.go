package errcode

import "errors"

var (
	// ErrNilGormDB is returned by data access objects called without a
	// database handle.
	ErrNilGormDB = errors.New("gorm db is nil")

	// ErrNilRecord is returned when a nil record is passed for insertion.
	ErrNilRecord = errors.New("record is nil")
)
