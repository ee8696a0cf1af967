package store

import "errors"

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrRideNotFound  = errors.New("ride not found")
)
