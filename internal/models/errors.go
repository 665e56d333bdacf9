package models

import "errors"

var (
	// upload errors
	ErrInvalidImage    = errors.New("invalid image")
	ErrHashTimeout     = errors.New("hashing timed out")
	ErrUnsupportedType = errors.New("unsupported file type")

	// download errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)
