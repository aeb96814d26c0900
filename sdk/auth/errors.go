package auth

import "errors"

// ErrRecordNotFound is returned by stores when no token file matches an id.
var ErrRecordNotFound = errors.New("auth filestore: record not found")

// ErrStoreNotConfigured is returned when a store has no base directory.
var ErrStoreNotConfigured = errors.New("auth filestore: directory not configured")
