// Package storage persists the catalog: movies, series with their
// seasons, episodes and operator records. Consumers declare the narrow
// slice of this API they need; Mongo is the one implementation.
package storage

import "errors"

// ErrNotFound is returned for lookups that hit nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique index rejects a write, typically
// a duplicate id or a duplicate (series, season, number).
var ErrConflict = errors.New("already exists")
