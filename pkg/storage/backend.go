// Package storage defines the helper-data persistence contract the core
// depends on, plus the concrete backends selected at the call boundary:
// inline (reference embeds the blob), file, IPFS and Postgres. The core
// only requires that Get(Put(x)) == x and that not-found is
// distinguishable from transient unavailability, so callers can decide
// whether a retry makes sense.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports a reference that resolves to nothing. Retrying
	// will not help.
	ErrNotFound = errors.New("storage: blob not found")
	// ErrUnavailable reports a transient backend failure worth retrying.
	ErrUnavailable = errors.New("storage: backend unavailable")
)

// Reference identifies a stored blob. For the inline backend the blob
// itself rides along in the reference.
type Reference struct {
	Backend string `json:"backend"`
	ID      string `json:"id,omitempty"`
	Inline  []byte `json:"inline,omitempty"`
}

// Backend is the narrow put/get contract for helper-data blobs.
type Backend interface {
	Name() string
	Put(ctx context.Context, blob []byte) (Reference, error)
	Get(ctx context.Context, ref Reference) ([]byte, error)
}
