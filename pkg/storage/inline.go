package storage

import "context"

// Inline is the degenerate backend: blobs travel inside their references,
// typically ending up embedded in the on-chain metadata payload.
type Inline struct{}

// NewInline creates the inline backend.
func NewInline() *Inline {
	return &Inline{}
}

// Name implements Backend.
func (*Inline) Name() string { return "inline" }

// Put implements Backend.
func (*Inline) Put(_ context.Context, blob []byte) (Reference, error) {
	stored := make([]byte, len(blob))
	copy(stored, blob)
	return Reference{Backend: "inline", Inline: stored}, nil
}

// Get implements Backend.
func (*Inline) Get(_ context.Context, ref Reference) ([]byte, error) {
	if ref.Inline == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(ref.Inline))
	copy(out, ref.Inline)
	return out, nil
}
