package did

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FractionEstate/decentralized-did/pkg/fuzzy"
)

const (
	// DefaultMaxPayloadBytes bounds serialized payloads to Cardano
	// inline-metadata practice.
	DefaultMaxPayloadBytes = 16 * 1024

	// SchemaV10 is the single-controller payload schema.
	SchemaV10 = "1.0"
	// SchemaV11 is the multi-controller payload schema, selected
	// automatically when more than one controller is present.
	SchemaV11 = "1.1"
)

// HelperReference points at one finger's helper data: either the blob
// inlined into the payload or a URI into an external store. The builder
// serializes whichever is provided.
type HelperReference struct {
	Inline *fuzzy.HelperData `json:"inline,omitempty"`
	URI    string            `json:"uri,omitempty"`
	Format string            `json:"format,omitempty"`
}

// Payload is the versioned CIP-20 metadata body anchoring one enrollment.
type Payload struct {
	SchemaVersion string            `json:"version"`
	Label         uint32            `json:"label"`
	DID           string            `json:"did"`
	IDHash        string            `json:"id_hash"`
	Controllers   []string          `json:"controllers,omitempty"`
	Helpers       []HelperReference `json:"helpers"`
	EnrolledAt    time.Time         `json:"enrolled_at"`
	Revoked       bool              `json:"revoked"`
}

// PayloadSizeError reports a payload exceeding the serialized size limit.
// No partial payload is ever returned alongside it.
type PayloadSizeError struct {
	Actual int
	Limit  int
}

func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("did: metadata payload is %d bytes, limit %d", e.Actual, e.Limit)
}

// PayloadBuilder assembles metadata payloads under a fixed CIP-20 label
// and size limit.
type PayloadBuilder struct {
	label    uint32
	maxBytes int
}

// NewPayloadBuilder creates a builder. A non-positive maxBytes selects
// DefaultMaxPayloadBytes.
func NewPayloadBuilder(label uint32, maxBytes int) *PayloadBuilder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	return &PayloadBuilder{label: label, maxBytes: maxBytes}
}

// Build assembles the payload for an enrollment and validates its
// serialized size. The schema version is "1.0" for zero or one
// controllers and "1.1" when joint authority is declared.
func (b *PayloadBuilder) Build(
	didStr string,
	commitment []byte,
	helpers []HelperReference,
	controllers []string,
	enrolledAt time.Time,
) (*Payload, error) {
	version := SchemaV10
	if len(controllers) > 1 {
		version = SchemaV11
	}

	payload := &Payload{
		SchemaVersion: version,
		Label:         b.label,
		DID:           didStr,
		IDHash:        hex.EncodeToString(IDHash(commitment)),
		Controllers:   controllers,
		Helpers:       helpers,
		EnrolledAt:    enrolledAt.UTC(),
	}

	if err := b.checkSize(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// BuildRevocation assembles the tombstone published when an identity is
// retired: same DID and id_hash, no helpers, revoked flag set.
func (b *PayloadBuilder) BuildRevocation(didStr string, commitment []byte, revokedAt time.Time) (*Payload, error) {
	payload := &Payload{
		SchemaVersion: SchemaV10,
		Label:         b.label,
		DID:           didStr,
		IDHash:        hex.EncodeToString(IDHash(commitment)),
		Helpers:       []HelperReference{},
		EnrolledAt:    revokedAt.UTC(),
		Revoked:       true,
	}

	if err := b.checkSize(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (b *PayloadBuilder) checkSize(payload *Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}
	if len(raw) > b.maxBytes {
		return &PayloadSizeError{Actual: len(raw), Limit: b.maxBytes}
	}
	return nil
}
