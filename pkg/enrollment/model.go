// Package enrollment wires the biometric pipeline end to end: quantize
// each presented finger, run the fuzzy extractor, aggregate the per-finger
// digests, derive the DID and assemble the on-chain metadata payload. It
// is the only package that touches storage, metrics and the DID builder
// together; the packages underneath it stay pure.
package enrollment

import (
	"github.com/FractionEstate/decentralized-did/pkg/did"
	"github.com/FractionEstate/decentralized-did/pkg/fuzzy"
)

// Verification outcome reasons. Biometric rejection is an outcome, not a
// transport error, so it travels in the response body.
const (
	ReasonOK                  = "ok"
	ReasonCapacityExceeded    = "capacity_exceeded"
	ReasonIntegrityFailure    = "integrity_failure"
	ReasonInsufficientQuality = "insufficient_quality"
)

// FingerInput is one raw finger capture: an identifier plus minutiae as
// (x, y, angle-degrees) triples straight from the sensor SDK.
type FingerInput struct {
	FingerID string       `json:"finger_id" validate:"required"`
	Minutiae [][3]float64 `json:"minutiae" validate:"required,min=1"`
}

// HelperRef carries one finger's helper data into a request, either
// inline or as a <backend>://<id> URI into the configured store. The
// finger ID is taken from the inline blob when present.
type HelperRef struct {
	FingerID string            `json:"finger_id,omitempty"`
	Inline   *fuzzy.HelperData `json:"inline,omitempty"`
	URI      string            `json:"uri,omitempty"`
}

// EnrollRequest enrolls a set of fingers as one identity.
type EnrollRequest struct {
	Fingers []FingerInput      `json:"fingers" validate:"required,min=1,max=10,dive"`
	Quality map[string]float64 `json:"quality,omitempty"`

	// Mode and Network override the configured defaults when set.
	Mode          string   `json:"mode,omitempty" validate:"omitempty,oneof=deterministic legacy"`
	Network       string   `json:"network,omitempty"`
	WalletAddress string   `json:"wallet_address,omitempty"`
	Controllers   []string `json:"controllers,omitempty"`
}

// EnrollResult is the issued identity: the DID, its public id_hash, the
// helper references a verifier will need, and the ready-to-anchor
// metadata payload.
type EnrollResult struct {
	DID     string                `json:"did"`
	IDHash  string                `json:"id_hash"`
	Record  did.Record            `json:"record"`
	Helpers []did.HelperReference `json:"helpers"`
	Payload *did.Payload          `json:"payload"`
}

// VerifyRequest checks fresh captures against an enrolled identity.
// Quality is optional at verification; when present the enrollment
// fallback policy is re-applied.
type VerifyRequest struct {
	Fingers        []FingerInput      `json:"fingers" validate:"required,min=1,max=10,dive"`
	Helpers        []HelperRef        `json:"helpers" validate:"required,min=1"`
	ExpectedIDHash string             `json:"expected_id_hash" validate:"required,len=64,hexadecimal"`
	Quality        map[string]float64 `json:"quality,omitempty"`
}

// VerifyResult reports the verification outcome. CorrectedBits maps each
// finger to the number of bit errors the decoder absorbed, a capture
// quality signal; it is populated only on success.
type VerifyResult struct {
	Success       bool           `json:"success"`
	Reason        string         `json:"reason"`
	CorrectedBits map[string]int `json:"corrected_bits,omitempty"`
}

// RotateRequest replaces one finger of an enrolled identity. Digests maps
// every currently enrolled finger ID to its hex digest, including the
// finger being replaced; NewFinger is the fresh capture for it.
type RotateRequest struct {
	Digests        map[string]string `json:"digests" validate:"required,min=2"`
	RotateFingerID string            `json:"rotate_finger_id" validate:"required"`
	NewFinger      FingerInput       `json:"new_finger" validate:"required"`

	Mode          string   `json:"mode,omitempty" validate:"omitempty,oneof=deterministic legacy"`
	Network       string   `json:"network,omitempty"`
	WalletAddress string   `json:"wallet_address,omitempty"`
	Controllers   []string `json:"controllers,omitempty"`
}

// RotateResult is the re-anchored identity after a single-finger rotation.
type RotateResult struct {
	DID     string              `json:"did"`
	IDHash  string              `json:"id_hash"`
	Record  did.Record          `json:"record"`
	Helper  did.HelperReference `json:"helper"`
	Payload *did.Payload        `json:"payload"`
}
