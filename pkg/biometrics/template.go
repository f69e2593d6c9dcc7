// Package biometrics normalizes raw fingerprint minutiae into canonical,
// grid-quantized feature sets and encodes them into the fixed-length data
// words consumed by the fuzzy extractor.
package biometrics

import "errors"

var (
	// ErrEmptyTemplate reports a template with no minutiae.
	ErrEmptyTemplate = errors.New("biometrics: template has no minutiae")
	// ErrDegenerateGrid reports unusable quantization parameters.
	ErrDegenerateGrid = errors.New("biometrics: grid size and angle bins must be positive")
)

// Minutia is one detected fingerprint ridge feature: position plus
// orientation in degrees. Immutable once captured.
type Minutia struct {
	X     float64
	Y     float64
	Angle float64
}

// FingerTemplate is the raw capture of a single finger together with the
// quantization parameters that were in effect. Templates are consumed once
// per generate/reproduce call and never mutated; re-quantization yields a
// new value.
type FingerTemplate struct {
	FingerID  string
	Minutiae  []Minutia
	GridSize  float64
	AngleBins uint32
}

// Feature is one discrete minutia triple after quantization.
type Feature struct {
	GridX    int32
	GridY    int32
	AngleBin uint32
}

// QuantizedFeatureSet is the canonical form of a finger: deduplicated
// features sorted ascending by (GridX, GridY, AngleBin). Quantizing the
// same template twice yields an identical set regardless of minutiae
// order.
type QuantizedFeatureSet struct {
	FingerID string
	Features []Feature
}

// less orders features by (GridX, GridY, AngleBin).
func (f Feature) less(o Feature) bool {
	if f.GridX != o.GridX {
		return f.GridX < o.GridX
	}
	if f.GridY != o.GridY {
		return f.GridY < o.GridY
	}
	return f.AngleBin < o.AngleBin
}
