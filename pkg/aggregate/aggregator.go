// Package aggregate combines per-finger digests into a single master
// commitment. The combination is canonical (independent of enrollment and
// scan order) and supports replacing one finger without touching any
// other finger's extractor state. Each enrolled finger contributes a
// nominal 64 bits of entropy, putting a full four-finger enrollment at the
// 256-bit target.
package aggregate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// CommitmentSize is the length of an aggregated commitment.
const CommitmentSize = 32

// Quality fallback thresholds. Fixed by the enrollment policy; verifiers
// must apply identical values.
const (
	// MinFingers is the smallest finger count any policy accepts.
	MinFingers = 2
	// FullEnrollment is the finger count accepted unconditionally.
	FullEnrollment = 4
	// qualityFloor3 applies when exactly three fingers are present.
	qualityFloor3 = 0.70
	// qualityFloor2 applies when exactly two fingers are present.
	qualityFloor2 = 0.85
)

var (
	// ErrInsufficientQuality reports that the presented finger set does not
	// meet the fallback policy for its size.
	ErrInsufficientQuality = errors.New("aggregate: finger set fails quality fallback policy")
	// ErrUnknownFinger reports a rotation target absent from the digest set.
	ErrUnknownFinger = errors.New("aggregate: finger not present in digest set")
	// ErrDuplicateFinger reports two digests sharing one finger ID.
	ErrDuplicateFinger = errors.New("aggregate: duplicate finger id")
)

// FingerDigest pairs a finger identifier with its extracted secret digest.
// Digests are secret material and must never be persisted in plaintext.
type FingerDigest struct {
	FingerID string
	Digest   []byte
}

// Aggregate combines the digests into the master commitment after checking
// the quality-weighted fallback policy:
//
//	4+ fingers  accepted unconditionally
//	3 fingers   every finger needs quality >= 0.70
//	2 fingers   every finger needs quality >= 0.85
//	fewer       rejected
//
// Fingers missing from the quality map count as quality 0.
func Aggregate(digests []FingerDigest, quality map[string]float64) ([]byte, error) {
	if err := CheckQuality(digests, quality); err != nil {
		return nil, err
	}
	return Combine(digests)
}

// CheckQuality applies the fallback policy without combining.
func CheckQuality(digests []FingerDigest, quality map[string]float64) error {
	n := len(digests)
	switch {
	case n >= FullEnrollment:
		return nil
	case n < MinFingers:
		return fmt.Errorf("%w: %d finger(s) present", ErrInsufficientQuality, n)
	}

	floor := qualityFloor3
	if n == 2 {
		floor = qualityFloor2
	}
	for _, d := range digests {
		if quality[d.FingerID] < floor {
			return fmt.Errorf("%w: finger %q quality %.2f below %.2f floor for %d fingers",
				ErrInsufficientQuality, d.FingerID, quality[d.FingerID], floor, n)
		}
	}
	return nil
}

// Combine performs the canonical combination without any quality check:
// pairs sorted lexicographically by finger ID, length-prefixed and
// concatenated, hashed with BLAKE2b-512 and truncated to 32 bytes. Sorting
// makes the commitment independent of scan order.
func Combine(digests []FingerDigest) ([]byte, error) {
	if len(digests) == 0 {
		return nil, fmt.Errorf("%w: empty digest set", ErrInsufficientQuality)
	}

	sorted := make([]FingerDigest, len(digests))
	copy(sorted, digests)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FingerID < sorted[j].FingerID
	})

	seen := make(map[string]struct{}, len(sorted))
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init hash: %w", err)
	}
	var lenBuf [binary.MaxVarintLen64]byte
	for _, d := range sorted {
		if _, dup := seen[d.FingerID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFinger, d.FingerID)
		}
		seen[d.FingerID] = struct{}{}

		n := binary.PutUvarint(lenBuf[:], uint64(len(d.FingerID)))
		h.Write(lenBuf[:n])
		h.Write([]byte(d.FingerID))
		h.Write(d.Digest)
	}
	return h.Sum(nil)[:CommitmentSize], nil
}

// Rotate replaces one finger's digest and recombines. Only the changed
// finger's digest is touched; no other finger's extractor state is
// recomputed, so rotation cost does not grow with enrollment size.
func Rotate(digests []FingerDigest, fingerID string, newDigest []byte) ([]byte, error) {
	updated := make([]FingerDigest, len(digests))
	copy(updated, digests)

	found := false
	for i := range updated {
		if updated[i].FingerID == fingerID {
			updated[i] = FingerDigest{FingerID: fingerID, Digest: newDigest}
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFinger, fingerID)
	}
	return Combine(updated)
}
