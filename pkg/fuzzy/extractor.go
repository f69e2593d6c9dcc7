// Package fuzzy implements the fuzzy extractor: a generate/reproduce pair
// that turns a noisy quantized fingerprint into an exactly reproducible
// 32-byte digest plus public helper data. Helper data stores BCH parity
// bits and an HMAC binding; it reveals nothing usable about the digest
// without a matching finger.
package fuzzy

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/FractionEstate/decentralized-did/pkg/bch"
	"github.com/FractionEstate/decentralized-did/pkg/biometrics"
)

const (
	// SaltSize is the length of the per-enrollment random salt.
	SaltSize = 16
	// DigestSize is the length of the derived secret digest.
	DigestSize = 32
	// TagSize is the length of the helper integrity tag.
	TagSize = sha256.Size
)

var (
	// ErrCorrectionCapacity reports that the presented features differ from
	// the enrolled ones by more bits than the code can correct. This is the
	// expected outcome for a different finger or excessive noise.
	ErrCorrectionCapacity = errors.New("fuzzy: noise exceeds correction capacity")
	// ErrIntegrity reports helper data whose integrity tag does not match
	// the recovered codeword: tampering, corruption or a wrong salt. Never
	// conflated with ErrCorrectionCapacity.
	ErrIntegrity = errors.New("fuzzy: helper data failed integrity check")
)

// HelperData is the public artifact produced at enrollment and required at
// every reproduce call. It is not secret and may be stored anywhere, but
// any modification is detected at reproduce time.
type HelperData struct {
	FingerID string `json:"finger_id"`
	Salt     []byte `json:"salt"`
	Parity   []byte `json:"parity"`
	Tag      []byte `json:"hmac_tag"`
}

// Generate derives a secret digest and public helper data from a quantized
// feature set. This is the only operation in the core that consumes
// entropy; rng must be a cryptographically secure source (crypto/rand in
// production, a seeded reader in tests).
func Generate(fs biometrics.QuantizedFeatureSet, rng io.Reader) ([]byte, *HelperData, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return nil, nil, fmt.Errorf("failed to draw salt: %w", err)
	}

	word := biometrics.EncodeBitmap(fs)
	cw := bch.Encode(word)

	helper := &HelperData{
		FingerID: fs.FingerID,
		Salt:     salt,
		Parity:   cw.Parity(),
		Tag:      computeTag(salt, &cw),
	}
	return deriveDigest(&cw, salt), helper, nil
}

// Reproduce recovers the enrollment digest from a noisy rescan and the
// stored helper data. It is a pure function of its inputs. The second
// return value is the number of bit errors the code corrected, useful for
// capture-quality monitoring.
func Reproduce(fs biometrics.QuantizedFeatureSet, helper *HelperData) ([]byte, int, error) {
	if helper == nil {
		return nil, 0, ErrIntegrity
	}
	if len(helper.Salt) < SaltSize || len(helper.Parity) != bch.ParityBytes || len(helper.Tag) != TagSize {
		return nil, 0, ErrIntegrity
	}

	word := biometrics.EncodeBitmap(fs)
	received := bch.Assemble(word, helper.Parity)

	corrected, nerr, err := bch.Decode(received)
	if err != nil {
		return nil, 0, ErrCorrectionCapacity
	}

	if !hmac.Equal(computeTag(helper.Salt, &corrected), helper.Tag) {
		return nil, 0, ErrIntegrity
	}

	return deriveDigest(&corrected, helper.Salt), nerr, nil
}

// computeTag binds the helper to the enrollment codeword:
// HMAC-SHA256 keyed with the salt over the canonical codeword bytes.
func computeTag(salt []byte, cw *bch.Codeword) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write(cw[:])
	return mac.Sum(nil)
}

// deriveDigest computes BLAKE2b-512(codeword || salt) truncated to 32
// bytes. The salt decorrelates digests from independent enrollments of the
// same finger.
func deriveDigest(cw *bch.Codeword, salt []byte) []byte {
	sum := blake2b.Sum512(append(append([]byte{}, cw[:]...), salt...))
	return sum[:DigestSize]
}
