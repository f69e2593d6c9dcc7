package fuzzy

import (
	"bytes"
	"errors"
	"testing"

	"github.com/FractionEstate/decentralized-did/pkg/biometrics"
)

// patternReader yields a repeating byte, standing in for crypto/rand in
// tests that need reproducible salts.
type patternReader byte

func (r patternReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func enrolledSet() biometrics.QuantizedFeatureSet {
	return biometrics.QuantizedFeatureSet{
		FingerID: "left_thumb",
		Features: []biometrics.Feature{
			{GridX: 2, GridY: 3, AngleBin: 1},
			{GridX: 5, GridY: 1, AngleBin: 7},
			{GridX: 8, GridY: 9, AngleBin: 12},
			{GridX: 11, GridY: 4, AngleBin: 5},
		},
	}
}

func TestGenerateReproduceRoundTrip(t *testing.T) {
	fs := enrolledSet()

	digest, helper, err := Generate(fs, patternReader(0x42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(digest) != DigestSize {
		t.Fatalf("digest is %d bytes, want %d", len(digest), DigestSize)
	}
	if helper.FingerID != fs.FingerID {
		t.Fatalf("helper finger id %q, want %q", helper.FingerID, fs.FingerID)
	}

	got, nerr, err := Reproduce(fs, helper)
	if err != nil {
		t.Fatalf("Reproduce failed: %v", err)
	}
	if nerr != 0 {
		t.Fatalf("noise-free reproduce corrected %d bits, want 0", nerr)
	}
	if !bytes.Equal(got, digest) {
		t.Fatal("reproduced digest differs from enrollment digest")
	}
}

func TestGenerateSaltDecorrelatesDigests(t *testing.T) {
	fs := enrolledSet()

	a, _, err := Generate(fs, patternReader(0x01))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, _, err := Generate(fs, patternReader(0x02))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("independent enrollments of one finger produced equal digests")
	}
}

func TestReproduceToleratesBoundedNoise(t *testing.T) {
	fs := enrolledSet()
	digest, helper, err := Generate(fs, patternReader(0x42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Five spurious features flip at most ten data-word bits, which is
	// exactly the correction capacity.
	noisy := enrolledSet()
	noisy.Features = append(noisy.Features,
		biometrics.Feature{GridX: 20, GridY: 20, AngleBin: 2},
		biometrics.Feature{GridX: 21, GridY: 22, AngleBin: 9},
		biometrics.Feature{GridX: 23, GridY: 24, AngleBin: 14},
		biometrics.Feature{GridX: 25, GridY: 26, AngleBin: 3},
		biometrics.Feature{GridX: 27, GridY: 28, AngleBin: 11},
	)

	got, _, err := Reproduce(noisy, helper)
	if err != nil {
		t.Fatalf("Reproduce with bounded noise failed: %v", err)
	}
	if !bytes.Equal(got, digest) {
		t.Fatal("digest drifted under bounded noise")
	}
}

func TestReproduceRejectsExcessiveNoise(t *testing.T) {
	fs := enrolledSet()
	_, helper, err := Generate(fs, patternReader(0x42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// A different finger: a large, disjoint feature set whose bitmap lies
	// far beyond the correction capacity.
	other := biometrics.QuantizedFeatureSet{FingerID: fs.FingerID}
	for i := int32(0); i < 30; i++ {
		other.Features = append(other.Features, biometrics.Feature{
			GridX:    100 + i,
			GridY:    200 + 3*i,
			AngleBin: uint32(i) % 16,
		})
	}

	if _, _, err := Reproduce(other, helper); !errors.Is(err, ErrCorrectionCapacity) {
		t.Fatalf("got %v, want ErrCorrectionCapacity", err)
	}
}

func TestReproduceDetectsTamperedTag(t *testing.T) {
	fs := enrolledSet()
	_, helper, err := Generate(fs, patternReader(0x42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	helper.Tag[0] ^= 0xFF
	if _, _, err := Reproduce(fs, helper); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestReproduceDetectsTamperedSalt(t *testing.T) {
	fs := enrolledSet()
	_, helper, err := Generate(fs, patternReader(0x42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	helper.Salt[3] ^= 0x01
	if _, _, err := Reproduce(fs, helper); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestReproduceRejectsMalformedHelper(t *testing.T) {
	fs := enrolledSet()
	_, helper, err := Generate(fs, patternReader(0x42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	cases := map[string]*HelperData{
		"nil helper":    nil,
		"short salt":    {FingerID: helper.FingerID, Salt: helper.Salt[:4], Parity: helper.Parity, Tag: helper.Tag},
		"short parity":  {FingerID: helper.FingerID, Salt: helper.Salt, Parity: helper.Parity[:2], Tag: helper.Tag},
		"truncated tag": {FingerID: helper.FingerID, Salt: helper.Salt, Parity: helper.Parity, Tag: helper.Tag[:8]},
	}
	for name, h := range cases {
		if _, _, err := Reproduce(fs, h); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("%s: got %v, want ErrIntegrity", name, err)
		}
	}
}
