package aggregate

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/crypto/blake2b"
)

func testDigest(seed string) []byte {
	sum := blake2b.Sum256([]byte(seed))
	return sum[:]
}

func fourFingers() []FingerDigest {
	return []FingerDigest{
		{FingerID: "left_index", Digest: testDigest("a")},
		{FingerID: "left_thumb", Digest: testDigest("b")},
		{FingerID: "right_index", Digest: testDigest("c")},
		{FingerID: "right_thumb", Digest: testDigest("d")},
	}
}

func TestCombineOrderIndependent(t *testing.T) {
	digests := fourFingers()
	want, err := Combine(digests)
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if len(want) != CommitmentSize {
		t.Fatalf("commitment is %d bytes, want %d", len(want), CommitmentSize)
	}

	reversed := []FingerDigest{digests[3], digests[2], digests[1], digests[0]}
	got, err := Combine(reversed)
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("commitment depends on digest order")
	}
}

func TestCombineSensitiveToEveryInput(t *testing.T) {
	base, err := Combine(fourFingers())
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		changed := fourFingers()
		changed[i].Digest = testDigest(fmt.Sprintf("changed-%d", i))
		got, err := Combine(changed)
		if err != nil {
			t.Fatalf("Combine failed: %v", err)
		}
		if bytes.Equal(got, base) {
			t.Fatalf("changing finger %d did not change the commitment", i)
		}
	}
}

func TestCombineLengthPrefixPreventsAmbiguity(t *testing.T) {
	// "ab"+"c" and "a"+"bc" concatenate identically without prefixes.
	a, err := Combine([]FingerDigest{
		{FingerID: "ab", Digest: testDigest("x")},
		{FingerID: "c", Digest: testDigest("y")},
	})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	b, err := Combine([]FingerDigest{
		{FingerID: "a", Digest: testDigest("x")},
		{FingerID: "bc", Digest: testDigest("y")},
	})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("distinct finger id splits produced equal commitments")
	}
}

func TestCombineRejectsDuplicates(t *testing.T) {
	_, err := Combine([]FingerDigest{
		{FingerID: "left_index", Digest: testDigest("a")},
		{FingerID: "left_index", Digest: testDigest("b")},
	})
	if !errors.Is(err, ErrDuplicateFinger) {
		t.Fatalf("got %v, want ErrDuplicateFinger", err)
	}
}

func TestCheckQualityFullEnrollment(t *testing.T) {
	// Four fingers pass with no quality data at all.
	if err := CheckQuality(fourFingers(), nil); err != nil {
		t.Fatalf("four fingers rejected: %v", err)
	}
}

func TestCheckQualityThreeFingerFloor(t *testing.T) {
	digests := fourFingers()[:3]

	quality := map[string]float64{
		"left_index": 0.70, "left_thumb": 0.70, "right_index": 0.70,
	}
	if err := CheckQuality(digests, quality); err != nil {
		t.Fatalf("three fingers at the 0.70 floor rejected: %v", err)
	}

	quality["left_thumb"] = 0.69
	if err := CheckQuality(digests, quality); !errors.Is(err, ErrInsufficientQuality) {
		t.Fatalf("got %v, want ErrInsufficientQuality", err)
	}
}

func TestCheckQualityTwoFingerFloor(t *testing.T) {
	digests := fourFingers()[:2]

	quality := map[string]float64{"left_index": 0.85, "left_thumb": 0.85}
	if err := CheckQuality(digests, quality); err != nil {
		t.Fatalf("two fingers at the 0.85 floor rejected: %v", err)
	}

	quality["left_index"] = 0.84
	if err := CheckQuality(digests, quality); !errors.Is(err, ErrInsufficientQuality) {
		t.Fatalf("got %v, want ErrInsufficientQuality", err)
	}
}

func TestCheckQualityMissingEntryCountsAsZero(t *testing.T) {
	digests := fourFingers()[:3]
	quality := map[string]float64{"left_index": 0.95, "left_thumb": 0.95}

	if err := CheckQuality(digests, quality); !errors.Is(err, ErrInsufficientQuality) {
		t.Fatalf("got %v, want ErrInsufficientQuality", err)
	}
}

func TestCheckQualityTooFewFingers(t *testing.T) {
	digests := fourFingers()[:1]
	quality := map[string]float64{"left_index": 1.0}

	if err := CheckQuality(digests, quality); !errors.Is(err, ErrInsufficientQuality) {
		t.Fatalf("got %v, want ErrInsufficientQuality", err)
	}
}

func TestRotateMatchesFullRecompute(t *testing.T) {
	digests := fourFingers()
	replacement := testDigest("fresh")

	rotated, err := Rotate(digests, "right_index", replacement)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	recomputed := fourFingers()
	recomputed[2].Digest = replacement
	want, err := Combine(recomputed)
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if !bytes.Equal(rotated, want) {
		t.Fatal("rotation result differs from full recombination")
	}
}

func TestRotateLeavesInputUntouched(t *testing.T) {
	digests := fourFingers()
	original := testDigest("c")

	if _, err := Rotate(digests, "right_index", testDigest("fresh")); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if !bytes.Equal(digests[2].Digest, original) {
		t.Fatal("Rotate mutated the caller's digest slice")
	}
}

func TestRotateUnknownFinger(t *testing.T) {
	if _, err := Rotate(fourFingers(), "left_pinky", testDigest("x")); !errors.Is(err, ErrUnknownFinger) {
		t.Fatalf("got %v, want ErrUnknownFinger", err)
	}
}
