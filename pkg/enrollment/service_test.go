package enrollment

import (
	"context"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"

	apperrors "github.com/FractionEstate/decentralized-did/pkg/app/errors"
	"github.com/FractionEstate/decentralized-did/pkg/did"
	"github.com/FractionEstate/decentralized-did/pkg/fuzzy"
	"github.com/FractionEstate/decentralized-did/pkg/storage"
)

// staticRand yields a repeating byte so enrollments are reproducible in
// tests.
type staticRand byte

func (r staticRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func newTestService(store storage.Backend) Service {
	return NewService(Params{
		GridSize:       10.0,
		AngleBins:      16,
		Network:        "preprod",
		Mode:           did.ModeDeterministic,
		PayloadBuilder: did.NewPayloadBuilder(1990, 0),
		Store:          store,
		Rng:            staticRand(0x5A),
	})
}

// testFinger synthesizes a capture with six minutiae in distinct grid
// cells. Different offsets give unrelated fingers.
func testFinger(id string, offset float64) FingerInput {
	minutiae := make([][3]float64, 0, 6)
	for i := 0; i < 6; i++ {
		minutiae = append(minutiae, [3]float64{
			offset + float64(i)*25.0,
			2*offset + float64(i)*35.0,
			float64((i * 47) % 360),
		})
	}
	return FingerInput{FingerID: id, Minutiae: minutiae}
}

func fourFingerRequest() *EnrollRequest {
	return &EnrollRequest{
		Fingers: []FingerInput{
			testFinger("left_index", 0),
			testFinger("left_thumb", 300),
			testFinger("right_index", 600),
			testFinger("right_thumb", 900),
		},
		Quality: map[string]float64{
			"left_index": 1.0, "left_thumb": 1.0, "right_index": 1.0, "right_thumb": 1.0,
		},
	}
}

func inlineHelperRefs(t *testing.T, result *EnrollResult) []HelperRef {
	t.Helper()
	refs := make([]HelperRef, 0, len(result.Helpers))
	for _, h := range result.Helpers {
		if h.Inline == nil {
			t.Fatal("expected inline helper data")
		}
		refs = append(refs, HelperRef{Inline: h.Inline})
	}
	return refs
}

var hexHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestEnrollFourFingers(t *testing.T) {
	svc := newTestService(storage.NewInline())

	result, err := svc.Enroll(context.Background(), fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	if !strings.HasPrefix(result.DID, "did:cardano:preprod:") {
		t.Fatalf("DID %q lacks the deterministic preprod prefix", result.DID)
	}
	if !hexHash.MatchString(result.IDHash) {
		t.Fatalf("id_hash %q is not 32 hex-encoded bytes", result.IDHash)
	}
	if len(result.Helpers) != 4 {
		t.Fatalf("expected 4 helper references, got %d", len(result.Helpers))
	}
	if result.Payload.SchemaVersion != did.SchemaV10 {
		t.Fatalf("payload schema %q, want %q", result.Payload.SchemaVersion, did.SchemaV10)
	}
	if result.Payload.DID != result.DID || result.Payload.IDHash != result.IDHash {
		t.Fatal("payload does not match the enrollment result")
	}
	if result.Record.DID != result.DID || result.Record.Network != "preprod" {
		t.Fatalf("record does not match the enrollment: %+v", result.Record)
	}
}

func TestVerifyCleanRescan(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        fourFingerRequest().Fingers,
		Helpers:        inlineHelperRefs(t, enrolled),
		ExpectedIDHash: enrolled.IDHash,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Success || result.Reason != ReasonOK {
		t.Fatalf("clean rescan rejected: %+v", result)
	}
	for finger, n := range result.CorrectedBits {
		if n != 0 {
			t.Fatalf("clean rescan corrected %d bits on %s", n, finger)
		}
	}
}

func TestVerifyToleratesBoundedNoise(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	// One spurious minutia in a fresh cell flips at most two bits.
	req := fourFingerRequest()
	req.Fingers[0].Minutiae = append(req.Fingers[0].Minutiae, [3]float64{5000, 5000, 10})

	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        req.Fingers,
		Helpers:        inlineHelperRefs(t, enrolled),
		ExpectedIDHash: enrolled.IDHash,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("bounded noise rejected: %+v", result)
	}
}

func TestVerifyDifferentFinger(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	// Replace one finger with an unrelated capture: 30 minutiae across
	// entirely different cells.
	req := fourFingerRequest()
	impostor := make([][3]float64, 0, 30)
	for i := 0; i < 30; i++ {
		impostor = append(impostor, [3]float64{
			10000 + float64(i)*30.0,
			20000 + float64(i)*50.0,
			float64((i * 31) % 360),
		})
	}
	req.Fingers[2].Minutiae = impostor

	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        req.Fingers,
		Helpers:        inlineHelperRefs(t, enrolled),
		ExpectedIDHash: enrolled.IDHash,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Success || result.Reason != ReasonCapacityExceeded {
		t.Fatalf("impostor finger accepted: %+v", result)
	}
}

func TestVerifyTamperedHelper(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	refs := inlineHelperRefs(t, enrolled)
	refs[1].Inline.Tag[0] ^= 0xFF

	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        fourFingerRequest().Fingers,
		Helpers:        refs,
		ExpectedIDHash: enrolled.IDHash,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Success || result.Reason != ReasonIntegrityFailure {
		t.Fatalf("tampered helper accepted: %+v", result)
	}
}

func TestVerifyWrongIDHash(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	wrong := hex.EncodeToString(make([]byte, 32))
	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        fourFingerRequest().Fingers,
		Helpers:        inlineHelperRefs(t, enrolled),
		ExpectedIDHash: wrong,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Success || result.Reason != ReasonCapacityExceeded {
		t.Fatalf("mismatched id_hash accepted: %+v", result)
	}
}

func TestVerifyQualityFallback(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	req := fourFingerRequest()
	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        req.Fingers[:2],
		Helpers:        inlineHelperRefs(t, enrolled),
		ExpectedIDHash: enrolled.IDHash,
		Quality:        map[string]float64{"left_index": 0.5, "left_thumb": 0.5},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Success || result.Reason != ReasonInsufficientQuality {
		t.Fatalf("low-quality two-finger set accepted: %+v", result)
	}
}

func TestVerifyMalformedIDHash(t *testing.T) {
	svc := newTestService(storage.NewInline())

	_, err := svc.Verify(context.Background(), &VerifyRequest{
		Fingers:        []FingerInput{testFinger("left_index", 0)},
		Helpers:        []HelperRef{{URI: "inline://x"}},
		ExpectedIDHash: "not-hex",
	})
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("got %v, want CategoryDataError", err)
	}
}

func TestEnrollTooFewFingers(t *testing.T) {
	svc := newTestService(storage.NewInline())

	_, err := svc.Enroll(context.Background(), &EnrollRequest{
		Fingers: []FingerInput{testFinger("left_index", 0)},
		Quality: map[string]float64{"left_index": 1.0},
	})
	if !apperrors.Is(err, apperrors.CategoryVerificationFailed) {
		t.Fatalf("got %v, want CategoryVerificationFailed", err)
	}
}

func TestEnrollDuplicateFingerIDs(t *testing.T) {
	svc := newTestService(storage.NewInline())

	_, err := svc.Enroll(context.Background(), &EnrollRequest{
		Fingers: []FingerInput{
			testFinger("left_index", 0),
			testFinger("left_index", 300),
			testFinger("right_index", 600),
			testFinger("right_thumb", 900),
		},
	})
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("got %v, want CategoryDataError", err)
	}
}

func TestEnrollEmptyTemplate(t *testing.T) {
	svc := newTestService(storage.NewInline())

	req := fourFingerRequest()
	req.Fingers[0].Minutiae = nil
	_, err := svc.Enroll(context.Background(), req)
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("got %v, want CategoryDataError", err)
	}
}

func TestEnrollLegacyMode(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	req := fourFingerRequest()
	req.Mode = "legacy"
	if _, err := svc.Enroll(ctx, req); !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("legacy mode without wallet: got %v, want CategoryDataError", err)
	}

	req.WalletAddress = "addr1qxyz"
	result, err := svc.Enroll(ctx, req)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if !strings.HasPrefix(result.DID, "did:cardano:addr1qxyz#") {
		t.Fatalf("legacy DID %q lacks wallet anchor", result.DID)
	}
}

func TestRotateFinger(t *testing.T) {
	svc := newTestService(storage.NewInline())
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	// The client holds its digest set; reconstruct it from the helpers the
	// way a wallet would after a successful verification.
	impl := svc.(*service)
	digests := make(map[string]string, 4)
	for _, finger := range fourFingerRequest().Fingers {
		fs, err := impl.quantizeFinger(finger)
		if err != nil {
			t.Fatalf("quantize failed: %v", err)
		}
		var helper *fuzzy.HelperData
		for _, h := range enrolled.Helpers {
			if h.Inline.FingerID == finger.FingerID {
				helper = h.Inline
			}
		}
		digest, _, err := fuzzy.Reproduce(fs, helper)
		if err != nil {
			t.Fatalf("reproduce failed: %v", err)
		}
		digests[finger.FingerID] = hex.EncodeToString(digest)
	}

	rotated, err := svc.RotateFinger(ctx, &RotateRequest{
		Digests:        digests,
		RotateFingerID: "right_thumb",
		NewFinger:      testFinger("right_thumb", 1500),
	})
	if err != nil {
		t.Fatalf("RotateFinger failed: %v", err)
	}
	if rotated.DID == enrolled.DID {
		t.Fatal("rotation did not change the identity")
	}
	if rotated.Helper.Inline == nil || rotated.Helper.Inline.FingerID != "right_thumb" {
		t.Fatal("rotation did not produce helper data for the new capture")
	}

	// Verification against the rotated identity uses the new helper for
	// the rotated finger and the original helpers for the rest.
	refs := make([]HelperRef, 0, 4)
	for _, h := range enrolled.Helpers {
		if h.Inline.FingerID != "right_thumb" {
			refs = append(refs, HelperRef{Inline: h.Inline})
		}
	}
	refs = append(refs, HelperRef{Inline: rotated.Helper.Inline})

	req := fourFingerRequest()
	fingers := make([]FingerInput, 0, 4)
	for _, f := range req.Fingers {
		if f.FingerID != "right_thumb" {
			fingers = append(fingers, f)
		}
	}
	fingers = append(fingers, testFinger("right_thumb", 1500))

	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        fingers,
		Helpers:        refs,
		ExpectedIDHash: rotated.IDHash,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("verification against rotated identity failed: %+v", result)
	}
}

func TestRotateUnknownFinger(t *testing.T) {
	svc := newTestService(storage.NewInline())

	digest := hex.EncodeToString(make([]byte, fuzzy.DigestSize))
	_, err := svc.RotateFinger(context.Background(), &RotateRequest{
		Digests:        map[string]string{"left_index": digest, "left_thumb": digest},
		RotateFingerID: "right_pinky",
		NewFinger:      testFinger("right_pinky", 100),
	})
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("got %v, want CategoryDataError", err)
	}
}

func TestEnrollWithFileBackend(t *testing.T) {
	store, err := storage.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	svc := newTestService(store)
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, fourFingerRequest())
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	refs := make([]HelperRef, 0, len(enrolled.Helpers))
	for _, h := range enrolled.Helpers {
		if h.Inline != nil {
			t.Fatal("file backend must not inline helper data")
		}
		if !strings.HasPrefix(h.URI, "file://") {
			t.Fatalf("helper URI %q lacks file scheme", h.URI)
		}
		refs = append(refs, HelperRef{URI: h.URI})
	}

	result, err := svc.Verify(ctx, &VerifyRequest{
		Fingers:        fourFingerRequest().Fingers,
		Helpers:        refs,
		ExpectedIDHash: enrolled.IDHash,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("verification via file-backed helpers failed: %+v", result)
	}
}

func TestVerifyMissingStoredHelper(t *testing.T) {
	store, err := storage.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	svc := newTestService(store)

	_, err = svc.Verify(context.Background(), &VerifyRequest{
		Fingers:        []FingerInput{testFinger("left_index", 0)},
		Helpers:        []HelperRef{{FingerID: "left_index", URI: "file://missing"}},
		ExpectedIDHash: hex.EncodeToString(make([]byte, 32)),
	})
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("got %v, want CategoryResourceNotFound", err)
	}
}
