package enrollment

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FractionEstate/decentralized-did/internal/metrics"
	"github.com/FractionEstate/decentralized-did/pkg/aggregate"
	apperrors "github.com/FractionEstate/decentralized-did/pkg/app/errors"
	"github.com/FractionEstate/decentralized-did/pkg/biometrics"
	"github.com/FractionEstate/decentralized-did/pkg/did"
	"github.com/FractionEstate/decentralized-did/pkg/fuzzy"
	"github.com/FractionEstate/decentralized-did/pkg/storage"
)

// helperFormat tags serialized helper blobs so future format revisions can
// coexist in one store.
const helperFormat = "bch127-hmac-v1"

// Service is the biometric identity API.
type Service interface {
	Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResult, error)
	Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error)
	RotateFinger(ctx context.Context, req *RotateRequest) (*RotateResult, error)
}

// Params configures the enrollment service.
type Params struct {
	GridSize  float64
	AngleBins uint32

	Network string
	Mode    did.Mode

	PayloadBuilder *did.PayloadBuilder
	Store          storage.Backend

	// Rng feeds salt generation. crypto/rand.Reader in production.
	Rng io.Reader
}

type service struct {
	gridSize  float64
	angleBins uint32
	network   string
	mode      did.Mode
	payloads  *did.PayloadBuilder
	store     storage.Backend
	rng       io.Reader
}

// NewService creates the enrollment service.
func NewService(p Params) Service {
	return &service{
		gridSize:  p.GridSize,
		angleBins: p.AngleBins,
		network:   p.Network,
		mode:      p.Mode,
		payloads:  p.PayloadBuilder,
		store:     p.Store,
		rng:       p.Rng,
	}
}

// Enroll quantizes every presented finger, extracts per-finger digests,
// aggregates them under the quality fallback policy and anchors the
// resulting identity in a metadata payload.
func (s *service) Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResult, error) {
	start := time.Now()

	digests := make([]aggregate.FingerDigest, 0, len(req.Fingers))
	helpers := make([]did.HelperReference, 0, len(req.Fingers))
	for _, finger := range req.Fingers {
		fs, err := s.quantizeFinger(finger)
		if err != nil {
			metrics.EnrollmentsTotal.WithLabelValues("rejected").Inc()
			return nil, apperrors.BadRequestError(err, fmt.Sprintf("finger %q: invalid template", finger.FingerID))
		}

		digest, helper, err := fuzzy.Generate(fs, s.rng)
		if err != nil {
			metrics.EnrollmentsTotal.WithLabelValues("error").Inc()
			return nil, apperrors.GeneralError(fmt.Errorf("finger %q: %w", finger.FingerID, err))
		}

		ref, err := s.storeHelper(ctx, helper)
		if err != nil {
			metrics.EnrollmentsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		digests = append(digests, aggregate.FingerDigest{FingerID: finger.FingerID, Digest: digest})
		helpers = append(helpers, ref)
	}

	commitment, err := aggregate.Aggregate(digests, req.Quality)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("rejected").Inc()
		return nil, mapAggregateError(err)
	}

	mode, network := s.resolveModeNetwork(req.Mode, req.Network)
	didStr, err := did.Build(commitment, mode, network, req.WalletAddress)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("rejected").Inc()
		return nil, apperrors.BadRequestError(err, "invalid DID construction parameters")
	}

	payload, err := s.payloads.Build(didStr, commitment, helpers, req.Controllers, time.Now())
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("rejected").Inc()
		return nil, mapPayloadError(err)
	}

	metrics.EnrollmentsTotal.WithLabelValues("success").Inc()
	metrics.EnrollmentDuration.Observe(time.Since(start).Seconds())

	return &EnrollResult{
		DID:     didStr,
		IDHash:  payload.IDHash,
		Record:  did.NewRecord(didStr, network),
		Helpers: helpers,
		Payload: payload,
	}, nil
}

// Verify reproduces each finger's digest from fresh captures and the
// stored helper data, recombines and compares against the expected
// id_hash. Biometric rejection comes back as a result, not an error;
// errors are reserved for malformed requests and storage faults.
func (s *service) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	start := time.Now()

	expected, err := hex.DecodeString(req.ExpectedIDHash)
	if err != nil || len(expected) != aggregate.CommitmentSize {
		return nil, apperrors.BadRequestError(err, "expected_id_hash must be 32 hex-encoded bytes")
	}

	if len(req.Quality) > 0 {
		probe := make([]aggregate.FingerDigest, len(req.Fingers))
		for i, f := range req.Fingers {
			probe[i] = aggregate.FingerDigest{FingerID: f.FingerID}
		}
		if err := aggregate.CheckQuality(probe, req.Quality); err != nil {
			return s.verifyOutcome(start, ReasonInsufficientQuality, nil), nil
		}
	}

	helpersByFinger, err := s.resolveHelpers(ctx, req.Helpers)
	if err != nil {
		return nil, err
	}

	digests := make([]aggregate.FingerDigest, 0, len(req.Fingers))
	corrected := make(map[string]int, len(req.Fingers))
	for _, finger := range req.Fingers {
		fs, err := s.quantizeFinger(finger)
		if err != nil {
			return nil, apperrors.BadRequestError(err, fmt.Sprintf("finger %q: invalid template", finger.FingerID))
		}

		helper, ok := helpersByFinger[finger.FingerID]
		if !ok {
			return nil, apperrors.ResourceNotFoundError(nil,
				fmt.Sprintf("no helper data for finger %q", finger.FingerID))
		}

		digest, nerr, err := fuzzy.Reproduce(fs, helper)
		if err != nil {
			switch {
			case errors.Is(err, fuzzy.ErrCorrectionCapacity):
				return s.verifyOutcome(start, ReasonCapacityExceeded, nil), nil
			case errors.Is(err, fuzzy.ErrIntegrity):
				return s.verifyOutcome(start, ReasonIntegrityFailure, nil), nil
			default:
				return nil, apperrors.GeneralError(err)
			}
		}

		metrics.CorrectedBitErrors.Observe(float64(nerr))
		corrected[finger.FingerID] = nerr
		digests = append(digests, aggregate.FingerDigest{FingerID: finger.FingerID, Digest: digest})
	}

	commitment, err := aggregate.Combine(digests)
	if err != nil {
		return nil, mapAggregateError(err)
	}

	// A reproduced-but-wrong digest set is indistinguishable from excess
	// noise, so a mismatching id_hash reports capacity_exceeded.
	if subtle.ConstantTimeCompare(did.IDHash(commitment), expected) != 1 {
		return s.verifyOutcome(start, ReasonCapacityExceeded, nil), nil
	}

	return s.verifyOutcome(start, ReasonOK, corrected), nil
}

// RotateFinger replaces one finger's digest with a fresh enrollment of
// that finger and re-derives the identity. Rotation is unconditional: the
// quality fallback policy applies at enrollment and verification, not
// here.
func (s *service) RotateFinger(ctx context.Context, req *RotateRequest) (*RotateResult, error) {
	digests := make([]aggregate.FingerDigest, 0, len(req.Digests))
	for fingerID, hexDigest := range req.Digests {
		digest, err := hex.DecodeString(hexDigest)
		if err != nil || len(digest) != fuzzy.DigestSize {
			return nil, apperrors.BadRequestError(err,
				fmt.Sprintf("digest for finger %q must be 32 hex-encoded bytes", fingerID))
		}
		digests = append(digests, aggregate.FingerDigest{FingerID: fingerID, Digest: digest})
	}

	if req.NewFinger.FingerID != req.RotateFingerID {
		return nil, apperrors.BadRequestError(nil,
			fmt.Sprintf("new capture is for finger %q, rotation targets %q",
				req.NewFinger.FingerID, req.RotateFingerID))
	}

	fs, err := s.quantizeFinger(req.NewFinger)
	if err != nil {
		return nil, apperrors.BadRequestError(err,
			fmt.Sprintf("finger %q: invalid template", req.NewFinger.FingerID))
	}
	newDigest, helper, err := fuzzy.Generate(fs, s.rng)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	commitment, err := aggregate.Rotate(digests, req.RotateFingerID, newDigest)
	if err != nil {
		return nil, mapAggregateError(err)
	}

	helperRef, err := s.storeHelper(ctx, helper)
	if err != nil {
		return nil, err
	}

	mode, network := s.resolveModeNetwork(req.Mode, req.Network)
	didStr, err := did.Build(commitment, mode, network, req.WalletAddress)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid DID construction parameters")
	}

	payload, err := s.payloads.Build(didStr, commitment, []did.HelperReference{helperRef}, req.Controllers, time.Now())
	if err != nil {
		return nil, mapPayloadError(err)
	}

	metrics.RotationsTotal.Inc()

	return &RotateResult{
		DID:     didStr,
		IDHash:  payload.IDHash,
		Record:  did.NewRecord(didStr, network),
		Helper:  helperRef,
		Payload: payload,
	}, nil
}

func (s *service) verifyOutcome(start time.Time, reason string, corrected map[string]int) *VerifyResult {
	metrics.VerificationsTotal.WithLabelValues(reason).Inc()
	metrics.VerificationDuration.Observe(time.Since(start).Seconds())
	return &VerifyResult{
		Success:       reason == ReasonOK,
		Reason:        reason,
		CorrectedBits: corrected,
	}
}

func (s *service) quantizeFinger(in FingerInput) (biometrics.QuantizedFeatureSet, error) {
	minutiae := make([]biometrics.Minutia, len(in.Minutiae))
	for i, m := range in.Minutiae {
		minutiae[i] = biometrics.Minutia{X: m[0], Y: m[1], Angle: m[2]}
	}
	return biometrics.Quantize(biometrics.FingerTemplate{
		FingerID:  in.FingerID,
		Minutiae:  minutiae,
		GridSize:  s.gridSize,
		AngleBins: s.angleBins,
	})
}

func (s *service) resolveModeNetwork(mode, network string) (did.Mode, string) {
	m := s.mode
	if mode != "" {
		m = did.Mode(mode)
	}
	n := s.network
	if network != "" {
		n = network
	}
	return m, n
}

// storeHelper persists one helper blob and returns the payload reference.
// The inline backend embeds the blob in the reference itself.
func (s *service) storeHelper(ctx context.Context, helper *fuzzy.HelperData) (did.HelperReference, error) {
	if s.store.Name() == "inline" {
		return did.HelperReference{Inline: helper, Format: helperFormat}, nil
	}

	blob, err := json.Marshal(helper)
	if err != nil {
		return did.HelperReference{}, apperrors.GeneralError(err)
	}

	ref, err := s.store.Put(ctx, blob)
	if err != nil {
		metrics.StorageOpsTotal.WithLabelValues(s.store.Name(), "put", "error").Inc()
		return did.HelperReference{}, apperrors.DependencyFailureError(err, "helper storage unavailable")
	}
	metrics.StorageOpsTotal.WithLabelValues(s.store.Name(), "put", "success").Inc()

	return did.HelperReference{
		URI:    fmt.Sprintf("%s://%s", ref.Backend, ref.ID),
		Format: helperFormat,
	}, nil
}

// resolveHelpers materializes every presented helper reference, fetching
// URI references through the configured backend, and indexes them by
// finger ID.
func (s *service) resolveHelpers(ctx context.Context, refs []HelperRef) (map[string]*fuzzy.HelperData, error) {
	out := make(map[string]*fuzzy.HelperData, len(refs))
	for _, ref := range refs {
		helper, err := s.resolveHelper(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[helper.FingerID] = helper
	}
	return out, nil
}

func (s *service) resolveHelper(ctx context.Context, ref HelperRef) (*fuzzy.HelperData, error) {
	if ref.Inline != nil {
		return ref.Inline, nil
	}
	if ref.URI == "" {
		return nil, apperrors.BadRequestError(nil, "helper reference has neither inline data nor a URI")
	}

	backend, id, ok := strings.Cut(ref.URI, "://")
	if !ok {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("malformed helper URI %q", ref.URI))
	}
	if backend != s.store.Name() {
		return nil, apperrors.BadRequestError(nil,
			fmt.Sprintf("helper stored in %q but backend %q is configured", backend, s.store.Name()))
	}

	blob, err := s.store.Get(ctx, storage.Reference{Backend: backend, ID: id})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			metrics.StorageOpsTotal.WithLabelValues(backend, "get", "not_found").Inc()
			return nil, apperrors.ResourceNotFoundError(err, fmt.Sprintf("helper %q not found", ref.URI))
		default:
			metrics.StorageOpsTotal.WithLabelValues(backend, "get", "error").Inc()
			return nil, apperrors.DependencyFailureError(err, "helper storage unavailable")
		}
	}
	metrics.StorageOpsTotal.WithLabelValues(backend, "get", "success").Inc()

	helper := new(fuzzy.HelperData)
	if err := json.Unmarshal(blob, helper); err != nil {
		return nil, apperrors.BadRequestError(err, fmt.Sprintf("helper %q is not valid helper data", ref.URI))
	}
	if ref.FingerID != "" && helper.FingerID != ref.FingerID {
		return nil, apperrors.BadRequestError(nil,
			fmt.Sprintf("helper %q belongs to finger %q, reference says %q", ref.URI, helper.FingerID, ref.FingerID))
	}
	return helper, nil
}

func mapAggregateError(err error) error {
	switch {
	case errors.Is(err, aggregate.ErrInsufficientQuality):
		return apperrors.VerificationFailedError(err, "finger set fails the quality fallback policy")
	case errors.Is(err, aggregate.ErrDuplicateFinger):
		return apperrors.BadRequestError(err, "duplicate finger id")
	case errors.Is(err, aggregate.ErrUnknownFinger):
		return apperrors.BadRequestError(err, "rotation target is not part of the digest set")
	default:
		return apperrors.GeneralError(err)
	}
}

func mapPayloadError(err error) error {
	var sizeErr *did.PayloadSizeError
	if errors.As(err, &sizeErr) {
		return apperrors.PayloadTooLargeError(err,
			fmt.Sprintf("metadata payload is %d bytes, limit %d", sizeErr.Actual, sizeErr.Limit))
	}
	return apperrors.GeneralError(err)
}
