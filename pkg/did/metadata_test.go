package did

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FractionEstate/decentralized-did/pkg/fuzzy"
)

func testHelpers(n int) []HelperReference {
	out := make([]HelperReference, n)
	for i := range out {
		out[i] = HelperReference{
			Inline: &fuzzy.HelperData{
				FingerID: "finger_" + string(rune('a'+i)),
				Salt:     make([]byte, fuzzy.SaltSize),
				Parity:   make([]byte, 8),
				Tag:      make([]byte, fuzzy.TagSize),
			},
			Format: "bch127-hmac-v1",
		}
	}
	return out
}

func TestBuildPayload(t *testing.T) {
	b := NewPayloadBuilder(1990, 0)
	enrolledAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p, err := b.Build("did:cardano:mainnet:abc", testCommitment(), testHelpers(4), nil, enrolledAt)
	require.NoError(t, err)

	assert.Equal(t, SchemaV10, p.SchemaVersion)
	assert.Equal(t, uint32(1990), p.Label)
	assert.Equal(t, hex.EncodeToString(IDHash(testCommitment())), p.IDHash)
	assert.Len(t, p.Helpers, 4)
	assert.Equal(t, enrolledAt, p.EnrolledAt)
	assert.False(t, p.Revoked)
}

func TestBuildPayloadMultiControllerSchema(t *testing.T) {
	b := NewPayloadBuilder(1990, 0)

	p, err := b.Build("did:cardano:mainnet:abc", testCommitment(), testHelpers(2),
		[]string{"addr1aaa"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, SchemaV10, p.SchemaVersion, "single controller stays on 1.0")

	p, err = b.Build("did:cardano:mainnet:abc", testCommitment(), testHelpers(2),
		[]string{"addr1aaa", "addr1bbb"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, SchemaV11, p.SchemaVersion, "joint authority selects 1.1")
	assert.Equal(t, []string{"addr1aaa", "addr1bbb"}, p.Controllers)
}

func TestBuildPayloadSizeLimit(t *testing.T) {
	b := NewPayloadBuilder(1990, 256)

	_, err := b.Build("did:cardano:mainnet:abc", testCommitment(), testHelpers(4), nil, time.Now())
	require.Error(t, err)

	var sizeErr *PayloadSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 256, sizeErr.Limit)
	assert.Greater(t, sizeErr.Actual, sizeErr.Limit)
	assert.Contains(t, sizeErr.Error(), "256")
}

func TestBuildPayloadWithinDefaultLimit(t *testing.T) {
	b := NewPayloadBuilder(1990, 0)

	// Ten fingers with inline helpers sits comfortably under 16 KiB.
	p, err := b.Build("did:cardano:mainnet:abc", testCommitment(), testHelpers(10), nil, time.Now())
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), DefaultMaxPayloadBytes)
}

func TestBuildRevocation(t *testing.T) {
	b := NewPayloadBuilder(1990, 0)
	revokedAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	p, err := b.BuildRevocation("did:cardano:mainnet:abc", testCommitment(), revokedAt)
	require.NoError(t, err)

	assert.True(t, p.Revoked)
	assert.Empty(t, p.Helpers)
	assert.Equal(t, hex.EncodeToString(IDHash(testCommitment())), p.IDHash)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"revoked":true`))
}
