// Package did derives deterministic decentralized identifiers from
// aggregated biometric commitments and packages them into size-bounded
// CIP-20 metadata payloads for on-chain anchoring.
package did

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Method is the DID method prefix shared by both construction modes.
const Method = "did:cardano"

// Mode selects the DID construction strategy.
type Mode string

const (
	// ModeDeterministic is the privacy-preserving production default: the
	// identifier is a network-scoped base58 hash of the commitment and
	// embeds no wallet address.
	ModeDeterministic Mode = "deterministic"
	// ModeLegacyFragment anchors the identifier to a wallet address with
	// the commitment in the fragment. Kept for existing deployments only.
	ModeLegacyFragment Mode = "legacy"
)

var (
	// ErrMissingWalletAddress reports legacy-mode construction without a
	// wallet address.
	ErrMissingWalletAddress = errors.New("did: legacy mode requires a wallet address")
	// ErrUnknownMode reports an unrecognized construction mode.
	ErrUnknownMode = errors.New("did: unknown construction mode")
)

// Record captures one issued DID. Records are immutable; a re-enrollment
// with different biometric input yields a new record rather than updating
// an existing one.
type Record struct {
	DID       string    `json:"did"`
	Network   string    `json:"network"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord stamps a freshly built DID.
func NewRecord(didStr, network string) Record {
	return Record{DID: didStr, Network: network, CreatedAt: time.Now().UTC()}
}

// IDHash derives the publicly shareable identifier from a commitment:
// BLAKE2b-512 truncated to 32 bytes. It is non-reversible and distinct
// from the commitment itself, so publishing it leaks nothing usable for
// verification.
func IDHash(commitment []byte) []byte {
	sum := blake2b.Sum512(commitment)
	return sum[:32]
}

// Build constructs the DID string for a commitment. Identical arguments
// always produce byte-identical output; the result is pure ASCII with no
// whitespace.
func Build(commitment []byte, mode Mode, network string, walletAddress string) (string, error) {
	switch mode {
	case ModeDeterministic:
		return fmt.Sprintf("%s:%s:%s", Method, network, base58.Encode(IDHash(commitment))), nil
	case ModeLegacyFragment:
		if walletAddress == "" {
			return "", ErrMissingWalletAddress
		}
		return fmt.Sprintf("%s:%s#%s", Method, walletAddress,
			base64.RawURLEncoding.EncodeToString(commitment)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDeterministic, ModeLegacyFragment:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
