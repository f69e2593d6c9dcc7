package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFS stores blobs content-addressed through an IPFS node's HTTP API.
// The reference ID is the CID, so references are self-verifying.
type IPFS struct {
	sh *shell.Shell
}

// NewIPFS creates the IPFS backend against the given API address
// (host:port or multiaddr).
func NewIPFS(apiURL string, timeout time.Duration) *IPFS {
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &IPFS{sh: sh}
}

// Name implements Backend.
func (*IPFS) Name() string { return "ipfs" }

// Put implements Backend.
func (s *IPFS) Put(_ context.Context, blob []byte) (Reference, error) {
	cid, err := s.sh.Add(bytes.NewReader(blob))
	if err != nil {
		return Reference{}, fmt.Errorf("%w: ipfs add: %v", ErrUnavailable, err)
	}
	return Reference{Backend: "ipfs", ID: cid}, nil
}

// Get implements Backend. The IPFS API does not distinguish "no such
// object" from an unreachable network (an unknown CID simply never
// resolves), so failures surface as ErrUnavailable.
func (s *IPFS) Get(_ context.Context, ref Reference) ([]byte, error) {
	if ref.ID == "" {
		return nil, ErrNotFound
	}
	rc, err := s.sh.Cat(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: ipfs cat: %v", ErrUnavailable, err)
	}
	defer rc.Close()

	blob, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: ipfs read: %v", ErrUnavailable, err)
	}
	return blob, nil
}
