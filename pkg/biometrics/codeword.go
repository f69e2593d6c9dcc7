package biometrics

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/FractionEstate/decentralized-did/pkg/bch"
)

// probesPerFeature is the number of bitmap positions each feature sets.
const probesPerFeature = 2

// EncodeBitmap folds a feature set into the 64-bit data word fed to the
// error-correcting code. Each feature is hashed over its fixed 12-byte
// encoding and sets two probe positions in the map, Bloom-filter style.
// The encoding is order-independent and deterministic for a given
// quantization, and a rescan that perturbs k features flips at most
// 2k bits of the word, which keeps genuine rescans inside the correction
// capacity.
//
// This mapping is one-way: the bitmap reveals at most which of 64 buckets
// were occupied, never the underlying minutiae coordinates.
func EncodeBitmap(fs QuantizedFeatureSet) uint64 {
	var word uint64
	var buf [12]byte
	for _, f := range fs.Features {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(f.GridX))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(f.GridY))
		binary.LittleEndian.PutUint32(buf[8:12], f.AngleBin)
		sum := blake2b.Sum512(buf[:])
		for p := 0; p < probesPerFeature; p++ {
			pos := binary.LittleEndian.Uint32(sum[p*4:(p+1)*4]) % bch.DataBits
			word |= 1 << pos
		}
	}
	return word
}
