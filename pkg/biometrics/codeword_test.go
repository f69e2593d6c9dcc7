package biometrics

import (
	"math/bits"
	"testing"
)

func featureSet(features ...Feature) QuantizedFeatureSet {
	return QuantizedFeatureSet{FingerID: "f", Features: features}
}

func TestEncodeBitmapDeterministic(t *testing.T) {
	fs := featureSet(
		Feature{GridX: 1, GridY: 2, AngleBin: 3},
		Feature{GridX: -4, GridY: 5, AngleBin: 6},
	)
	if EncodeBitmap(fs) != EncodeBitmap(fs) {
		t.Fatal("EncodeBitmap is not deterministic")
	}
}

func TestEncodeBitmapOrderIndependent(t *testing.T) {
	a := featureSet(
		Feature{GridX: 1, GridY: 2, AngleBin: 3},
		Feature{GridX: 7, GridY: 8, AngleBin: 9},
	)
	b := featureSet(
		Feature{GridX: 7, GridY: 8, AngleBin: 9},
		Feature{GridX: 1, GridY: 2, AngleBin: 3},
	)
	if EncodeBitmap(a) != EncodeBitmap(b) {
		t.Fatal("EncodeBitmap depends on feature order")
	}
}

func TestEncodeBitmapSupersetCoversSubset(t *testing.T) {
	small := featureSet(
		Feature{GridX: 1, GridY: 2, AngleBin: 3},
		Feature{GridX: 4, GridY: 5, AngleBin: 6},
	)
	big := featureSet(append(small.Features, Feature{GridX: 9, GridY: 9, AngleBin: 1})...)

	ws, wb := EncodeBitmap(small), EncodeBitmap(big)
	if ws&wb != ws {
		t.Fatal("adding a feature cleared existing bitmap bits")
	}
}

func TestEncodeBitmapPopcountBound(t *testing.T) {
	fs := featureSet(
		Feature{GridX: 1, GridY: 1, AngleBin: 1},
		Feature{GridX: 2, GridY: 2, AngleBin: 2},
		Feature{GridX: 3, GridY: 3, AngleBin: 3},
	)
	word := EncodeBitmap(fs)
	if n := bits.OnesCount64(word); n == 0 || n > probesPerFeature*len(fs.Features) {
		t.Fatalf("popcount %d outside (0, %d]", n, probesPerFeature*len(fs.Features))
	}
}

func TestEncodeBitmapEmptySetIsZero(t *testing.T) {
	if EncodeBitmap(featureSet()) != 0 {
		t.Fatal("empty feature set must map to the zero word")
	}
}

func TestEncodeBitmapDistinguishesSets(t *testing.T) {
	a := featureSet(Feature{GridX: 10, GridY: 20, AngleBin: 3})
	b := featureSet(Feature{GridX: 11, GridY: 20, AngleBin: 3})
	if EncodeBitmap(a) == EncodeBitmap(b) {
		t.Fatal("distinct single features collided in the bitmap")
	}
}
