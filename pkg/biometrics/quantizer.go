package biometrics

import (
	"math"
	"sort"
)

// Quantize maps a raw template onto the discrete quantization grid:
// positions become floor(x/gridSize) cells and angles fall into one of
// AngleBins equal sectors. When several minutiae collapse onto one triple
// only a single feature is kept, so sensor noise cannot inflate the
// feature-set size between scans.
func Quantize(t FingerTemplate) (QuantizedFeatureSet, error) {
	if t.GridSize <= 0 || t.AngleBins == 0 {
		return QuantizedFeatureSet{}, ErrDegenerateGrid
	}
	if len(t.Minutiae) == 0 {
		return QuantizedFeatureSet{}, ErrEmptyTemplate
	}

	binWidth := 360.0 / float64(t.AngleBins)

	type candidate struct {
		feature   Feature
		binOffset float64 // distance of the angle from its bin center
		order     int     // input position, breaks exact ties
	}

	seen := make(map[Feature]candidate, len(t.Minutiae))
	for i, m := range t.Minutiae {
		bin := int64(math.Floor(m.Angle / binWidth))
		bins := int64(t.AngleBins)
		bin = ((bin % bins) + bins) % bins

		f := Feature{
			GridX:    int32(math.Floor(m.X / t.GridSize)),
			GridY:    int32(math.Floor(m.Y / t.GridSize)),
			AngleBin: uint32(bin),
		}

		offset := math.Abs(math.Mod(math.Mod(m.Angle, binWidth)+binWidth, binWidth) - binWidth/2)

		prev, exists := seen[f]
		if !exists || offset < prev.binOffset {
			seen[f] = candidate{feature: f, binOffset: offset, order: i}
		}
	}

	features := make([]Feature, 0, len(seen))
	for f := range seen {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool {
		return features[i].less(features[j])
	})

	return QuantizedFeatureSet{FingerID: t.FingerID, Features: features}, nil
}
