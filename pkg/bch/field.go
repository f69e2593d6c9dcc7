package bch

// GF(2^7) arithmetic backing the BCH(127,64) code. The field is generated
// by the primitive polynomial x^7 + x^3 + 1; exp/log tables are built once
// at package init.

const (
	fieldBits  = 7
	fieldOrder = 1 << fieldBits // 128
	// Length is the codeword length n = 2^7 - 1.
	Length = fieldOrder - 1 // 127

	primitivePoly = 0x89 // x^7 + x^3 + 1
)

var (
	expTbl [Length]byte
	logTbl [fieldOrder]byte
)

func init() {
	x := byte(1)
	for i := 0; i < Length; i++ {
		expTbl[i] = x
		logTbl[x] = byte(i)
		x <<= 1
		if x&0x80 != 0 {
			x ^= primitivePoly
		}
	}
	buildGenerator()
}

// gfMul multiplies two elements of GF(2^7).
func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTbl[(int(logTbl[a])+int(logTbl[b]))%Length]
}

// gfInv returns the multiplicative inverse of a nonzero element.
func gfInv(a byte) byte {
	return expTbl[(Length-int(logTbl[a]))%Length]
}

// gfPowAlpha returns alpha^i for any integer exponent i >= 0.
func gfPowAlpha(i int) byte {
	return expTbl[i%Length]
}

// polyEval evaluates a polynomial with GF(2^7) coefficients (p[i] is the
// coefficient of x^i) at the given point, by Horner's rule.
func polyEval(p []byte, at byte) byte {
	var acc byte
	for i := len(p) - 1; i >= 0; i-- {
		acc = gfMul(acc, at) ^ p[i]
	}
	return acc
}
