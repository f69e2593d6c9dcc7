// Package bch implements the binary BCH(127,64) code correcting up to 10
// bit errors. The code is systematic: a 64-bit data word is carried
// verbatim in the high coefficients of the codeword and 63 parity bits are
// appended below it, so parity can be stored separately from (re-derivable)
// data. Decoding uses syndrome computation, Berlekamp-Massey and a Chien
// search.
package bch

import "errors"

const (
	// DataBits is the number of data bits per codeword (k).
	DataBits = 64
	// ParityBits is the number of parity bits per codeword (n - k).
	ParityBits = Length - DataBits // 63
	// ParityBytes is the storage size of the packed parity bits.
	ParityBytes = 8
	// Capacity is the number of correctable bit errors (t).
	Capacity = 10
)

// ErrTooManyErrors reports that the received word lies farther than
// Capacity bits from every codeword the decoder can reach.
var ErrTooManyErrors = errors.New("bch: error count exceeds correction capacity")

// Codeword holds the 127 coefficients of a code polynomial. Bit i of the
// array (byte i/8, mask 1<<(i%8)) is the coefficient of x^i; the last bit
// of the final byte is unused and always zero. Coefficients 0..62 are
// parity, 63..126 carry the data word.
type Codeword [16]byte

// Bit returns coefficient i.
func (c *Codeword) Bit(i int) byte {
	return (c[i/8] >> (i % 8)) & 1
}

// FlipBit inverts coefficient i.
func (c *Codeword) FlipBit(i int) {
	c[i/8] ^= 1 << (i % 8)
}

func (c *Codeword) setBit(i int, v byte) {
	if v != 0 {
		c[i/8] |= 1 << (i % 8)
	}
}

// DataWord extracts the 64 data bits (coefficients 63..126).
func (c *Codeword) DataWord() uint64 {
	var w uint64
	for i := 0; i < DataBits; i++ {
		w |= uint64(c.Bit(DataBits - 1 + i)) << i
	}
	return w
}

// Parity packs the 63 parity coefficients into 8 bytes.
func (c *Codeword) Parity() []byte {
	out := make([]byte, ParityBytes)
	for i := 0; i < ParityBits; i++ {
		if c.Bit(i) != 0 {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// generator holds the degree-63 generator polynomial as GF(2)
// coefficients, generator[i] being the coefficient of x^i.
var generator [ParityBits + 1]byte

// cosetReps are the odd cyclotomic coset representatives whose minimal
// polynomials make up the generator. The coset of 9 also contains 17, so
// designing for roots alpha^1..alpha^20 needs only these nine cosets,
// giving degree 63 and k = 64.
var cosetReps = []int{1, 3, 5, 7, 9, 11, 13, 15, 19}

func buildGenerator() {
	g := []byte{1}
	for _, rep := range cosetReps {
		mp := minimalPoly(rep)
		g = polyMulGF2(g, mp)
	}
	if len(g) != len(generator) {
		panic("bch: generator polynomial has unexpected degree")
	}
	copy(generator[:], g)
}

// minimalPoly computes the minimal polynomial over GF(2) of alpha^rep as
// the product of (x + alpha^i) over the cyclotomic coset of rep. The
// resulting coefficients always collapse to 0/1.
func minimalPoly(rep int) []byte {
	p := []byte{1}
	i := rep
	for {
		root := gfPowAlpha(i)
		q := make([]byte, len(p)+1)
		for j, c := range p {
			q[j+1] ^= c
			q[j] ^= gfMul(c, root)
		}
		p = q
		i = (i * 2) % Length
		if i == rep {
			break
		}
	}
	for j, c := range p {
		if c > 1 {
			panic("bch: minimal polynomial coefficient outside GF(2)")
		}
		p[j] = c & 1
	}
	return p
}

// polyMulGF2 multiplies two polynomials with GF(2) coefficients.
func polyMulGF2(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b)-1)
	for i, ca := range a {
		if ca == 0 {
			continue
		}
		for j, cb := range b {
			out[i+j] ^= cb
		}
	}
	return out
}

// Encode produces the systematic codeword for a 64-bit data word: the data
// polynomial shifted up by 63 positions plus the remainder of its division
// by the generator.
func Encode(data uint64) Codeword {
	// Remainder register holds coefficients 0..62 during long division.
	var rem [ParityBits]byte
	for i := DataBits - 1; i >= 0; i-- {
		feedback := byte(data>>i) & 1
		feedback ^= rem[ParityBits-1]
		for j := ParityBits - 1; j > 0; j-- {
			rem[j] = rem[j-1] ^ (feedback & generator[j])
		}
		rem[0] = feedback & generator[0]
	}

	var cw Codeword
	for i := 0; i < ParityBits; i++ {
		cw.setBit(i, rem[i])
	}
	for i := 0; i < DataBits; i++ {
		cw.setBit(ParityBits+i, byte(data>>i)&1)
	}
	return cw
}

// Assemble rebuilds a (possibly noisy) received word from a re-derived
// data word and stored parity bytes.
func Assemble(data uint64, parity []byte) Codeword {
	var cw Codeword
	for i := 0; i < ParityBits; i++ {
		cw.setBit(i, (parity[i/8]>>(i%8))&1)
	}
	for i := 0; i < DataBits; i++ {
		cw.setBit(ParityBits+i, byte(data>>i)&1)
	}
	return cw
}

// Decode corrects up to Capacity bit errors in the received word and
// returns the corrected codeword together with the number of corrected
// bits. It returns ErrTooManyErrors when no codeword lies within Capacity
// bits of the input.
func Decode(received Codeword) (Codeword, int, error) {
	syndromes, zero := computeSyndromes(&received)
	if zero {
		return received, 0, nil
	}

	locator, degree, ok := berlekampMassey(syndromes)
	if !ok {
		return Codeword{}, 0, ErrTooManyErrors
	}

	positions := chienSearch(locator)
	if len(positions) != degree {
		return Codeword{}, 0, ErrTooManyErrors
	}

	corrected := received
	for _, pos := range positions {
		corrected.FlipBit(pos)
	}

	// A valid correction must cancel every syndrome.
	if _, zero := computeSyndromes(&corrected); !zero {
		return Codeword{}, 0, ErrTooManyErrors
	}
	return corrected, len(positions), nil
}

// computeSyndromes evaluates the received polynomial at alpha^1..alpha^2t.
func computeSyndromes(r *Codeword) ([2 * Capacity]byte, bool) {
	var s [2 * Capacity]byte
	zero := true
	for i := 0; i < Length; i++ {
		if r.Bit(i) == 0 {
			continue
		}
		for j := 1; j <= 2*Capacity; j++ {
			s[j-1] ^= gfPowAlpha(i * j)
		}
	}
	for _, v := range s {
		if v != 0 {
			zero = false
			break
		}
	}
	return s, zero
}

// berlekampMassey finds the error locator polynomial from the syndromes.
// Returns false when the locator degree exceeds the correction capacity.
func berlekampMassey(s [2 * Capacity]byte) ([]byte, int, bool) {
	c := make([]byte, 2*Capacity+1)
	b := make([]byte, 2*Capacity+1)
	c[0], b[0] = 1, 1

	degC := 0
	shift := 1
	lastDiscrepancy := byte(1)

	for iter := 0; iter < 2*Capacity; iter++ {
		d := s[iter]
		for i := 1; i <= degC; i++ {
			d ^= gfMul(c[i], s[iter-i])
		}

		if d == 0 {
			shift++
			continue
		}

		coef := gfMul(d, gfInv(lastDiscrepancy))
		if 2*degC <= iter {
			prev := make([]byte, len(c))
			copy(prev, c)
			for i := 0; i+shift < len(c); i++ {
				c[i+shift] ^= gfMul(coef, b[i])
			}
			degC = iter + 1 - degC
			copy(b, prev)
			lastDiscrepancy = d
			shift = 1
		} else {
			for i := 0; i+shift < len(c); i++ {
				c[i+shift] ^= gfMul(coef, b[i])
			}
			shift++
		}
	}

	if degC > Capacity {
		return nil, 0, false
	}
	return c[:degC+1], degC, true
}

// chienSearch returns the error positions: i is in error when the locator
// vanishes at alpha^-i.
func chienSearch(locator []byte) []int {
	var positions []int
	for i := 0; i < Length; i++ {
		at := gfPowAlpha(Length - i)
		if polyEval(locator, at) == 0 {
			positions = append(positions, i)
		}
	}
	return positions
}
