package crypto

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformedInput is returned when a byte block cannot be decoded into field elements.
var ErrMalformedInput = errors.New("malformed field element encoding")

// DefaultLimbWidth is the limb size in bytes used by the MPC runtime (64-bit limbs).
const DefaultLimbWidth = 8

// Reference 128-bit field used by the computation providers.
const (
	DefaultPrime = "198766463529478683931867765928436695041"
	DefaultR     = "141515903391459779531506841503331516415"
	DefaultRInv  = "133854242216446749056083838363708373830"
)

// Field describes a prime field together with the Montgomery constants needed
// to move values in and out of the representation used on the wire.
type Field struct {
	Prime     *big.Int
	R         *big.Int
	RInv      *big.Int
	LimbWidth int
}

var defaultField *Field

func init() {
	f, err := NewField(DefaultPrime, DefaultR, DefaultRInv, DefaultLimbWidth)
	if err != nil {
		panic(err)
	}
	defaultField = f
}

// DefaultField returns the reference 128-bit field.
func DefaultField() *Field {
	return defaultField
}

// NewField parses decimal constants and validates that they describe a usable
// Montgomery domain for two-limb words of limbWidth bytes each.
func NewField(prime, r, rInv string, limbWidth int) (*Field, error) {
	p, ok := new(big.Int).SetString(prime, 10)
	if !ok {
		return nil, fmt.Errorf("invalid prime %q", prime)
	}
	rr, ok := new(big.Int).SetString(r, 10)
	if !ok {
		return nil, fmt.Errorf("invalid montgomery constant %q", r)
	}
	ri, ok := new(big.Int).SetString(rInv, 10)
	if !ok {
		return nil, fmt.Errorf("invalid montgomery inverse %q", rInv)
	}
	if limbWidth <= 0 {
		return nil, fmt.Errorf("invalid limb width %d", limbWidth)
	}
	if p.Sign() <= 0 || p.Bit(0) == 0 {
		return nil, errors.New("prime must be odd and positive")
	}
	if p.BitLen() > 2*limbWidth*8 {
		return nil, fmt.Errorf("prime does not fit into %d byte words", 2*limbWidth)
	}

	check := new(big.Int).Mul(rr, ri)
	check.Mod(check, p)
	if check.Cmp(big.NewInt(1)) != 0 {
		return nil, errors.New("R * R_inv is not 1 modulo prime")
	}

	return &Field{Prime: p, R: rr, RInv: ri, LimbWidth: limbWidth}, nil
}

// WordWidth is the encoded size of one field element in bytes.
func (f *Field) WordWidth() int {
	return 2 * f.LimbWidth
}

// Reduce returns v mod p as a new value in [0, p).
func (f *Field) Reduce(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, f.Prime)
}

// Encode converts v into Montgomery form and renders it in the limb layout
// expected by the MPC runtime: big-endian word, bytes reversed inside each
// limb, limbs swapped.
func (f *Field) Encode(v *big.Int) []byte {
	mont := new(big.Int).Mul(v, f.R)
	mont.Mod(mont, f.Prime)

	word := make([]byte, f.WordWidth())
	mont.FillBytes(word)

	return swapLimbs(invertLimbEndianness(word, f.LimbWidth), f.LimbWidth)
}

// Decode is the inverse of Encode. The input must be exactly one word.
func (f *Field) Decode(b []byte) (*big.Int, error) {
	if len(b) != f.WordWidth() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedInput, len(b), f.WordWidth())
	}

	raw := new(big.Int).SetBytes(swapLimbs(invertLimbEndianness(b, f.LimbWidth), f.LimbWidth))
	raw.Mul(raw, f.RInv)
	return raw.Mod(raw, f.Prime), nil
}

// EncodeAll encodes values back to back.
func (f *Field) EncodeAll(values []*big.Int) []byte {
	out := make([]byte, 0, len(values)*f.WordWidth())
	for _, v := range values {
		out = append(out, f.Encode(v)...)
	}
	return out
}

// DecodeAll splits b into words and decodes each of them.
func (f *Field) DecodeAll(b []byte) ([]*big.Int, error) {
	ww := f.WordWidth()
	if len(b) == 0 || len(b)%ww != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedInput, len(b), ww)
	}

	values := make([]*big.Int, 0, len(b)/ww)
	for off := 0; off < len(b); off += ww {
		v, err := f.Decode(b[off : off+ww])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func invertLimbEndianness(word []byte, limbWidth int) []byte {
	out := make([]byte, len(word))
	for off := 0; off < len(word); off += limbWidth {
		for i := 0; i < limbWidth; i++ {
			out[off+i] = word[off+limbWidth-1-i]
		}
	}
	return out
}

func swapLimbs(word []byte, limbWidth int) []byte {
	out := make([]byte, len(word))
	copy(out[:limbWidth], word[limbWidth:])
	copy(out[limbWidth:], word[:limbWidth])
	return out
}

// FieldAddInplace performs modular addition in-place: l = (l + r) mod fieldOrder.
// The result is stored in l and also returned.
func FieldAddInplace(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	l.Add(l, r)
	if l.Cmp(fieldOrder) >= 0 {
		l.Sub(l, fieldOrder)
	}

	if l.Sign() < 0 {
		l.Add(l, fieldOrder)
	}

	return l
}

// FieldSubInplace performs modular subtraction in-place: l = (l - r) mod fieldOrder.
// The result is stored in l and also returned.
func FieldSubInplace(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	l.Sub(l, r)
	if l.Cmp(fieldOrder) >= 0 {
		l.Sub(l, fieldOrder)
	}
	if l.Sign() < 0 {
		l.Add(l, fieldOrder)
	}
	return l
}

// FieldMul returns (l * r) mod fieldOrder as a new value.
func FieldMul(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	res := new(big.Int).Mul(l, r)
	return res.Mod(res, fieldOrder)
}
