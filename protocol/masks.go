package protocol

import (
	"math/big"

	"github.com/glaciation-heu/sap-uc3/crypto"
)

// NumProviders is the number of computation providers holding shares.
const NumProviders = 2

// OddProvider is the provider that adds the parity correction when turning a
// blinded value into its half-share. It is a fixed protocol parameter: the
// reconstruction is off by up to one if both providers disagree on it.
const OddProvider = 1

// MaxMaskCount bounds the number of input masks handed out per request.
const MaxMaskCount = 1 << 16

// Pair holds one value per provider.
type Pair [NumProviders]*big.Int

func (p Pair) clone() Pair {
	var c Pair
	for i, v := range p {
		if v != nil {
			c[i] = new(big.Int).Set(v)
		}
	}
	return c
}

// Sum returns the sum of both halves modulo p.
func (p Pair) Sum(f *crypto.Field) *big.Int {
	s := new(big.Int)
	for _, v := range p {
		if v != nil {
			s.Add(s, v)
		}
	}
	return s.Mod(s, f.Prime)
}

// InputMask is one slot of correlated randomness. Every component is split
// between the providers and the halves satisfy, for each provider i,
//
//	W[i] = S[i]*R[0] + S[i]*R[1]  (mod p)
//	U[i] = V[i]*R[0] + V[i]*R[1]  (mod p)
type InputMask struct {
	Secret Pair
	R      Pair
	V      Pair
	U      Pair
	W      Pair
}

func (m InputMask) clone() InputMask {
	return InputMask{
		Secret: m.Secret.clone(),
		R:      m.R.clone(),
		V:      m.V.clone(),
		U:      m.U.clone(),
		W:      m.W.clone(),
	}
}

func (m InputMask) component(c component) Pair {
	switch c {
	case componentR:
		return m.R
	case componentV:
		return m.V
	case componentU:
		return m.U
	case componentW:
		return m.W
	default:
		return m.Secret
	}
}

type component int

const (
	componentSecret component = iota
	componentR
	componentV
	componentU
	componentW
)

// GenerateInputMask samples a fresh input mask with a random secret pair.
func GenerateInputMask(f *crypto.Field) (InputMask, error) {
	var secret Pair
	for i := range secret {
		v, err := crypto.RandomFieldElement(f)
		if err != nil {
			return InputMask{}, err
		}
		secret[i] = v
	}
	return GenerateInputMaskFor(f, secret)
}

// GenerateInputMaskFor samples r and v and derives u and w for the given
// secret pair.
func GenerateInputMaskFor(f *crypto.Field, secret Pair) (InputMask, error) {
	m := InputMask{Secret: secret.clone()}
	for i := 0; i < NumProviders; i++ {
		r, err := crypto.RandomFieldElement(f)
		if err != nil {
			return InputMask{}, err
		}
		v, err := crypto.RandomFieldElement(f)
		if err != nil {
			return InputMask{}, err
		}
		m.R[i], m.V[i] = r, v
	}
	for i := 0; i < NumProviders; i++ {
		m.W[i] = crossProduct(f, m.Secret[i], m.R)
		m.U[i] = crossProduct(f, m.V[i], m.R)
	}
	return m, nil
}

// crossProduct computes x*r[0] + x*r[1] mod p.
func crossProduct(f *crypto.Field, x *big.Int, r Pair) *big.Int {
	acc := new(big.Int)
	for _, ri := range r {
		crypto.FieldAddInplace(acc, crypto.FieldMul(x, ri, f.Prime), f.Prime)
	}
	return acc
}
