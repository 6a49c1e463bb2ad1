package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomFieldElement samples a uniform element of [0, p).
func RandomFieldElement(f *Field) (*big.Int, error) {
	v, err := rand.Int(rand.Reader, f.Prime)
	if err != nil {
		return nil, fmt.Errorf("sampling field element: %w", err)
	}
	return v, nil
}

// MustRandomFieldElement is RandomFieldElement for callers that treat a broken
// system randomness source as fatal.
func MustRandomFieldElement(f *Field) *big.Int {
	v, err := RandomFieldElement(f)
	if err != nil {
		panic(err)
	}
	return v
}
