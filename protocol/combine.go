package protocol

import (
	"fmt"
	"math/big"

	"github.com/glaciation-heu/sap-uc3/crypto"
)

// Combined holds the per-slot sums of every provider's components.
type Combined struct {
	Secrets []*big.Int
	R       []*big.Int
	V       []*big.Int
	U       []*big.Int
	W       []*big.Int
}

// CombineBundles decodes the bundles of all providers and sums them slot by
// slot. All bundles must carry the same number of slots.
func CombineBundles(f *crypto.Field, bundles []*OutputBundle) (*Combined, error) {
	if len(bundles) == 0 {
		return nil, ErrEmptyBundle
	}

	var c Combined
	parts := []struct {
		name string
		dst  *[]*big.Int
		get  func(*OutputBundle) []byte
	}{
		{"secret", &c.Secrets, func(b *OutputBundle) []byte { return b.SecretShares }},
		{"r", &c.R, func(b *OutputBundle) []byte { return b.RShares }},
		{"v", &c.V, func(b *OutputBundle) []byte { return b.VShares }},
		{"u", &c.U, func(b *OutputBundle) []byte { return b.UShares }},
		{"w", &c.W, func(b *OutputBundle) []byte { return b.WShares }},
	}

	for _, part := range parts {
		var sums []*big.Int
		for i, b := range bundles {
			raw := part.get(b)
			if len(raw) == 0 {
				if part.name == "secret" {
					return nil, fmt.Errorf("%w: provider %d has no secret shares", ErrEmptyBundle, i)
				}
				continue
			}
			values, err := f.DecodeAll(raw)
			if err != nil {
				return nil, fmt.Errorf("provider %d %s shares: %w", i, part.name, err)
			}
			if sums == nil {
				sums = make([]*big.Int, len(values))
				for j := range sums {
					sums[j] = new(big.Int)
				}
			}
			if len(values) != len(sums) {
				return nil, fmt.Errorf("%w: provider %d has %d %s shares, expected %d",
					ErrShapeMismatch, i, len(values), part.name, len(sums))
			}
			for j, v := range values {
				crypto.FieldAddInplace(sums[j], v, f.Prime)
			}
		}
		*part.dst = sums
	}

	return &c, nil
}

// Blind returns x - mask mod p, the value an input party uploads.
func Blind(f *crypto.Field, x, mask *big.Int) *big.Int {
	return crypto.FieldSubInplace(f.Reduce(x), f.Reduce(mask), f.Prime)
}
