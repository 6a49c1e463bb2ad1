package protocol

import (
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/glaciation-heu/sap-uc3/crypto"
	"github.com/stretchr/testify/require"
)

// uploadValues runs the masking phase for the given cleartexts under secretID.
func uploadValues(t *testing.T, e *ShareEngine, secretID string, values []*big.Int) {
	t.Helper()
	f := e.Field()

	bundles := make([]*OutputBundle, NumProviders)
	for p := 0; p < NumProviders; p++ {
		b, err := e.InputMaskBundle(p, secretID, len(values))
		require.NoError(t, err)
		bundles[p] = b
	}
	combined, err := CombineBundles(f, bundles)
	require.NoError(t, err)

	blinded := make([]*big.Int, len(values))
	for i, x := range values {
		blinded[i] = Blind(f, x, combined.Secrets[i])
	}

	in := NewMaskedInput(f, secretID, blinded)
	blocks, err := in.Blocks()
	require.NoError(t, err)
	for p := 0; p < NumProviders; p++ {
		require.NoError(t, e.ApplyEncodedMaskedInput(p, secretID, blocks))
	}
}

// shareBundles fetches every provider's bundle of secretID under requestID.
func shareBundles(t *testing.T, e *ShareEngine, secretID, requestID string) []*OutputBundle {
	t.Helper()
	out := make([]*OutputBundle, NumProviders)
	for p := 0; p < NumProviders; p++ {
		b, err := e.ShareBundle(p, secretID, requestID)
		require.NoError(t, err)
		out[p] = b
	}
	return out
}

// shareValues runs the full masked-input protocol for the given cleartexts and
// returns the provider bundles for the secret.
func shareValues(t *testing.T, e *ShareEngine, secretID string, values []*big.Int) []*OutputBundle {
	t.Helper()
	uploadValues(t, e, secretID, values)
	return shareBundles(t, e, secretID, "reveal-"+secretID)
}

// requireTags checks sum W = S*R and sum U = V*R for every slot.
func requireTags(t *testing.T, f *crypto.Field, c *Combined) {
	t.Helper()
	for i := range c.Secrets {
		require.Zero(t, crypto.FieldMul(c.Secrets[i], c.R[i], f.Prime).Cmp(c.W[i]), "slot %d: S*R != W", i)
		require.Zero(t, crypto.FieldMul(c.V[i], c.R[i], f.Prime).Cmp(c.U[i]), "slot %d: V*R != U", i)
	}
}

func TestAdditiveReconstruction(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)

	for i := 0; i < 50; i++ {
		x := crypto.MustRandomFieldElement(f)
		bundles := shareValues(t, e, fmt.Sprintf("secret-%d", i), []*big.Int{x})

		combined, err := CombineBundles(f, bundles)
		require.NoError(t, err)
		require.Len(t, combined.Secrets, 1)
		require.Zero(t, x.Cmp(combined.Secrets[0]), "reconstructed %s, want %s", combined.Secrets[0], x)
	}
}

func TestAdditiveReconstructionMultipleValues(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)

	values := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(500000)}
	bundles := shareValues(t, e, "multi", values)

	combined, err := CombineBundles(f, bundles)
	require.NoError(t, err)
	require.Len(t, combined.Secrets, len(values))
	for i := range values {
		require.Zero(t, values[i].Cmp(combined.Secrets[i]))
	}
}

func TestReconstructionIndependentOfUploadOrder(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)
	x := big.NewInt(450)

	var bundles []*OutputBundle
	for p := 0; p < NumProviders; p++ {
		b, err := e.InputMaskBundle(p, "ordered", 1)
		require.NoError(t, err)
		bundles = append(bundles, b)
	}
	combined, err := CombineBundles(f, bundles)
	require.NoError(t, err)
	blinded := []*big.Int{Blind(f, x, combined.Secrets[0])}

	// Odd provider first.
	require.NoError(t, e.ApplyMaskedInput(1, "ordered", blinded))
	require.NoError(t, e.ApplyMaskedInput(0, "ordered", blinded))

	s0, ok := e.SecretShares(0, "ordered")
	require.True(t, ok)
	s1, ok := e.SecretShares(1, "ordered")
	require.True(t, ok)

	sum := Pair{s0[0], s1[0]}.Sum(f)
	require.Zero(t, x.Cmp(sum))
}

func TestShareBundleCorrelations(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)
	bundles := shareValues(t, e, "corr", []*big.Int{big.NewInt(42)})

	var s, r, v, u, w Pair
	for p, b := range bundles {
		dec := func(raw []byte) *big.Int {
			vals, err := f.DecodeAll(raw)
			require.NoError(t, err)
			require.Len(t, vals, 1)
			return vals[0]
		}
		s[p], r[p], v[p], u[p], w[p] = dec(b.SecretShares), dec(b.RShares), dec(b.VShares), dec(b.UShares), dec(b.WShares)
	}

	rSum := r.Sum(f)
	for p := 0; p < NumProviders; p++ {
		require.Zero(t, crypto.FieldMul(s[p], rSum, f.Prime).Cmp(w[p]))
		require.Zero(t, crypto.FieldMul(v[p], rSum, f.Prime).Cmp(u[p]))
	}
}

func TestInputMasksIdempotent(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())

	first, err := e.InputMasks("req", 3)
	require.NoError(t, err)
	second, err := e.InputMasks("req", 3)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Count is ignored once masks exist.
	third, err := e.InputMasks("req", 7)
	require.NoError(t, err)
	require.Equal(t, first, third)

	b0, err := e.InputMaskBundle(0, "req", 3)
	require.NoError(t, err)
	b0again, err := e.InputMaskBundle(0, "req", 3)
	require.NoError(t, err)
	require.Equal(t, b0, b0again)
}

func TestInputMasksDifferPerKey(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())

	a, err := e.InputMasks("a", 2)
	require.NoError(t, err)
	b, err := e.InputMasks("b", 2)
	require.NoError(t, err)

	for i := range a {
		for p := 0; p < NumProviders; p++ {
			require.NotEqual(t, a[i].Secret[p], b[i].Secret[p])
			require.NotEqual(t, a[i].R[p], b[i].R[p])
			require.NotEqual(t, a[i].V[p], b[i].V[p])
			require.NotEqual(t, a[i].U[p], b[i].U[p])
			require.NotEqual(t, a[i].W[p], b[i].W[p])
		}
	}
}

func TestInputMasksReturnCopies(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())

	first, err := e.InputMasks("copy", 1)
	require.NoError(t, err)
	want := new(big.Int).Set(first[0].Secret[0])
	first[0].Secret[0].SetInt64(7)

	second, err := e.InputMasks("copy", 1)
	require.NoError(t, err)
	require.Zero(t, want.Cmp(second[0].Secret[0]))
}

func TestInputMasksConcurrentFirstInsertWins(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())

	const n = 16
	results := make([][]InputMask, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := e.InputMasks("shared", 2)
			if err == nil {
				results[i] = m
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Equal(t, results[0], results[i])
	}
}

func TestInputMasksInvalidCount(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())
	_, err := e.InputMasks("x", 0)
	require.ErrorIs(t, err, ErrInvalidCount)
	_, err = e.InputMaskBundle(0, "x", -1)
	require.ErrorIs(t, err, ErrInvalidCount)
	_, err = e.InputMasks("x", MaxMaskCount+1)
	require.ErrorIs(t, err, ErrInvalidCount)

	// Rejected requests cache nothing.
	masks, err := e.InputMasks("x", 1)
	require.NoError(t, err)
	require.Len(t, masks, 1)
}

func TestApplyMaskedInputErrors(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())

	err := e.ApplyMaskedInput(0, "unknown", []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrMasksNotFound)

	_, err = e.InputMasks("two", 2)
	require.NoError(t, err)
	err = e.ApplyMaskedInput(0, "two", []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrShapeMismatch)

	err = e.ApplyMaskedInput(2, "two", []*big.Int{big.NewInt(1), big.NewInt(2)})
	require.ErrorIs(t, err, ErrInvalidProvider)

	err = e.ApplyEncodedMaskedInput(0, "two", [][]byte{make([]byte, 15)})
	require.ErrorIs(t, err, crypto.ErrMalformedInput)

	// Failed uploads leave no record behind.
	require.Empty(t, e.SecretIDs())
}

func TestApplyEncodedMaskedInputFlattensBlocks(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)

	_, err := e.InputMasks("flat", 3)
	require.NoError(t, err)

	block := f.EncodeAll([]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)})
	require.NoError(t, e.ApplyEncodedMaskedInput(0, "flat", [][]byte{block}))

	shares, ok := e.SecretShares(0, "flat")
	require.True(t, ok)
	require.Len(t, shares, 3)
}

func TestShareBundleRequestIDReusingSecretID(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)
	x := big.NewInt(500000)
	uploadValues(t, e, "sid", []*big.Int{x})

	combined, err := CombineBundles(f, shareBundles(t, e, "sid", "sid"))
	require.NoError(t, err)
	require.Zero(t, x.Cmp(combined.Secrets[0]))
	requireTags(t, f, combined)
}

func TestShareBundleRandomnessIsNotAnInputMask(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)
	uploadValues(t, e, "stored", []*big.Int{big.NewInt(7)})
	shareBundles(t, e, "stored", "reveal-req")

	err := e.ApplyMaskedInput(0, "reveal-req", []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrMasksNotFound)

	// Input masks under the same id are fresh and do not expose the secret halves.
	masks, err := e.InputMasks("reveal-req", 1)
	require.NoError(t, err)
	stored0, _ := e.SecretShares(0, "stored")
	stored1, _ := e.SecretShares(1, "stored")
	require.False(t, masks[0].Secret[0].Cmp(stored0[0]) == 0 && masks[0].Secret[1].Cmp(stored1[0]) == 0)

	// And the share bundle keeps its own randomness afterwards.
	combined, err := CombineBundles(f, shareBundles(t, e, "stored", "reveal-req"))
	require.NoError(t, err)
	requireTags(t, f, combined)
}

func TestShareBundleUnknownSecretIsEmpty(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())
	b, err := e.ShareBundle(0, "missing", "req")
	require.NoError(t, err)
	require.True(t, b.IsEmpty())

	odo := b.DeliveryObject()
	require.Equal(t, OutputDeliveryObject{}, odo)
}

func TestShareBundleRandomnessIsStablePerRequest(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())
	shareValues(t, e, "stable", []*big.Int{big.NewInt(9)})

	a, err := e.ShareBundle(1, "stable", "r1")
	require.NoError(t, err)
	b, err := e.ShareBundle(1, "stable", "r1")
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := e.ShareBundle(1, "stable", "r2")
	require.NoError(t, err)
	require.Equal(t, a.SecretShares, c.SecretShares)
	require.NotEqual(t, a.RShares, c.RShares)
}

func TestDeleteSecret(t *testing.T) {
	e := NewShareEngine(crypto.DefaultField())
	shareValues(t, e, "gone", []*big.Int{big.NewInt(1)})
	require.Equal(t, []string{"gone"}, e.SecretIDs())

	e.DeleteSecret("gone")
	e.DeleteSecret("gone")
	require.Empty(t, e.SecretIDs())

	b, err := e.ShareBundle(0, "gone", "again")
	require.NoError(t, err)
	require.True(t, b.IsEmpty())
}

func TestCombineBundlesShapeMismatch(t *testing.T) {
	f := crypto.DefaultField()
	a := &OutputBundle{SecretShares: f.EncodeAll([]*big.Int{big.NewInt(1)})}
	b := &OutputBundle{SecretShares: f.EncodeAll([]*big.Int{big.NewInt(1), big.NewInt(2)})}

	_, err := CombineBundles(f, []*OutputBundle{a, b})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = CombineBundles(f, []*OutputBundle{a, {}})
	require.ErrorIs(t, err, ErrEmptyBundle)

	_, err = CombineBundles(f, nil)
	require.ErrorIs(t, err, ErrEmptyBundle)
}

func TestDeliveryObjectRoundTrip(t *testing.T) {
	f := crypto.DefaultField()
	e := NewShareEngine(f)
	b, err := e.InputMaskBundle(0, "odo", 2)
	require.NoError(t, err)

	back, err := b.DeliveryObject().Bundle()
	require.NoError(t, err)
	require.Equal(t, b, back)

	_, err = OutputDeliveryObject{SecretShares: "%%%"}.Bundle()
	require.ErrorIs(t, err, crypto.ErrMalformedInput)
}
