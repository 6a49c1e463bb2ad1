package protocol

import (
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/glaciation-heu/sap-uc3/crypto"
	"github.com/glaciation-heu/sap-uc3/metrics"
)

// ShareEngine generates input masks, turns masked inputs into per-provider
// half-shares and serves share bundles. One engine serves every provider
// index of a deployment.
//
// Input masks and share-bundle randomness live in separate caches, so a
// request id used in one phase never yields values of the other. Each is
// generated at most once per key. The lock only guards map access; sampling,
// decoding and share arithmetic happen outside of it.
type ShareEngine struct {
	field *crypto.Field

	mu         sync.Mutex
	masks      map[string][]InputMask
	randomness map[string][]InputMask
	secrets    map[string][]Pair
}

// NewShareEngine creates an engine over the given field.
func NewShareEngine(field *crypto.Field) *ShareEngine {
	return &ShareEngine{
		field:      field,
		masks:      make(map[string][]InputMask),
		randomness: make(map[string][]InputMask),
		secrets:    make(map[string][]Pair),
	}
}

// Field returns the engine's field.
func (e *ShareEngine) Field() *crypto.Field {
	return e.field
}

// InputMasks returns the masks cached under requestID, generating count fresh
// masks if there are none. Once stored, masks never change: a later call with
// a different count still returns the stored masks.
func (e *ShareEngine) InputMasks(requestID string, count int) ([]InputMask, error) {
	if count <= 0 || count > MaxMaskCount {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidCount, count, MaxMaskCount)
	}
	return e.getOrGenerate(e.masks, requestID, func() ([]InputMask, error) {
		masks := make([]InputMask, count)
		for i := range masks {
			m, err := GenerateInputMask(e.field)
			if err != nil {
				return nil, err
			}
			masks[i] = m
		}
		return masks, nil
	})
}

// InputMaskBundle returns the provider's halves of the masks cached under requestID.
func (e *ShareEngine) InputMaskBundle(provider int, requestID string, count int) (*OutputBundle, error) {
	if err := checkProvider(provider); err != nil {
		return nil, err
	}
	masks, err := e.InputMasks(requestID, count)
	if err != nil {
		return nil, err
	}

	secrets := make([]*big.Int, len(masks))
	for i, m := range masks {
		secrets[i] = m.Secret[provider]
	}
	return e.bundle(provider, secrets, masks), nil
}

// ApplyMaskedInput turns blinded values into this provider's half-shares of
// the secret. Masks must have been handed out under secretID before.
//
// For blinded value b and secret half s_i the share is floor((b + 2*s_i)/2),
// plus b mod 2 on OddProvider. Only this provider's half of the record is
// written, so providers may apply the same input in any order.
func (e *ShareEngine) ApplyMaskedInput(provider int, secretID string, blinded []*big.Int) error {
	if err := checkProvider(provider); err != nil {
		return err
	}

	e.mu.Lock()
	masks, ok := e.masks[secretID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMasksNotFound, secretID)
	}
	if len(masks) != len(blinded) {
		return fmt.Errorf("%w: %d blinded values for %d masks", ErrShapeMismatch, len(blinded), len(masks))
	}

	two := big.NewInt(2)
	shares := make([]*big.Int, len(blinded))
	for i, b := range blinded {
		b = e.field.Reduce(b)
		share := new(big.Int).Lsh(masks[i].Secret[provider], 1)
		share.Add(share, b)
		share.Div(share, two)
		if provider == OddProvider {
			share.Add(share, new(big.Int).Mod(b, two))
		}
		shares[i] = share.Mod(share, e.field.Prime)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	record, ok := e.secrets[secretID]
	if !ok {
		record = make([]Pair, len(shares))
		for i := range record {
			for p := range record[i] {
				record[i][p] = new(big.Int)
			}
		}
		e.secrets[secretID] = record
	}
	if len(record) != len(shares) {
		return fmt.Errorf("%w: record %s has %d slots, got %d", ErrShapeMismatch, secretID, len(record), len(shares))
	}
	for i, s := range shares {
		record[i][provider] = s
	}

	metrics.MaskedInputsApplied.Add(float64(len(shares)))
	return nil
}

// ApplyEncodedMaskedInput decodes field-encoded blocks and applies them. A
// block may hold several concatenated words; all words are used in order.
func (e *ShareEngine) ApplyEncodedMaskedInput(provider int, secretID string, blocks [][]byte) error {
	var blinded []*big.Int
	for i, block := range blocks {
		values, err := e.field.DecodeAll(block)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blinded = append(blinded, values...)
	}
	return e.ApplyMaskedInput(provider, secretID, blinded)
}

// ShareBundle returns this provider's half of the stored secret together with
// its halves of r, v, u and w cached under requestID. Randomness for a new
// requestID is generated for the record's secret pairs and kept apart from
// input masks. An unknown secret yields an empty bundle.
func (e *ShareEngine) ShareBundle(provider int, secretID, requestID string) (*OutputBundle, error) {
	if err := checkProvider(provider); err != nil {
		return nil, err
	}

	e.mu.Lock()
	stored, ok := e.secrets[secretID]
	record := make([]Pair, len(stored))
	for i, p := range stored {
		record[i] = p.clone()
	}
	e.mu.Unlock()
	if !ok {
		return &OutputBundle{}, nil
	}

	masks, err := e.getOrGenerate(e.randomness, requestID, func() ([]InputMask, error) {
		masks := make([]InputMask, len(record))
		for i, pair := range record {
			m, err := GenerateInputMaskFor(e.field, pair)
			if err != nil {
				return nil, err
			}
			masks[i] = m
		}
		return masks, nil
	})
	if err != nil {
		return nil, err
	}
	if len(masks) != len(record) {
		return nil, fmt.Errorf("%w: request %s holds %d masks for %d shares", ErrShapeMismatch, requestID, len(masks), len(record))
	}

	secrets := make([]*big.Int, len(record))
	for i, pair := range record {
		secrets[i] = pair[provider]
	}
	return e.bundle(provider, secrets, masks), nil
}

// DeleteSecret removes the stored shares of secretID. Unknown ids are ignored.
func (e *ShareEngine) DeleteSecret(secretID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.secrets, secretID)
}

// SecretIDs lists the ids of all stored secrets in lexical order.
func (e *ShareEngine) SecretIDs() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.secrets))
	for id := range e.secrets {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// SecretShares returns this provider's decoded half-shares of secretID.
func (e *ShareEngine) SecretShares(provider int, secretID string) ([]*big.Int, bool) {
	if checkProvider(provider) != nil {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.secrets[secretID]
	if !ok {
		return nil, false
	}
	out := make([]*big.Int, len(record))
	for i, p := range record {
		out[i] = new(big.Int).Set(p[provider])
	}
	return out, true
}

func (e *ShareEngine) getOrGenerate(cache map[string][]InputMask, key string, generate func() ([]InputMask, error)) ([]InputMask, error) {
	e.mu.Lock()
	cached, ok := cache[key]
	e.mu.Unlock()
	if ok {
		return cloneMasks(cached), nil
	}

	fresh, err := generate()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := cache[key]; ok {
		// Lost the race against a concurrent request, the first insert wins.
		return cloneMasks(cached), nil
	}
	cache[key] = fresh
	metrics.MasksGenerated.Add(float64(len(fresh)))
	return cloneMasks(fresh), nil
}

func (e *ShareEngine) bundle(provider int, secrets []*big.Int, masks []InputMask) *OutputBundle {
	pick := func(c component) []byte {
		values := make([]*big.Int, len(masks))
		for i, m := range masks {
			values[i] = m.component(c)[provider]
		}
		return e.field.EncodeAll(values)
	}
	return &OutputBundle{
		SecretShares: e.field.EncodeAll(secrets),
		RShares:      pick(componentR),
		VShares:      pick(componentV),
		UShares:      pick(componentU),
		WShares:      pick(componentW),
	}
}

func cloneMasks(masks []InputMask) []InputMask {
	out := make([]InputMask, len(masks))
	for i, m := range masks {
		out[i] = m.clone()
	}
	return out
}

func checkProvider(provider int) error {
	if provider < 0 || provider >= NumProviders {
		return fmt.Errorf("%w: %d", ErrInvalidProvider, provider)
	}
	return nil
}
