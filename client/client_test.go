package client

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/crypto"
	"github.com/glaciation-heu/sap-uc3/protocol"
	"github.com/glaciation-heu/sap-uc3/services"
	"github.com/glaciation-heu/sap-uc3/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProviders(t *testing.T) (*Client, *protocol.ShareEngine) {
	t.Helper()

	engine := protocol.NewShareEngine(crypto.DefaultField())
	r := chi.NewRouter()
	services.NewProviderAPI(engine, services.ProviderAPIConfig{}, testutil.DiscardLogger()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c := New("", []string{srv.URL + "/0/amphora", srv.URL + "/1/amphora"})
	return c, engine
}

func bigs(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestShareAndReveal(t *testing.T) {
	c, engine := setupProviders(t)
	ctx := context.Background()

	values := bigs(42, 0, 1, 1234567890)
	secretID, err := c.ShareSecrets(ctx, values)
	require.NoError(t, err)
	require.NotEmpty(t, secretID)
	assert.Equal(t, []string{secretID}, engine.SecretIDs())

	// Neither provider holds a value in the clear.
	for p := 0; p < protocol.NumProviders; p++ {
		shares, ok := engine.SecretShares(p, secretID)
		require.True(t, ok)
		assert.Len(t, shares, len(values))
	}

	revealed, err := c.Reveal(ctx, secretID)
	require.NoError(t, err)
	require.Len(t, revealed, len(values))
	for i := range values {
		assert.Equal(t, 0, values[i].Cmp(revealed[i]), "slot %d", i)
	}

	// A second reveal uses fresh randomness and yields the same values.
	again, err := c.Reveal(ctx, secretID)
	require.NoError(t, err)
	for i := range values {
		assert.Equal(t, 0, revealed[i].Cmp(again[i]), "slot %d", i)
	}
}

func TestShareNegativeValue(t *testing.T) {
	c, _ := setupProviders(t)
	ctx := context.Background()

	secretID, err := c.ShareSecrets(ctx, bigs(-5))
	require.NoError(t, err)

	revealed, err := c.Reveal(ctx, secretID)
	require.NoError(t, err)
	want := new(big.Int).Sub(c.Field.Prime, big.NewInt(5))
	assert.Equal(t, 0, want.Cmp(revealed[0]))
}

func TestShareSecretsRequiresValues(t *testing.T) {
	c, _ := setupProviders(t)
	_, err := c.ShareSecrets(context.Background(), nil)
	require.Error(t, err)

	empty := New("", nil)
	_, err = empty.ShareSecrets(context.Background(), bigs(1))
	require.Error(t, err)
}

func TestRevealUnknownSecret(t *testing.T) {
	c, _ := setupProviders(t)
	_, err := c.Reveal(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSecretNotFound)
}

func TestListAndDeleteSecrets(t *testing.T) {
	c, engine := setupProviders(t)
	ctx := context.Background()

	a, err := c.ShareSecrets(ctx, bigs(1))
	require.NoError(t, err)
	b, err := c.ShareSecrets(ctx, bigs(2))
	require.NoError(t, err)

	ids, err := c.ListSecrets(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, ids)

	require.NoError(t, c.DeleteSecrets(ctx, []string{a}))
	assert.Equal(t, []string{b}, engine.SecretIDs())
}

func TestVerifyTagsDetectsTampering(t *testing.T) {
	f := crypto.DefaultField()
	mask, err := protocol.GenerateInputMask(f)
	require.NoError(t, err)

	combined := &protocol.Combined{
		Secrets: []*big.Int{mask.Secret.Sum(f)},
		R:       []*big.Int{mask.R.Sum(f)},
		V:       []*big.Int{mask.V.Sum(f)},
		U:       []*big.Int{mask.U.Sum(f)},
		W:       []*big.Int{mask.W.Sum(f)},
	}
	require.NoError(t, verifyTags(f, combined))

	combined.Secrets[0] = crypto.FieldAddInplace(combined.Secrets[0], big.NewInt(1), f.Prime)
	require.ErrorIs(t, verifyTags(f, combined), ErrIntegrityCheck)
}

func coordinatorStub(t *testing.T, status int, body any) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status/100 == 2 {
			httpserver.WriteJSON(w, status, body)
			return
		}
		httpserver.WriteError(w, status, body.(string))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, nil)
}

func TestResultIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("finished", func(t *testing.T) {
		c := coordinatorStub(t, http.StatusOK, []string{"r1"})
		ids, err := c.ResultIDs(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, ids)
	})

	t.Run("not finished", func(t *testing.T) {
		c := coordinatorStub(t, http.StatusConflict, "processing not finished")
		_, err := c.ResultIDs(ctx, 1)
		require.ErrorIs(t, err, ErrNotFinished)
	})

	t.Run("failed", func(t *testing.T) {
		c := coordinatorStub(t, http.StatusInternalServerError, "MPC execution failed: boom")
		_, err := c.ResultIDs(ctx, 1)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusInternalServerError, se.Code)
		assert.Equal(t, "MPC execution failed: boom", se.Message)
	})
}

func TestConfirmUploadAlreadyReported(t *testing.T) {
	c := coordinatorStub(t, http.StatusAlreadyReported, nil)
	err := c.ConfirmUpload(context.Background(), 1, 2, []string{"s"})
	require.ErrorIs(t, err, ErrAlreadyUploaded)
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int64
		wantErr bool
	}{
		{"single column", "age\n31\n45\n", []int64{31, 45}, false},
		{"multiple columns", "age, income\n31, 1000\n45, 2000", []int64{31, 1000, 45, 2000}, false},
		{"negative", "delta\n-3\n", []int64{-3}, false},
		{"header only", "age\n", nil, true},
		{"empty", "", nil, true},
		{"not a number", "age\nabc\n", nil, true},
		{"ragged row", "a,b\n1\n", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCSV(strings.NewReader(tc.input))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, bigs(tc.want...), got)
		})
	}
}
