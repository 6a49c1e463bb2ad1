package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/crypto"
	"github.com/glaciation-heu/sap-uc3/protocol"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFinished is returned while the computation of a collaboration runs.
	ErrNotFinished = errors.New("computation not finished")

	// ErrAlreadyUploaded is returned when the coordinator already holds an upload of the party.
	ErrAlreadyUploaded = errors.New("upload already confirmed")

	// ErrAlreadyRegistered is returned when the party is already registered.
	ErrAlreadyRegistered = errors.New("party already registered")

	// ErrSecretNotFound is returned when the providers hold no shares of a secret.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrIntegrityCheck is returned when revealed shares do not match their tags.
	ErrIntegrityCheck = errors.New("share integrity check failed")
)

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Client talks to the coordinator and to the secret-share endpoints of the
// providers. Providers[i] is the share service base URL of provider i, for
// example http://provider:8080/0/amphora.
type Client struct {
	Coordinator string
	Providers   []string
	Field       *crypto.Field
	HTTP        *http.Client
}

// New creates a client over the default field.
func New(coordinatorURL string, providers []string) *Client {
	return &Client{
		Coordinator: strings.TrimRight(coordinatorURL, "/"),
		Providers:   providers,
		Field:       crypto.DefaultField(),
		HTTP:        http.DefaultClient,
	}
}

// ForCollaboration creates a client from the provider configuration the
// coordinator stores for collabID.
func ForCollaboration(ctx context.Context, coordinatorURL string, collabID int64) (*Client, error) {
	c := New(coordinatorURL, nil)
	cfg, err := c.ComputeConfig(ctx, collabID)
	if err != nil {
		return nil, err
	}
	field, err := cfg.Field()
	if err != nil {
		return nil, err
	}
	c.Field = field

	for _, p := range cfg.Providers {
		c.Providers = append(c.Providers, strings.TrimRight(p.AmphoraServiceURL, "/"))
	}
	if cfg.NoSSLValidation {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // requested by the provider config
		c.HTTP = &http.Client{Transport: transport}
	}
	return c, nil
}

// ComputeConfig fetches the provider configuration of a collaboration.
func (c *Client) ComputeConfig(ctx context.Context, collabID int64) (*coordinator.ProviderConfig, error) {
	var cfg coordinator.ProviderConfig
	if _, err := c.do(ctx, http.MethodGet, c.collabURL(collabID, "compute_config"), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RegisterInputParty registers partyID as input party of collabID.
func (c *Client) RegisterInputParty(ctx context.Context, collabID, partyID int64) (*coordinator.Participation, error) {
	var p coordinator.Participation
	status, err := c.do(ctx, http.MethodPost, c.collabURL(collabID, "register-input-party", itoa(partyID)), nil, &p)
	if err != nil {
		return nil, err
	}
	if status == http.StatusAlreadyReported {
		return &p, ErrAlreadyRegistered
	}
	return &p, nil
}

// RegisterOutputParty registers endpoint to receive the result notification of collabID.
func (c *Client) RegisterOutputParty(ctx context.Context, collabID, partyID int64, endpoint string) error {
	u := c.collabURL(collabID, "register-output-party", itoa(partyID)) + "?partyClientEndpoint=" + url.QueryEscape(endpoint)
	_, err := c.do(ctx, http.MethodPost, u, nil, nil)
	return err
}

// ShareSecrets secret-shares values with all providers and returns the
// secret id. The request id of the input masks doubles as secret id.
func (c *Client) ShareSecrets(ctx context.Context, values []*big.Int) (string, error) {
	if len(values) == 0 {
		return "", errors.New("no values to share")
	}
	if len(c.Providers) == 0 {
		return "", errors.New("no providers configured")
	}

	requestID := xid.New().String()
	bundles := make([]*protocol.OutputBundle, len(c.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range c.Providers {
		g.Go(func() error {
			u := fmt.Sprintf("%s/input-masks?requestId=%s&count=%d", provider, url.QueryEscape(requestID), len(values))
			var odo protocol.OutputDeliveryObject
			if _, err := c.do(gctx, http.MethodGet, u, nil, &odo); err != nil {
				return fmt.Errorf("provider %d: fetching input masks: %w", i, err)
			}
			b, err := odo.Bundle()
			if err != nil {
				return fmt.Errorf("provider %d: %w", i, err)
			}
			bundles[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	masks, err := protocol.CombineBundles(c.Field, bundles)
	if err != nil {
		return "", err
	}
	if len(masks.Secrets) != len(values) {
		return "", fmt.Errorf("%w: got %d masks for %d values", protocol.ErrShapeMismatch, len(masks.Secrets), len(values))
	}

	blinded := make([]*big.Int, len(values))
	for i, v := range values {
		blinded[i] = protocol.Blind(c.Field, v, masks.Secrets[i])
	}
	in := protocol.NewMaskedInput(c.Field, requestID, blinded)

	g, gctx = errgroup.WithContext(ctx)
	for i, provider := range c.Providers {
		g.Go(func() error {
			if _, err := c.do(gctx, http.MethodPost, provider+"/masked-inputs", in, nil); err != nil {
				return fmt.Errorf("provider %d: uploading masked input: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return requestID, nil
}

// ConfirmUpload reports the uploaded secret ids of partyID to the coordinator.
func (c *Client) ConfirmUpload(ctx context.Context, collabID, partyID int64, secretIDs []string) error {
	status, err := c.do(ctx, http.MethodPost, c.collabURL(collabID, "confirm-upload", itoa(partyID)), secretIDs, nil)
	if err != nil {
		return err
	}
	if status == http.StatusAlreadyReported {
		return ErrAlreadyUploaded
	}
	return nil
}

// Upload shares values and confirms the upload. It returns the created secret ids.
func (c *Client) Upload(ctx context.Context, collabID, partyID int64, values []*big.Int) ([]string, error) {
	secretID, err := c.ShareSecrets(ctx, values)
	if err != nil {
		return nil, err
	}
	ids := []string{secretID}
	if err := c.ConfirmUpload(ctx, collabID, partyID, ids); err != nil {
		return ids, err
	}
	return ids, nil
}

// ResultIDs returns the result secret ids of a finished collaboration.
func (c *Client) ResultIDs(ctx context.Context, collabID int64) ([]string, error) {
	var ids []string
	_, err := c.do(ctx, http.MethodGet, c.collabURL(collabID, "result_ids"), nil, &ids)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		return nil, ErrNotFinished
	}
	return ids, err
}

// Reveal fetches the share bundles of secretID from every provider under a
// fresh request id, checks the tags and returns the reconstructed values.
func (c *Client) Reveal(ctx context.Context, secretID string) ([]*big.Int, error) {
	requestID := xid.New().String()
	bundles := make([]*protocol.OutputBundle, len(c.Providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range c.Providers {
		g.Go(func() error {
			u := fmt.Sprintf("%s/secret-shares/%s?requestId=%s", provider, url.PathEscape(secretID), url.QueryEscape(requestID))
			var resp protocol.SecretShareResponse
			if _, err := c.do(gctx, http.MethodGet, u, nil, &resp); err != nil {
				return fmt.Errorf("provider %d: fetching shares: %w", i, err)
			}
			b, err := resp.DeliveryObject().Bundle()
			if err != nil {
				return fmt.Errorf("provider %d: %w", i, err)
			}
			if b.IsEmpty() {
				return fmt.Errorf("%w: %s on provider %d", ErrSecretNotFound, secretID, i)
			}
			bundles[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined, err := protocol.CombineBundles(c.Field, bundles)
	if err != nil {
		return nil, err
	}
	if err := verifyTags(c.Field, combined); err != nil {
		return nil, err
	}
	return combined.Secrets, nil
}

// Result reveals every result secret of a finished collaboration.
func (c *Client) Result(ctx context.Context, collabID int64) ([][]*big.Int, error) {
	ids, err := c.ResultIDs(ctx, collabID)
	if err != nil {
		return nil, err
	}
	out := make([][]*big.Int, 0, len(ids))
	for _, id := range ids {
		values, err := c.Reveal(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("revealing %s: %w", id, err)
		}
		out = append(out, values)
	}
	return out, nil
}

// ListSecrets returns the secret ids stored on the first provider.
func (c *Client) ListSecrets(ctx context.Context) ([]string, error) {
	if len(c.Providers) == 0 {
		return nil, errors.New("no providers configured")
	}
	var ids []string
	_, err := c.do(ctx, http.MethodGet, c.Providers[0]+"/secret-shares", nil, &ids)
	return ids, err
}

// DeleteSecrets removes the secrets from every provider.
func (c *Client) DeleteSecrets(ctx context.Context, secretIDs []string) error {
	for _, provider := range c.Providers {
		for _, id := range secretIDs {
			if _, err := c.do(ctx, http.MethodDelete, provider+"/secret-shares/"+url.PathEscape(id), nil, nil); err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
		}
	}
	return nil
}

// verifyTags checks W = S*R and U = V*R for every reconstructed slot.
func verifyTags(f *crypto.Field, c *protocol.Combined) error {
	if len(c.R) != len(c.Secrets) || len(c.W) != len(c.Secrets) {
		return fmt.Errorf("%w: missing tag shares", ErrIntegrityCheck)
	}
	for i := range c.Secrets {
		if crypto.FieldMul(c.Secrets[i], c.R[i], f.Prime).Cmp(c.W[i]) != 0 {
			return fmt.Errorf("%w: slot %d", ErrIntegrityCheck, i)
		}
		if len(c.V) == len(c.Secrets) && len(c.U) == len(c.Secrets) &&
			crypto.FieldMul(c.V[i], c.R[i], f.Prime).Cmp(c.U[i]) != 0 {
			return fmt.Errorf("%w: slot %d", ErrIntegrityCheck, i)
		}
	}
	return nil
}

func (c *Client) collabURL(collabID int64, parts ...string) string {
	return c.Coordinator + "/collaboration/" + strings.Join(append([]string{itoa(collabID)}, parts...), "/")
}

// do sends body as JSON and decodes the response into out. Non-2xx
// responses become *StatusError.
func (c *Client) do(ctx context.Context, method, u string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, statusError(resp)
	}
	if out == nil || resp.ContentLength == 0 {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er httpserver.ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Message != "" {
		return &StatusError{Code: resp.StatusCode, Message: er.Message}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
