package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

// OutputTypeAmphoraSecret stores computation results as secrets on the providers.
const OutputTypeAmphoraSecret = "AMPHORASECRET"

var (
	errNoResult       = errors.New("provider returned no result id")
	errResultMismatch = errors.New("providers disagree on the result id")
)

// EphemeralEngine runs programs through the execution endpoint of every
// provider. It implements coordinator.ComputationEngine.
type EphemeralEngine struct {
	client   *http.Client
	insecure *http.Client
	log      *slog.Logger
}

var _ coordinator.ComputationEngine = (*EphemeralEngine)(nil)

// NewEphemeralEngine creates an engine whose requests time out after timeout.
// A zero timeout leaves the deadline to the caller's context.
func NewEphemeralEngine(timeout time.Duration, log *slog.Logger) *EphemeralEngine {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per provider config

	return &EphemeralEngine{
		client:   &http.Client{Timeout: timeout},
		insecure: &http.Client{Timeout: timeout, Transport: transport},
		log:      log,
	}
}

// Execute starts the program on every provider concurrently under a fresh
// game id. All providers must report the same first result id.
func (e *EphemeralEngine) Execute(ctx context.Context, program []byte, cfg *coordinator.ProviderConfig, shareIDs []string) (string, error) {
	if len(cfg.Providers) == 0 {
		return "", errors.New("no providers configured")
	}

	payload := StartComputationPayload{
		GameID:        xid.New().String(),
		AmphoraParams: shareIDs,
		SecretParams:  []string{},
		Output:        OutputOptions{Type: OutputTypeAmphoraSecret},
		Code:          string(program),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	client := e.client
	if cfg.NoSSLValidation {
		client = e.insecure
	}

	results := make([][]string, len(cfg.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range cfg.Providers {
		g.Go(func() error {
			ids, err := e.start(gctx, client, provider, body)
			if err != nil {
				return fmt.Errorf("provider %d: %w", provider.ID, err)
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	resultID := results[0][0]
	for i, ids := range results[1:] {
		if ids[0] != resultID {
			return "", fmt.Errorf("%w: %q from provider %d, %q from provider %d",
				errResultMismatch, resultID, cfg.Providers[0].ID, ids[0], cfg.Providers[i+1].ID)
		}
	}

	e.log.Info("Computation finished", "gameId", payload.GameID, "resultId", resultID, "providers", len(cfg.Providers))
	return resultID, nil
}

func (e *EphemeralEngine) start(ctx context.Context, client *http.Client, provider coordinator.ProviderEndpoint, body []byte) ([]string, error) {
	url := strings.TrimRight(provider.EphemeralServiceURL, "/") + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("execution rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ComputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding execution response: %w", err)
	}
	if len(out.Response) == 0 || out.Response[0] == "" {
		return nil, errNoResult
	}
	return out.Response, nil
}
