package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/metrics"
	"golang.org/x/sync/errgroup"
)

// NotifierConfig configures output party notifications.
type NotifierConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// DefaultNotifierConfig returns a 10 second timeout with 8 parallel deliveries.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{Timeout: 10 * time.Second, Concurrency: 8}
}

// HTTPNotifier PUTs execution results to {endpoint}/notify. Deliveries are
// attempted once, failures are logged and counted.
type HTTPNotifier struct {
	client      *http.Client
	concurrency int
	log         *slog.Logger
}

var _ coordinator.OutputNotifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier creates a notifier.
func NewHTTPNotifier(cfg NotifierConfig, log *slog.Logger) *HTTPNotifier {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &HTTPNotifier{
		client:      &http.Client{Timeout: cfg.Timeout},
		concurrency: cfg.Concurrency,
		log:         log,
	}
}

// Notify delivers result to every endpoint and returns once all deliveries ended.
func (n *HTTPNotifier) Notify(ctx context.Context, endpoints []string, result coordinator.ExecutionResult) {
	body, err := json.Marshal(result)
	if err != nil {
		n.log.Error("Encoding notification failed", "collaboration", result.CollaborationID, "err", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(n.concurrency)
	for _, endpoint := range endpoints {
		g.Go(func() error {
			if err := n.deliver(ctx, endpoint, body); err != nil {
				metrics.Notifications.WithLabelValues(metrics.OutcomeFailure).Inc()
				n.log.Warn("Notification failed", "collaboration", result.CollaborationID, "endpoint", endpoint, "err", err)
				return nil
			}
			metrics.Notifications.WithLabelValues(metrics.OutcomeSuccess).Inc()
			n.log.Info("Output party notified", "collaboration", result.CollaborationID, "endpoint", endpoint)
			return nil
		})
	}
	_ = g.Wait()
}

func (n *HTTPNotifier) deliver(ctx context.Context, endpoint string, body []byte) error {
	url := strings.TrimRight(endpoint, "/") + "/notify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
