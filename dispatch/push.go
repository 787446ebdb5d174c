package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"premium-watch-go/infrastructure/logger"
)

// Subscription is an opaque push subscription blob registered by a client.
// The payload is forwarded verbatim; its structure belongs to the push
// provider, not to us.
type Subscription struct {
	Endpoint string          `json:"endpoint"`
	Keys     json.RawMessage `json:"keys,omitempty"`
}

// PushForwarder relays subscription registrations to the external push
// service. Delivery is fire-and-forget: a failure is logged, never surfaced
// to the subscribing client.
type PushForwarder struct {
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

// NewPushForwarder targets the configured push endpoint. An empty endpoint
// disables forwarding.
func NewPushForwarder(endpoint string, log *logger.Logger) *PushForwarder {
	if log == nil {
		log = logger.Nop()
	}
	return &PushForwarder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.Named("push"),
	}
}

// Enabled reports whether an endpoint is configured.
func (f *PushForwarder) Enabled() bool { return f.endpoint != "" }

// Forward posts the subscription upstream.
func (f *PushForwarder) Forward(ctx context.Context, sub Subscription) error {
	if !f.Enabled() {
		return nil
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push endpoint status %d", resp.StatusCode)
	}
	f.log.Info("subscription forwarded", zap.String("endpoint", sub.Endpoint))
	return nil
}

// ForwardAsync forwards on a fresh goroutine, logging any failure.
func (f *PushForwarder) ForwardAsync(sub Subscription) {
	if !f.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := f.Forward(ctx, sub); err != nil {
			f.log.Warn("push forward failed", zap.Error(err))
		}
	}()
}
