package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"crowdwave-ledger/config"
	"crowdwave-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// pushRetryIntervals are the delays between delivery attempts.
var pushRetryIntervals = []time.Duration{
	500 * time.Millisecond,
	2 * time.Second,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// pushRequest is the JSON body sent to the push gateway.
type pushRequest struct {
	Token        string            `json:"token"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	Priority     string            `json:"priority"`
	ChannelID    string            `json:"channelId"`
	ContentAvail bool              `json:"contentAvailable"`
}

// PushGateway implements ports.PushNotifier by POSTing messages to an HTTP
// push delivery gateway.
type PushGateway struct {
	url        string
	apiKey     string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewPushGateway creates a push notifier for the configured gateway endpoint.
func NewPushGateway(cfg config.PushConfig, httpClient HTTPClient, log zerolog.Logger) *PushGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &PushGateway{
		url:        cfg.GatewayURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		log:        log,
	}
}

// Send delivers a push notification to a device token. Transient failures are
// retried a small number of times; delivery is best-effort and the last error
// is returned for the caller to log.
func (g *PushGateway) Send(ctx context.Context, token, title, body string, payload domain.PushPayload) error {
	if g.url == "" {
		g.log.Debug().Msg("push: no gateway configured, skipping")
		return nil
	}

	reqBody := pushRequest{
		Token:        token,
		Title:        title,
		Body:         body,
		Data:         payload.Data(),
		Priority:     payload.Priority(),
		ChannelID:    payload.ChannelID(),
		ContentAvail: true,
	}
	payloadBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(pushRetryIntervals); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pushRetryIntervals[attempt-1]):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payloadBytes))
		if err != nil {
			return fmt.Errorf("create push request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = err
			g.log.Warn().Err(err).Int("attempt", attempt+1).Msg("push: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			g.log.Debug().
				Str("type", string(payload.Type)).
				Str("booking_id", payload.BookingID).
				Int("attempt", attempt+1).
				Msg("push: delivered")
			return nil
		}

		// 4xx responses are not retryable: the token or payload is bad.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("push gateway rejected request: status %d", resp.StatusCode)
		}

		lastErr = fmt.Errorf("push gateway returned status %d", resp.StatusCode)
		g.log.Warn().Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("push: non-2xx response, retrying")
	}

	return fmt.Errorf("push delivery exhausted retries: %w", lastErr)
}
