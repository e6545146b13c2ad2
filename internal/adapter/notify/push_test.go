package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crowdwave-ledger/config"
	"crowdwave-ledger/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPushConfig(url string) config.PushConfig {
	return config.PushConfig{GatewayURL: url, APIKey: "test-key", Timeout: time.Second}
}

func TestPushGateway_Send(t *testing.T) {
	var received pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewPushGateway(testPushConfig(srv.URL), nil, zerolog.Nop())
	payload := domain.PushPayload{
		Type:      domain.PushTypeFundsReleased,
		BookingID: "booking-1",
		Amount:    2500,
		Currency:  "usd",
	}

	err := g.Send(context.Background(), "device-token", "Funds released", "You earned $25.00", payload)
	require.NoError(t, err)
	assert.Equal(t, "device-token", received.Token)
	assert.Equal(t, "high", received.Priority)
	assert.Equal(t, "payments", received.ChannelID)
	assert.Equal(t, "booking-1", received.Data["bookingId"])
}

func TestPushGateway_RetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewPushGateway(testPushConfig(srv.URL), nil, zerolog.Nop())

	err := g.Send(context.Background(), "token", "title", "body", domain.PushPayload{Type: domain.PushTypeDeliveryUpdate})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPushGateway_NoRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewPushGateway(testPushConfig(srv.URL), nil, zerolog.Nop())

	err := g.Send(context.Background(), "bad-token", "title", "body", domain.PushPayload{Type: domain.PushTypePaymentReceived})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPushGateway_NoGatewayConfigured(t *testing.T) {
	g := NewPushGateway(config.PushConfig{}, nil, zerolog.Nop())

	err := g.Send(context.Background(), "token", "title", "body", domain.PushPayload{})
	assert.NoError(t, err)
}
