package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
)

func summaryItem() artifact.Item {
	return artifact.Item{
		ID:     "run-1",
		Status: artifact.StatusPending,
		Data:   json.RawMessage(`{"run_id":"run-1","status":"completed"}`),
	}
}

func TestProcessItemPostsSummaryToWebhook(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{WebhookURL: srv.URL}, false)
	out, err := n.ProcessItem(context.Background(), summaryItem())
	require.NoError(t, err)

	var d Delivery
	require.NoError(t, json.Unmarshal(out, &d))
	assert.True(t, d.Webhook)
	assert.False(t, d.NATS)
	assert.JSONEq(t, `{"run_id":"run-1","status":"completed"}`, string(received))
}

func TestProcessItemWebhookErrorIsItemFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{WebhookURL: srv.URL}, false)
	_, err := n.ProcessItem(context.Background(), summaryItem())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestProcessItemNothingConfigured(t *testing.T) {
	n := NewNotifier(config.NotifyConfig{}, false)
	out, err := n.ProcessItem(context.Background(), summaryItem())
	require.NoError(t, err)

	var d Delivery
	require.NoError(t, json.Unmarshal(out, &d))
	assert.False(t, d.Webhook)
	assert.False(t, d.NATS)
}

func TestProcessItemDryRun(t *testing.T) {
	n := NewNotifier(config.NotifyConfig{WebhookURL: "https://hooks.example.com/x"}, true)
	out, err := n.ProcessItem(context.Background(), summaryItem())
	require.NoError(t, err)

	var d Delivery
	require.NoError(t, json.Unmarshal(out, &d))
	assert.True(t, d.Skipped)
	assert.False(t, d.Webhook)
}
