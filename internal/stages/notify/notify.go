// Package notify implements the notify stage: deliver the run summary to the
// configured webhook and, optionally, a NATS subject.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
)

// Delivery is the work item payload this stage emits.
type Delivery struct {
	Webhook bool `json:"webhook"`
	NATS    bool `json:"nats"`
	Skipped bool `json:"skipped,omitempty"`
}

// Notifier delivers run summaries.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
	dryRun bool

	// connect is swappable for tests.
	connect func(url string) (*nats.Conn, error)
}

// NewNotifier builds the stage adapter.
func NewNotifier(cfg config.NotifyConfig, dryRun bool) *Notifier {
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		dryRun:  dryRun,
		connect: func(url string) (*nats.Conn, error) { return nats.Connect(url) },
	}
}

// ConsumesRunSummary marks this stage's single work item as the run summary.
func (n *Notifier) ConsumesRunSummary() {}

// ProcessItem delivers one run summary. With neither webhook nor NATS
// configured the stage is a no-op that still records its artifact.
func (n *Notifier) ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error) {
	out := Delivery{}
	if n.dryRun {
		out.Skipped = true
		return json.Marshal(out)
	}

	if n.cfg.WebhookURL != "" {
		if err := n.postWebhook(ctx, item.Data); err != nil {
			return nil, err
		}
		out.Webhook = true
	}

	if n.cfg.NATSURL != "" {
		if err := n.publishNATS(item.Data); err != nil {
			return nil, err
		}
		out.NATS = true
	}

	return json.Marshal(out)
}

func (n *Notifier) postWebhook(ctx context.Context, summary []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(summary))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (n *Notifier) publishNATS(summary []byte) error {
	subject := n.cfg.NATSSubject
	if subject == "" {
		subject = "uxpipe.runs"
	}

	nc, err := n.connect(n.cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	if err := nc.Publish(subject, summary); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}
