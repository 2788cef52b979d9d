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

	"github.com/cockroachdb/errors"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// ErrInvalidWebhookURL is returned for URLs that are not http(s).
var ErrInvalidWebhookURL = errors.New("webhook url must start with http:// or https://")

// DeliveryError reports a non-2xx answer from the webhook.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// Poster delivers a webhook payload.
type Poster interface {
	Post(ctx context.Context, msg *slack.WebhookMessage) error
}

// Client posts messages to a Slack incoming webhook.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates url and returns a webhook client. A zero timeout uses
// the default of 10s.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, ErrInvalidWebhookURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Post sends msg as JSON. Any status outside 2xx is a *DeliveryError carrying
// the response body.
func (c *Client) Post(ctx context.Context, msg *slack.WebhookMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal webhook message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send webhook request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read webhook response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("webhook rejected message",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
			zap.ByteString("request_body", payload),
		)
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
