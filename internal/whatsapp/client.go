// Package whatsapp talks to the WhatsApp Cloud API: outbound sends, read
// receipts and the inbound webhook.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultUserAgent  = "whatsapp-concierge/0.1"
)

// Config controls how the Cloud API client behaves.
type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	// PublicBaseURL prefixes relative image links.
	PublicBaseURL string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
	UserAgent     string
}

// Client implements conversation.DeliveryGateway over the Cloud API.
type Client struct {
	endpoint      string
	accessToken   string
	publicBaseURL string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	logger        *logging.Logger
	userAgent     string
	tracer        trace.Tracer
}

var _ conversation.DeliveryGateway = (*Client)(nil)

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		endpoint:      fmt.Sprintf("%s/%s/%s/messages", baseURL, version, cfg.PhoneNumberID),
		accessToken:   cfg.AccessToken,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		logger:        logger,
		userAgent:     userAgent,
		tracer:        otel.Tracer("concierge.internal.whatsapp"),
	}, nil
}

// Send delivers a text message. A non-empty inReplyTo quotes that inbound message.
func (c *Client) Send(ctx context.Context, address, text, inReplyTo string) error {
	if strings.TrimSpace(address) == "" {
		return errors.New("whatsapp: recipient required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("whatsapp: message text required")
	}
	req := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               address,
		Type:             "text",
		Text:             &textBody{Body: text},
	}
	if inReplyTo != "" {
		req.Context = &replyContext{MessageID: inReplyTo}
	}
	return conversation.NewTransportError("whatsapp.send", c.post(ctx, "send_text", req))
}

// SendImage delivers an image by link. Relative links resolve against PublicBaseURL.
func (c *Client) SendImage(ctx context.Context, address, link, inReplyTo string) error {
	if strings.TrimSpace(address) == "" {
		return errors.New("whatsapp: recipient required")
	}
	resolved, err := c.resolveLink(link)
	if err != nil {
		return err
	}
	req := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               address,
		Type:             "image",
		Image:            &imageBody{Link: resolved},
	}
	if inReplyTo != "" {
		req.Context = &replyContext{MessageID: inReplyTo}
	}
	return conversation.NewTransportError("whatsapp.send_image", c.post(ctx, "send_image", req))
}

// MarkRead acknowledges an inbound message so the sender sees the blue ticks.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("whatsapp: message id required")
	}
	req := readReceipt{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	}
	return conversation.NewTransportError("whatsapp.mark_read", c.post(ctx, "mark_read", req))
}

func (c *Client) resolveLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", errors.New("whatsapp: image link required")
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link, nil
	}
	if c.publicBaseURL == "" {
		return "", fmt.Errorf("whatsapp: relative image link %q needs a public base url", link)
	}
	return c.publicBaseURL + "/" + strings.TrimLeft(link, "/"), nil
}

func (c *Client) post(ctx context.Context, op string, payload any) error {
	ctx, span := c.tracer.Start(ctx, "whatsapp."+op)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal %s body: %w", op, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		span.SetAttributes(attribute.Int("whatsapp.attempt", attempt+1))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("whatsapp: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				span.RecordError(err)
				return fmt.Errorf("whatsapp: http error: %w", err)
			}
			lastErr = err
			c.logRetry(op, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("whatsapp: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(op, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		span.RecordError(apiErr)
		return apiErr
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("whatsapp: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(op string, attempt int, status int, err error) {
	c.logger.Warn("whatsapp retry",
		"op", op,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	parsed.Error.StatusCode = status
	return &parsed.Error
}
