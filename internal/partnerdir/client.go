// Package partnerdir wraps the partner-integration directory's device
// registration and removal endpoints.
package partnerdir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"warden/internal/platform/tracer"
	dErrors "warden/pkg/domain-errors"
)

// Credentials are sent as headers on every request.
type Credentials struct {
	ClientID           string
	ClientSecret       string
	AccessClientID     string
	AccessClientSecret string
}

// Client calls the partner-integration directory over HTTP.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	tracer     tracer.Tracer
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer sets the tracer for outbound call spans.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient creates a partner-directory client.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type registerRequest struct {
	DeviceName string `json:"device_name"`
}

// RegisterDevice registers a device under the organisation's external id.
func (c *Client) RegisterDevice(ctx context.Context, orgExternalID, deviceExternalID, deviceName string) (err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanPartnerRegister,
		tracer.String("org_external_id", orgExternalID),
	)
	defer func() { span.End(err) }()

	c.logger.InfoContext(ctx, "registering device in partner directory",
		"org_external_id", orgExternalID,
		"device_external_id", deviceExternalID,
	)

	url := fmt.Sprintf("%s/providers/%s/devices/%s", c.baseURL, orgExternalID, deviceExternalID)
	payload, err := json.Marshal(registerRequest{DeviceName: deviceName})
	if err != nil {
		return err
	}
	if err = c.do(ctx, http.MethodPost, url, payload); err != nil {
		c.logger.ErrorContext(ctx, "failed to register device in partner directory", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "Failed to register device in partner directory")
	}
	return nil
}

// RemoveDevice removes a previously registered device. The device name rides
// along as a query parameter with spaces collapsed, matching the directory's
// expected encoding.
func (c *Client) RemoveDevice(ctx context.Context, orgExternalID, deviceExternalID, deviceName string) (err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanPartnerRemove,
		tracer.String("org_external_id", orgExternalID),
	)
	defer func() { span.End(err) }()

	c.logger.InfoContext(ctx, "removing device from partner directory",
		"org_external_id", orgExternalID,
		"device_external_id", deviceExternalID,
	)

	encodedName := strings.ReplaceAll(deviceName, " ", "%")
	url := fmt.Sprintf("%s/providers/%s/devices/%s?device_name=%s", c.baseURL, orgExternalID, deviceExternalID, encodedName)
	if err = c.do(ctx, http.MethodDelete, url, nil); err != nil {
		c.logger.ErrorContext(ctx, "failed to remove device from partner directory", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "Failed to remove device from partner directory")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("client_id", c.creds.ClientID)
	req.Header.Set("client_secret", c.creds.ClientSecret)
	if c.creds.AccessClientID != "" {
		req.Header.Set("CF-Access-Client-Id", c.creds.AccessClientID)
		req.Header.Set("CF-Access-Client-Secret", c.creds.AccessClientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("partner directory returned status %d", resp.StatusCode)
	}
	return nil
}
