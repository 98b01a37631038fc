// Package pki wraps the PKI issuer's certificate signing and revocation
// endpoints.
package pki

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"warden/internal/platform/tracer"
	dErrors "warden/pkg/domain-errors"
)

// ReasonCode is an X.509 revocation reason, RFC 5280 §5.3.1.
type ReasonCode int

const (
	ReasonUnspecified          ReasonCode = 0
	ReasonKeyCompromise        ReasonCode = 1
	ReasonCACompromise         ReasonCode = 2
	ReasonAffiliationChanged   ReasonCode = 3
	ReasonSuperseded           ReasonCode = 4
	ReasonCessationOfOperation ReasonCode = 5
	ReasonCertificateHold      ReasonCode = 6
	ReasonRemoveFromCRL        ReasonCode = 8
	ReasonPrivilegeWithdrawn   ReasonCode = 9
	ReasonAACompromise         ReasonCode = 10
)

// SignedCertificate is the issuer's response to a CSR exchange.
type SignedCertificate struct {
	CertPEM      string `json:"cert"`
	SerialNumber string `json:"serialnumber"`
}

// Config carries the issuer endpoints and credentials.
type Config struct {
	SignEndpoint   string
	RevokeEndpoint string
	Token          string
	TemplateID     string
	CAID           string
	CAName         string
}

// Client calls the PKI issuer over HTTP.
type Client struct {
	cfg        Config
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

// NewClient creates a PKI issuer client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type signRequest struct {
	TemplateID string `json:"template_id"`
	CAID       string `json:"ca_id"`
	CSR        string `json:"csr"`
}

type revokeRequest struct {
	CAName string     `json:"caname"`
	Serial string     `json:"serial"`
	Reason ReasonCode `json:"reason"`
}

// Sign exchanges a CSR for a signed certificate. Any transport or issuer
// failure maps to an upstream error; state on our side is untouched.
func (c *Client) Sign(ctx context.Context, csr string) (_ *SignedCertificate, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanPKISign)
	defer func() { span.End(err) }()

	body := signRequest{
		TemplateID: c.cfg.TemplateID,
		CAID:       c.cfg.CAID,
		CSR:        csr,
	}
	var signed SignedCertificate
	if err = c.post(ctx, c.cfg.SignEndpoint, body, &signed); err != nil {
		c.logger.ErrorContext(ctx, "failed to obtain certificate from PKI service", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "Failed to obtain certificate from PKI service")
	}

	if !strings.Contains(signed.CertPEM, "-----BEGIN CERTIFICATE-----") {
		c.logger.ErrorContext(ctx, "PKI certificate response is missing expected content")
		return nil, dErrors.New(dErrors.CodeUpstream, "Failed to obtain certificate from PKI service")
	}
	return &signed, nil
}

// Revoke asks the issuer to revoke the certificate with the given serial
// number.
func (c *Client) Revoke(ctx context.Context, serialNumber string, reason ReasonCode) (err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanPKIRevoke)
	defer func() { span.End(err) }()

	body := revokeRequest{
		CAName: c.cfg.CAName,
		Serial: serialNumber,
		Reason: reason,
	}
	if err = c.post(ctx, c.cfg.RevokeEndpoint, body, nil); err != nil {
		c.logger.ErrorContext(ctx, "failed to revoke certificate at PKI server",
			"serial_number", serialNumber,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "Failed to revoke certificate at PKI server")
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Jellyfish-Token", c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("pki returned status %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ParseExpiry extracts the notAfter date from a PEM certificate, formatted as
// yyyy-MM-dd. A certificate that cannot be parsed is a validation error.
func ParseExpiry(certPEM string) (string, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return "", dErrors.New(dErrors.CodeValidation, "Certificate format invalid. Failed to parse.")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "Certificate format invalid. Failed to parse.")
	}
	return cert.NotAfter.Format("2006-01-02"), nil
}
