// Package policy authorizes lifecycle operations against the caller's
// access-token identity and organisation memberships.
//
// Every check runs the same chain: required scopes present (403 when absent,
// fails closed), the caller's user record exists (404), then membership of the
// organisation owning the target resource. Device targets accept membership of
// the owning provider organisation or, when that fails, of the device's
// aggregator organisation. Certificate targets resolve certificate → device →
// organisation first.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"warden/internal/directory"
	"warden/internal/token"
	dErrors "warden/pkg/domain-errors"
)

// Engine evaluates authorization policies. Read-only over the directory.
type Engine struct {
	dir          directory.Client
	logger       *slog.Logger
	deviceScopes []string
	certScopes   []string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger used for denial diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a policy engine. deviceScopes guard device and
// organisation targets, certScopes guard certificate targets; a caller must
// hold every scope in the relevant set.
func NewEngine(dir directory.Client, deviceScopes, certScopes []string, opts ...Option) *Engine {
	e := &Engine{
		dir:          dir,
		logger:       slog.Default(),
		deviceScopes: deviceScopes,
		certScopes:   certScopes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthorizeOrg allows the operation when the caller is a member of the
// organisation with the given ABN.
func (e *Engine) AuthorizeOrg(ctx context.Context, tc *token.Context, abn string) error {
	user, err := e.checkScopesAndUser(ctx, tc, e.deviceScopes)
	if err != nil {
		return err
	}

	for _, m := range memberships(user) {
		if m.ABN == abn {
			return nil
		}
	}

	e.logger.WarnContext(ctx, "caller is not a member of the organisation",
		"user_id", tc.UserID,
		"abn", abn,
	)
	return dErrors.New(dErrors.CodeForbidden, "Forbidden: User is not a member of the organisation")
}

// AuthorizeDevice allows the operation when the caller is a member of the
// device's owning provider organisation, or of its aggregator organisation
// when the provider membership is absent.
func (e *Engine) AuthorizeDevice(ctx context.Context, tc *token.Context, deviceID string) error {
	user, err := e.checkScopesAndUser(ctx, tc, e.deviceScopes)
	if err != nil {
		return err
	}
	return e.checkDeviceMembership(ctx, tc, user, deviceID)
}

// AuthorizeCertificate allows the operation when the caller is a member of
// the organisation owning the certificate's device.
func (e *Engine) AuthorizeCertificate(ctx context.Context, tc *token.Context, certificateID string) error {
	user, err := e.checkScopesAndUser(ctx, tc, e.certScopes)
	if err != nil {
		return err
	}

	cert, err := e.dir.Read(ctx, directory.CollectionCertificates, certificateID)
	if errors.Is(err, directory.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Certificate not found: [%s]", certificateID))
	}
	if err != nil {
		return e.internal(ctx, "certificate read failed", err)
	}

	deviceID := cert.String("deviceId")
	if deviceID == "" {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Certificate [%s] is not associated with any device", certificateID))
	}

	return e.checkDeviceMembership(ctx, tc, user, deviceID)
}

// AuthorizeOAuthClient allows the operation when the caller is a member of
// the organisation owning the device whose certificate carries the OAuth
// client id. Revocations identify certificates by client id, not record id.
func (e *Engine) AuthorizeOAuthClient(ctx context.Context, tc *token.Context, oauthClientID string) error {
	user, err := e.checkScopesAndUser(ctx, tc, e.certScopes)
	if err != nil {
		return err
	}

	res, err := e.dir.Query(ctx, directory.CollectionCertificates, directory.Eq("oauthClientId", oauthClientID))
	if err != nil {
		return e.internal(ctx, "certificate lookup failed", err)
	}
	if res.ResultCount == 0 {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("No certificate found for OAuth client [%s]", oauthClientID))
	}

	deviceID := res.Result[0].String("deviceId")
	if deviceID == "" {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Certificate [%s] is not associated with any device", res.Result[0].ID()))
	}
	return e.checkDeviceMembership(ctx, tc, user, deviceID)
}

func (e *Engine) checkDeviceMembership(ctx context.Context, tc *token.Context, user directory.Record, deviceID string) error {
	device, err := e.dir.Read(ctx, directory.CollectionDevices, deviceID)
	if errors.Is(err, directory.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Device not found: [%s]", deviceID))
	}
	if err != nil {
		return e.internal(ctx, "device read failed", err)
	}

	orgID := device.String("organisationId")
	if orgID == "" {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Device [%s] is not associated with any organisation", deviceID))
	}

	refs := memberships(user)
	if memberOf(refs, orgID) {
		return nil
	}

	// Provider membership absent: fall back to the aggregator organisation.
	if aggID := device.String("aggregatorId"); aggID != "" {
		e.logger.InfoContext(ctx, "no provider organisation membership, checking aggregator",
			"user_id", tc.UserID,
			"device_id", deviceID,
		)
		if memberOf(refs, aggID) {
			return nil
		}
	}

	e.logger.WarnContext(ctx, "caller is not a member of the organisation owning the device",
		"user_id", tc.UserID,
		"device_id", deviceID,
	)
	return dErrors.New(dErrors.CodeForbidden, "Forbidden: User is not a member of the organisation")
}

func (e *Engine) checkScopesAndUser(ctx context.Context, tc *token.Context, required []string) (directory.Record, error) {
	if tc == nil || !tc.HasScopes(required) {
		e.logger.WarnContext(ctx, "missing required scope", "required", required)
		return nil, dErrors.New(dErrors.CodeForbidden, "Forbidden: Missing required scope")
	}

	user, err := e.dir.Read(ctx, directory.CollectionUsers, tc.UserID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("User not found: [%s]", tc.UserID))
	}
	if err != nil {
		return nil, e.internal(ctx, "user read failed", err)
	}
	return user, nil
}

func (e *Engine) internal(ctx context.Context, msg string, err error) error {
	e.logger.ErrorContext(ctx, msg, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
}

// Membership is one organisation the user belongs to.
type Membership struct {
	OrgID string
	ABN   string
}

// memberships extracts the user's organisation references. Each entry carries
// the organisation id and its ABN, expanded at write time.
func memberships(user directory.Record) []Membership {
	raw, ok := user["memberOfOrganisations"].([]any)
	if !ok {
		return nil
	}
	out := make([]Membership, 0, len(raw))
	for _, v := range raw {
		ref, ok := v.(map[string]any)
		if !ok {
			continue
		}
		m := Membership{}
		if s, ok := ref["orgId"].(string); ok {
			m.OrgID = s
		}
		if s, ok := ref["abn"].(string); ok {
			m.ABN = s
		}
		out = append(out, m)
	}
	return out
}

func memberOf(refs []Membership, orgID string) bool {
	for _, m := range refs {
		if m.OrgID == orgID {
			return true
		}
	}
	return false
}
