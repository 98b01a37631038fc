package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/directory"
	"warden/internal/token"
	dErrors "warden/pkg/domain-errors"
)

var (
	deviceScopes = []string{"partner:device:manage"}
	certScopes   = []string{"partner:certificate:manage"}
)

func seedDirectory(t *testing.T) *directory.Memory {
	t.Helper()
	ctx := context.Background()
	dir := directory.NewMemory()

	seed := map[string][]directory.Record{
		directory.CollectionOrganisations: {
			{"_id": "org-provider", "abn": "12345678901", "type": "provider"},
			{"_id": "org-aggregator", "abn": "22345678901", "type": "aggregator"},
		},
		directory.CollectionDevices: {
			{"_id": "dev-1", "organisationId": "org-provider", "aggregatorId": "org-aggregator"},
			{"_id": "dev-orphan"},
		},
		directory.CollectionCertificates: {
			{"_id": "cert-1", "oauthClientId": "client-abc", "deviceId": "dev-1"},
			{"_id": "cert-orphan"},
		},
		directory.CollectionUsers: {
			{"_id": "user-provider", "memberOfOrganisations": []any{
				map[string]any{"orgId": "org-provider", "abn": "12345678901"},
			}},
			{"_id": "user-aggregator", "memberOfOrganisations": []any{
				map[string]any{"orgId": "org-aggregator", "abn": "22345678901"},
			}},
			{"_id": "user-outsider", "memberOfOrganisations": []any{
				map[string]any{"orgId": "org-other", "abn": "99999999999"},
			}},
		},
	}
	for collection, records := range seed {
		for _, rec := range records {
			_, err := dir.Create(ctx, collection, rec)
			require.NoError(t, err)
		}
	}
	return dir
}

func caller(userID string, scopes ...string) *token.Context {
	return &token.Context{UserID: userID, ClientID: "client-1", Scopes: scopes}
}

func TestAuthorizeOrg(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seedDirectory(t), deviceScopes, certScopes)

	t.Run("member is allowed", func(t *testing.T) {
		err := engine.AuthorizeOrg(ctx, caller("user-provider", "partner:device:manage"), "12345678901")
		assert.NoError(t, err)
	})

	t.Run("missing scope fails closed before membership", func(t *testing.T) {
		err := engine.AuthorizeOrg(ctx, caller("user-provider"), "12345678901")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.Equal(t, "Forbidden: Missing required scope", err.Error())
	})

	t.Run("nil token context fails closed", func(t *testing.T) {
		err := engine.AuthorizeOrg(ctx, nil, "12345678901")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown user", func(t *testing.T) {
		err := engine.AuthorizeOrg(ctx, caller("ghost", "partner:device:manage"), "12345678901")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, "User not found: [ghost]", err.Error())
	})

	t.Run("non-member", func(t *testing.T) {
		err := engine.AuthorizeOrg(ctx, caller("user-outsider", "partner:device:manage"), "12345678901")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.Equal(t, "Forbidden: User is not a member of the organisation", err.Error())
	})
}

func TestAuthorizeDevice(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seedDirectory(t), deviceScopes, certScopes)

	t.Run("provider member is allowed", func(t *testing.T) {
		err := engine.AuthorizeDevice(ctx, caller("user-provider", "partner:device:manage"), "dev-1")
		assert.NoError(t, err)
	})

	t.Run("aggregator member is allowed via fallback", func(t *testing.T) {
		err := engine.AuthorizeDevice(ctx, caller("user-aggregator", "partner:device:manage"), "dev-1")
		assert.NoError(t, err)
	})

	t.Run("outsider is denied", func(t *testing.T) {
		err := engine.AuthorizeDevice(ctx, caller("user-outsider", "partner:device:manage"), "dev-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown device", func(t *testing.T) {
		err := engine.AuthorizeDevice(ctx, caller("user-provider", "partner:device:manage"), "missing")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, "Device not found: [missing]", err.Error())
	})

	t.Run("device without organisation", func(t *testing.T) {
		err := engine.AuthorizeDevice(ctx, caller("user-provider", "partner:device:manage"), "dev-orphan")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, "Device [dev-orphan] is not associated with any organisation", err.Error())
	})
}

func TestAuthorizeCertificate(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seedDirectory(t), deviceScopes, certScopes)

	t.Run("member of the owning organisation is allowed", func(t *testing.T) {
		err := engine.AuthorizeCertificate(ctx, caller("user-provider", "partner:certificate:manage"), "cert-1")
		assert.NoError(t, err)
	})

	t.Run("certificate scope set required, device scopes insufficient", func(t *testing.T) {
		err := engine.AuthorizeCertificate(ctx, caller("user-provider", "partner:device:manage"), "cert-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown certificate", func(t *testing.T) {
		err := engine.AuthorizeCertificate(ctx, caller("user-provider", "partner:certificate:manage"), "missing")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, "Certificate not found: [missing]", err.Error())
	})

	t.Run("certificate without device", func(t *testing.T) {
		err := engine.AuthorizeCertificate(ctx, caller("user-provider", "partner:certificate:manage"), "cert-orphan")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, "Certificate [cert-orphan] is not associated with any device", err.Error())
	})
}

func TestAuthorizeOAuthClient(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seedDirectory(t), deviceScopes, certScopes)

	t.Run("member of the owning organisation is allowed", func(t *testing.T) {
		err := engine.AuthorizeOAuthClient(ctx, caller("user-provider", "partner:certificate:manage"), "client-abc")
		assert.NoError(t, err)
	})

	t.Run("outsider is denied", func(t *testing.T) {
		err := engine.AuthorizeOAuthClient(ctx, caller("user-outsider", "partner:certificate:manage"), "client-abc")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown oauth client", func(t *testing.T) {
		err := engine.AuthorizeOAuthClient(ctx, caller("user-provider", "partner:certificate:manage"), "client-ghost")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, "No certificate found for OAuth client [client-ghost]", err.Error())
	})
}
