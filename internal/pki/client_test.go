package pki

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

func testConfig(signURL, revokeURL string) Config {
	return Config{
		SignEndpoint:   signURL,
		RevokeEndpoint: revokeURL,
		Token:          "issuer-token",
		TemplateID:     "tmpl-1",
		CAID:           "ca-1",
		CAName:         "partner-ca",
	}
}

// selfSignedPEM issues a throwaway certificate expiring at the given time.
func selfSignedPEM(t *testing.T, notAfter time.Time) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "device"},
		NotBefore:    notAfter.AddDate(-1, 0, 0),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestSign(t *testing.T) {
	certPEM := selfSignedPEM(t, time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC))

	t.Run("success", func(t *testing.T) {
		var gotBody signRequest
		var gotToken string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.Header.Get("X-Jellyfish-Token")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			json.NewEncoder(w).Encode(SignedCertificate{CertPEM: certPEM, SerialNumber: "0A1B2C"})
		}))
		defer srv.Close()

		client := NewClient(testConfig(srv.URL, srv.URL))
		signed, err := client.Sign(context.Background(), "csr-pem")
		require.NoError(t, err)

		assert.Equal(t, certPEM, signed.CertPEM)
		assert.Equal(t, "0A1B2C", signed.SerialNumber)
		assert.Equal(t, "issuer-token", gotToken)
		assert.Equal(t, signRequest{TemplateID: "tmpl-1", CAID: "ca-1", CSR: "csr-pem"}, gotBody)
	})

	t.Run("issuer error is upstream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClient(testConfig(srv.URL, srv.URL))
		_, err := client.Sign(context.Background(), "csr-pem")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	})

	t.Run("response without certificate content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(SignedCertificate{CertPEM: "not a cert"})
		}))
		defer srv.Close()

		client := NewClient(testConfig(srv.URL, srv.URL))
		_, err := client.Sign(context.Background(), "csr-pem")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	})
}

func TestRevoke(t *testing.T) {
	t.Run("success sends ca name, serial and reason", func(t *testing.T) {
		var gotBody revokeRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := NewClient(testConfig(srv.URL, srv.URL))
		err := client.Revoke(context.Background(), "0A1B2C", ReasonCessationOfOperation)
		require.NoError(t, err)

		assert.Equal(t, revokeRequest{CAName: "partner-ca", Serial: "0A1B2C", Reason: ReasonCessationOfOperation}, gotBody)
	})

	t.Run("issuer error is upstream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(testConfig(srv.URL, srv.URL))
		err := client.Revoke(context.Background(), "0A1B2C", ReasonCessationOfOperation)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	})
}

func TestParseExpiry(t *testing.T) {
	t.Run("extracts notAfter date", func(t *testing.T) {
		certPEM := selfSignedPEM(t, time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC))
		expiry, err := ParseExpiry(certPEM)
		require.NoError(t, err)
		assert.Equal(t, "2027-03-01", expiry)
	})

	t.Run("malformed certificate is a validation error", func(t *testing.T) {
		_, err := ParseExpiry("garbage")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "Certificate format invalid. Failed to parse.", err.Error())
	})

	t.Run("valid pem with invalid der", func(t *testing.T) {
		bad := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")}))
		_, err := ParseExpiry(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
