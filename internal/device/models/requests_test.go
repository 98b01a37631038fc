package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

const validCSR = "-----BEGIN NEW CERTIFICATE REQUEST-----\nMIIB\n-----END NEW CERTIFICATE REQUEST-----"

func details(t *testing.T, err error) []map[string]any {
	t.Helper()
	var domainErr *dErrors.Error
	require.ErrorAs(t, err, &domainErr)
	d, ok := domainErr.Detail.([]map[string]any)
	require.True(t, ok)
	return d
}

func TestRegisterDeviceRequestValidate(t *testing.T) {
	valid := func() *RegisterDeviceRequest {
		return &RegisterDeviceRequest{
			Name:        "clinic terminal",
			Environment: "test",
			ABN:         "12345678901",
			Type:        "kiosk",
		}
	}

	t.Run("valid request", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("valid with aggregator abn", func(t *testing.T) {
		r := valid()
		r.AggregatorABN = "22345678901"
		require.NoError(t, r.Validate())
	})

	t.Run("missing fields are reported as required", func(t *testing.T) {
		err := (&RegisterDeviceRequest{}).Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "Bad Request", err.Error())

		var fields []string
		for _, d := range details(t, err) {
			fields = append(fields, d["required"].(string))
		}
		assert.ElementsMatch(t, []string{"name", "environment", "abn", "type"}, fields)
	})

	t.Run("abn with leading zero is invalid", func(t *testing.T) {
		r := valid()
		r.ABN = "02345678901"
		err := r.Validate()
		require.Error(t, err)

		d := details(t, err)
		require.Len(t, d, 1)
		assert.Equal(t, "abn", d[0]["invalid"])
		assert.Equal(t, "'02345678901' is not in valid organisation ABN format 'abn'.", d[0]["message"])
	})

	t.Run("unknown environment is invalid", func(t *testing.T) {
		r := valid()
		r.Environment = "staging"
		err := r.Validate()
		require.Error(t, err)

		d := details(t, err)
		require.Len(t, d, 1)
		assert.Equal(t, "environment", d[0]["invalid"])
	})

	t.Run("optional aggregator abn is still pattern checked", func(t *testing.T) {
		r := valid()
		r.AggregatorABN = "nope"
		err := r.Validate()
		require.Error(t, err)

		d := details(t, err)
		require.Len(t, d, 1)
		assert.Equal(t, "aggregatorAbn", d[0]["invalid"])
	})

	t.Run("normalize trims whitespace", func(t *testing.T) {
		r := &RegisterDeviceRequest{Name: "  clinic terminal  ", Environment: " test ", ABN: " 12345678901 ", Type: " kiosk "}
		r.Normalize()
		require.NoError(t, r.Validate())
		assert.Equal(t, "clinic terminal", r.Name)
	})
}

func TestActivateDeviceRequestValidate(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		r := &ActivateDeviceRequest{CSR: validCSR, DeviceID: "dev-1"}
		require.NoError(t, r.Validate())
	})

	t.Run("csr without the request envelope", func(t *testing.T) {
		r := &ActivateDeviceRequest{CSR: "-----BEGIN CERTIFICATE-----abc-----END CERTIFICATE-----", DeviceID: "dev-1"}
		err := r.Validate()
		require.Error(t, err)

		d := details(t, err)
		require.Len(t, d, 1)
		assert.Equal(t, "csr", d[0]["invalid"])
	})

	t.Run("missing device id", func(t *testing.T) {
		err := (&ActivateDeviceRequest{CSR: validCSR}).Validate()
		d := details(t, err)
		require.Len(t, d, 1)
		assert.Equal(t, "deviceId", d[0]["required"])
	})
}

func TestRevokeCertificateRequestValidate(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		require.NoError(t, (&RevokeCertificateRequest{OAuthClientID: "abc-123"}).Validate())
	})

	t.Run("missing client id", func(t *testing.T) {
		err := (&RevokeCertificateRequest{}).Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestRegisterAndActivateRequestValidate(t *testing.T) {
	valid := &RegisterAndActivateRequest{
		Name:        "clinic terminal",
		Environment: "prod",
		ABN:         "12345678901",
		Type:        "kiosk",
		CSR:         validCSR,
	}
	require.NoError(t, valid.Validate())

	reg := valid.Register()
	assert.Equal(t, valid.Name, reg.Name)
	assert.Equal(t, valid.ABN, reg.ABN)

	t.Run("collects failures across both halves", func(t *testing.T) {
		err := (&RegisterAndActivateRequest{ABN: "bad", CSR: "bad"}).Validate()
		require.Error(t, err)

		var domainErr *dErrors.Error
		require.True(t, errors.As(err, &domainErr))
		assert.GreaterOrEqual(t, len(details(t, err)), 4)
	})
}
