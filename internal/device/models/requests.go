package models

import (
	"fmt"
	"regexp"
	"strings"

	dErrors "warden/pkg/domain-errors"
)

// Field patterns enforced at the request boundary.
var (
	deviceNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9-_. ]+$`)
	environmentPattern = regexp.MustCompile(`^(test|prod)$`)
	abnPattern         = regexp.MustCompile(`^[1-9][0-9]{10}$`)
	csrPattern         = regexp.MustCompile(`(?s)^-----BEGIN NEW CERTIFICATE REQUEST-----.*-----END NEW CERTIFICATE REQUEST-----$`)
)

// fieldCheck validates one request field, accumulating failure details in the
// shape the callers expect: {required: name} for absent fields and
// {invalid: name, pattern, message} for pattern mismatches.
type fieldCheck struct {
	name     string
	value    string
	required bool
	pattern  *regexp.Regexp
	message  func(value string) string
}

func validateFields(checks []fieldCheck) error {
	var details []map[string]any
	for _, c := range checks {
		if c.value == "" {
			if c.required {
				details = append(details, map[string]any{"required": c.name})
			}
			continue
		}
		if c.pattern != nil && !c.pattern.MatchString(c.value) {
			details = append(details, map[string]any{
				"invalid": c.name,
				"pattern": c.pattern.String(),
				"message": c.message(c.value),
			})
		}
	}
	if len(details) > 0 {
		return dErrors.WithDetail(dErrors.CodeValidation, "Bad Request", details)
	}
	return nil
}

func invalidName(value string) string {
	return fmt.Sprintf("'%s' is not a valid device name 'name'.", value)
}

func invalidEnvironment(value string) string {
	return fmt.Sprintf("'%s' is not a valid device environment 'environment'.", value)
}

func invalidABN(field string) func(string) string {
	return func(value string) string {
		return fmt.Sprintf("'%s' is not in valid organisation ABN format '%s'.", value, field)
	}
}

func invalidType(value string) string {
	return fmt.Sprintf("'%s' is not a valid device type 'type'.", value)
}

func invalidCSR(value string) string {
	return fmt.Sprintf("'%s' is not in valid CSR format 'csr'.", value)
}

func invalidID(field string) func(string) string {
	return func(value string) string {
		return fmt.Sprintf("'%s' is not a valid device UUID '%s'.", value, field)
	}
}

// RegisterDeviceRequest creates an inactive device under the organisation
// matching the ABN.
type RegisterDeviceRequest struct {
	Name          string `json:"name"`
	Environment   string `json:"environment"`
	ABN           string `json:"abn"`
	Type          string `json:"type"`
	AggregatorABN string `json:"aggregatorAbn,omitempty"`
}

func (r *RegisterDeviceRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Environment = strings.TrimSpace(r.Environment)
	r.ABN = strings.TrimSpace(r.ABN)
	r.Type = strings.TrimSpace(r.Type)
	r.AggregatorABN = strings.TrimSpace(r.AggregatorABN)
}

func (r *RegisterDeviceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validateFields([]fieldCheck{
		{name: "name", value: r.Name, required: true, pattern: deviceNamePattern, message: invalidName},
		{name: "environment", value: r.Environment, required: true, pattern: environmentPattern, message: invalidEnvironment},
		{name: "abn", value: r.ABN, required: true, pattern: abnPattern, message: invalidABN("abn")},
		{name: "type", value: r.Type, required: true, pattern: deviceNamePattern, message: invalidType},
		{name: "aggregatorAbn", value: r.AggregatorABN, pattern: abnPattern, message: invalidABN("aggregatorAbn")},
	})
}

// ActivateDeviceRequest exchanges a CSR for a certificate and transitions the
// device to active.
type ActivateDeviceRequest struct {
	CSR      string `json:"csr"`
	DeviceID string `json:"deviceId"`
}

func (r *ActivateDeviceRequest) Normalize() {
	if r == nil {
		return
	}
	r.CSR = strings.TrimSpace(r.CSR)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
}

func (r *ActivateDeviceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validateFields([]fieldCheck{
		{name: "csr", value: r.CSR, required: true, pattern: csrPattern, message: invalidCSR},
		{name: "deviceId", value: r.DeviceID, required: true, pattern: deviceNamePattern, message: invalidID("deviceId")},
	})
}

// AddCertificateRequest issues an additional certificate without touching
// device status.
type AddCertificateRequest struct {
	CSR      string `json:"csr"`
	DeviceID string `json:"deviceId"`
}

func (r *AddCertificateRequest) Normalize() {
	if r == nil {
		return
	}
	r.CSR = strings.TrimSpace(r.CSR)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
}

func (r *AddCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validateFields([]fieldCheck{
		{name: "csr", value: r.CSR, required: true, pattern: csrPattern, message: invalidCSR},
		{name: "deviceId", value: r.DeviceID, required: true, pattern: deviceNamePattern, message: invalidID("deviceId")},
	})
}

// RevokeCertificateRequest revokes the certificate bound to an OAuth client.
type RevokeCertificateRequest struct {
	OAuthClientID string `json:"oauthClientId"`
}

func (r *RevokeCertificateRequest) Normalize() {
	if r == nil {
		return
	}
	r.OAuthClientID = strings.TrimSpace(r.OAuthClientID)
}

func (r *RevokeCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validateFields([]fieldCheck{
		{name: "oauthClientId", value: r.OAuthClientID, required: true, pattern: deviceNamePattern, message: invalidID("oauthClientId")},
	})
}

// RegisterAndActivateRequest runs registration and activation as one logical
// operation.
type RegisterAndActivateRequest struct {
	Name          string `json:"name"`
	Environment   string `json:"environment"`
	ABN           string `json:"abn"`
	Type          string `json:"type"`
	AggregatorABN string `json:"aggregatorAbn,omitempty"`
	CSR           string `json:"csr"`
}

func (r *RegisterAndActivateRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Environment = strings.TrimSpace(r.Environment)
	r.ABN = strings.TrimSpace(r.ABN)
	r.Type = strings.TrimSpace(r.Type)
	r.AggregatorABN = strings.TrimSpace(r.AggregatorABN)
	r.CSR = strings.TrimSpace(r.CSR)
}

func (r *RegisterAndActivateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validateFields([]fieldCheck{
		{name: "name", value: r.Name, required: true, pattern: deviceNamePattern, message: invalidName},
		{name: "environment", value: r.Environment, required: true, pattern: environmentPattern, message: invalidEnvironment},
		{name: "abn", value: r.ABN, required: true, pattern: abnPattern, message: invalidABN("abn")},
		{name: "type", value: r.Type, required: true, pattern: deviceNamePattern, message: invalidType},
		{name: "aggregatorAbn", value: r.AggregatorABN, pattern: abnPattern, message: invalidABN("aggregatorAbn")},
		{name: "csr", value: r.CSR, required: true, pattern: csrPattern, message: invalidCSR},
	})
}

// Register returns the registration half of the request.
func (r *RegisterAndActivateRequest) Register() *RegisterDeviceRequest {
	return &RegisterDeviceRequest{
		Name:          r.Name,
		Environment:   r.Environment,
		ABN:           r.ABN,
		Type:          r.Type,
		AggregatorABN: r.AggregatorABN,
	}
}

// ValidateABNParam checks an abn query parameter against the same rules as
// the request-body field.
func ValidateABNParam(value string) error {
	return validateFields([]fieldCheck{
		{name: "abn", value: value, required: true, pattern: abnPattern, message: invalidABN("abn")},
	})
}

// ValidateDeviceIDParam checks a deviceId query parameter.
func ValidateDeviceIDParam(value string) error {
	return validateFields([]fieldCheck{
		{name: "deviceId", value: value, required: true, pattern: deviceNamePattern, message: invalidID("deviceId")},
	})
}

// DeleteDeviceRequest removes a device and its certificates.
type DeleteDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

func (r *DeleteDeviceRequest) Normalize() {
	if r == nil {
		return
	}
	r.DeviceID = strings.TrimSpace(r.DeviceID)
}

func (r *DeleteDeviceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validateFields([]fieldCheck{
		{name: "deviceId", value: r.DeviceID, required: true},
	})
}
