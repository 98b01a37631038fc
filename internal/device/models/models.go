// Package models defines the directory record shapes and request/response
// types for the device lifecycle.
package models

import "warden/internal/directory"

// Organisation types.
const (
	OrgTypeProvider              = "provider"
	OrgTypeAggregator            = "aggregator"
	OrgTypeProviderViaAggregator = "providerViaAggregator"
	OrgTypeDirectIntegrator      = "directIntegrator"
)

// Device lifecycle states.
const (
	DeviceStatusInactive = "inactive"
	DeviceStatusActive   = "active"
)

// Certificate states. Revoked is terminal.
const (
	CertificateStatusActive  = "active"
	CertificateStatusRevoked = "revoked"
)

// Device environments.
const (
	EnvironmentTest = "test"
	EnvironmentProd = "prod"
)

// ProviderEligible reports whether an organisation type may own devices.
func ProviderEligible(orgType string) bool {
	return orgType == OrgTypeProvider || orgType == OrgTypeProviderViaAggregator
}

// Organisation is a digital partner organisation record.
type Organisation struct {
	ID                  string
	Name                string
	ABN                 string
	Type                string
	ApprovedEnvironment string
	VendorTestOrgNumber string
	AggregatorIDs       []string
}

// OrganisationFromRecord maps a directory record.
func OrganisationFromRecord(rec directory.Record) Organisation {
	return Organisation{
		ID:                  rec.ID(),
		Name:                rec.String("name"),
		ABN:                 rec.String("abn"),
		Type:                rec.String("type"),
		ApprovedEnvironment: rec.String("approvedEnvironment"),
		VendorTestOrgNumber: rec.String("vendorTestOrgNumber"),
		AggregatorIDs:       rec.StringSlice("aggregatorIds"),
	}
}

// Device is a device record.
type Device struct {
	ID             string   `json:"deviceId"`
	CiamID         string   `json:"ciamId,omitempty"`
	Name           string   `json:"name"`
	Environment    string   `json:"environment"`
	ABN            string   `json:"abn"`
	Type           string   `json:"type"`
	Status         string   `json:"status"`
	Expiry         string   `json:"deviceExpiry,omitempty"`
	OrganisationID string   `json:"organisationId"`
	AggregatorID   string   `json:"aggregatorId,omitempty"`
	CertificateIDs []string `json:"certificateIds,omitempty"`
}

// DeviceFromRecord maps a directory record.
func DeviceFromRecord(rec directory.Record) Device {
	return Device{
		ID:             rec.ID(),
		CiamID:         rec.String("ciamId"),
		Name:           rec.String("name"),
		Environment:    rec.String("environment"),
		ABN:            rec.String("abn"),
		Type:           rec.String("type"),
		Status:         rec.String("status"),
		Expiry:         rec.String("deviceExpiry"),
		OrganisationID: rec.String("organisationId"),
		AggregatorID:   rec.String("aggregatorId"),
		CertificateIDs: rec.StringSlice("certificateIds"),
	}
}

// Certificate is a certificate record. Exactly one certificate exists per
// OAuth client id.
type Certificate struct {
	ID            string
	OAuthClientID string
	PEM           string
	SerialNumber  string
	Expiry        string
	Status        string
	DeviceID      string
}

// CertificateFromRecord maps a directory record.
func CertificateFromRecord(rec directory.Record) Certificate {
	return Certificate{
		ID:            rec.ID(),
		OAuthClientID: rec.String("oauthClientId"),
		PEM:           rec.String("certificate"),
		SerialNumber:  rec.String("serialNumber"),
		Expiry:        rec.String("certificateExpiry"),
		Status:        rec.String("certificateStatus"),
		DeviceID:      rec.String("deviceId"),
	}
}
