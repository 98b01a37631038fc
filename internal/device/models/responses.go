package models

// DeviceSummary is the device view returned by lifecycle transitions.
type DeviceSummary struct {
	DeviceID    string `json:"deviceId"`
	Name        string `json:"name"`
	CiamID      string `json:"ciamId"`
	Type        string `json:"type"`
	Environment string `json:"environment"`
}

// IssuedCertificate is the certificate material returned to the caller.
type IssuedCertificate struct {
	Cert         string `json:"cert"`
	SerialNumber string `json:"serialnumber,omitempty"`
}

// RegisterResult is the response to a device registration.
type RegisterResult struct {
	Device Device `json:"device"`
}

// ActivationResult is the response to activation and certificate issuance.
type ActivationResult struct {
	Device        DeviceSummary     `json:"device"`
	Certificate   IssuedCertificate `json:"certificate"`
	OAuthClientID string            `json:"oauthClientId"`
}

// RevokeResult acknowledges a certificate revocation.
type RevokeResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OrganisationInfo is the joined organisation view in list/detail responses.
type OrganisationInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ABN  string `json:"abn,omitempty"`
}

// CertificateSummary is the joined certificate view in list/detail responses.
type CertificateSummary struct {
	OAuthClientID     string `json:"oauthClientId,omitempty"`
	CertificateExpiry string `json:"certificateExpiry"`
	CertificateStatus string `json:"certificateStatus"`
}

// DeviceListEntry is one device in the organisation device list.
type DeviceListEntry struct {
	DeviceName   string               `json:"deviceName"`
	DeviceID     string               `json:"deviceId"`
	DeviceStatus string               `json:"deviceStatus"`
	Certificates []CertificateSummary `json:"certificates"`
	Provider     *OrganisationInfo    `json:"provider,omitempty"`
	Aggregator   *OrganisationInfo    `json:"aggregator,omitempty"`
}

// DeviceListResult is the organisation device list response.
type DeviceListResult struct {
	Organisation *OrganisationInfo `json:"organisation,omitempty"`
	Devices      []DeviceListEntry `json:"devices"`
}

// DeviceDetailEntry is the denormalized single-device view.
type DeviceDetailEntry struct {
	DeviceName        string               `json:"deviceName"`
	DeviceID          string               `json:"deviceId"`
	DeviceStatus      string               `json:"deviceStatus"`
	DeviceExpiry      string               `json:"deviceExpiry"`
	DeviceEnvironment string               `json:"deviceEnvironment"`
	DeviceType        string               `json:"deviceType"`
	Certificates      []CertificateSummary `json:"certificates"`
	Provider          *OrganisationInfo    `json:"provider"`
	Aggregator        *OrganisationInfo    `json:"aggregator,omitempty"`
}

// DeviceDetailResult is the device detail response.
type DeviceDetailResult struct {
	Device []DeviceDetailEntry `json:"device"`
}

// AggregatorListResult lists the aggregators a provider manages.
type AggregatorListResult struct {
	AggregatorOrgs []OrganisationInfo `json:"aggregatorOrgs"`
}
