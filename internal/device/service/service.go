// Package service implements the device and certificate lifecycle: register,
// activate, add-certificate, revoke, delete, and the compound
// register-and-activate transition.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"warden/internal/device/metrics"
	"warden/internal/device/models"
	"warden/internal/device/resolver"
	"warden/internal/directory"
	"warden/internal/pki"
	dErrors "warden/pkg/domain-errors"
)

// PKI is the certificate issuer surface the orchestrator consumes.
type PKI interface {
	Sign(ctx context.Context, csr string) (*pki.SignedCertificate, error)
	Revoke(ctx context.Context, serialNumber string, reason pki.ReasonCode) error
}

// PartnerDirectory is the partner-integration directory surface.
type PartnerDirectory interface {
	RegisterDevice(ctx context.Context, orgExternalID, deviceExternalID, deviceName string) error
	RemoveDevice(ctx context.Context, orgExternalID, deviceExternalID, deviceName string) error
}

// Service orchestrates lifecycle transitions. The identity directory is the
// system of record; the PKI issuer and partner directory are fire-and-confirm
// side effects.
type Service struct {
	dir          directory.Client
	pki          PKI
	partners     map[string]PartnerDirectory
	resolver     *resolver.Resolver
	logger       *slog.Logger
	metrics      *metrics.Metrics
	expiryMonths int
	now          func() time.Time
	newClientID  func() string
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the lifecycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPartnerDirectory enables partner-directory integration for one
// environment. Environments without a client skip registration and removal.
func WithPartnerDirectory(environment string, client PartnerDirectory) Option {
	return func(s *Service) {
		s.partners[environment] = client
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithClientIDGenerator overrides OAuth client id generation.
func WithClientIDGenerator(gen func() string) Option {
	return func(s *Service) {
		s.newClientID = gen
	}
}

// New creates the lifecycle service. expiryMonths is added to the activation
// time to compute device expiry.
func New(dir directory.Client, issuer PKI, expiryMonths int, opts ...Option) *Service {
	s := &Service{
		dir:          dir,
		pki:          issuer,
		partners:     make(map[string]PartnerDirectory),
		resolver:     resolver.New(dir),
		logger:       slog.Default(),
		metrics:      nil,
		expiryMonths: expiryMonths,
		now:          time.Now,
		newClientID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a device in inactive status under the organisation
// matching the ABN. No external calls are made; repeated calls create
// duplicate devices.
func (s *Service) Register(ctx context.Context, req *models.RegisterDeviceRequest) (*models.RegisterResult, error) {
	org, err := s.findEligibleOrg(ctx, req.ABN)
	if err != nil {
		return nil, err
	}

	payload := directory.Record{
		"name":        req.Name,
		"environment": req.Environment,
		"type":        req.Type,
		"abn":         req.ABN,
		// A device is always created inactive until activated.
		"status":         models.DeviceStatusInactive,
		"organisationId": org.ID,
	}

	if req.AggregatorABN != "" {
		aggregator, err := s.findOrgByABN(ctx, req.AggregatorABN)
		if err != nil {
			return nil, err
		}
		payload["aggregatorId"] = aggregator.ID
	}

	created, err := s.dir.Create(ctx, directory.CollectionDevices, payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create device record", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to create device record")
	}

	s.logger.InfoContext(ctx, "registered device",
		"device_id", created.ID(),
		"abn", req.ABN,
	)
	if s.metrics != nil {
		s.metrics.DevicesRegistered.Inc()
	}
	return &models.RegisterResult{Device: models.DeviceFromRecord(created)}, nil
}

// RevokeCertificate marks the certificate revoked in the directory, then asks
// the PKI issuer to revoke it. A local-only success leaves the issuer's
// CRL/OCSP state stale; re-running the operation re-issues the PKI call.
func (s *Service) RevokeCertificate(ctx context.Context, req *models.RevokeCertificateRequest) (*models.RevokeResult, error) {
	res, err := s.dir.Query(ctx, directory.CollectionCertificates, directory.Eq("oauthClientId", req.OAuthClientID))
	if err != nil {
		s.logger.ErrorContext(ctx, "certificate lookup failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	if res.ResultCount == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("No certificate found for OAuth client [%s]", req.OAuthClientID))
	}
	if res.ResultCount > 1 {
		return nil, dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("Multiple certificates found for OAuth client [%s]", req.OAuthClientID))
	}
	cert := models.CertificateFromRecord(res.Result[0])

	s.logger.InfoContext(ctx, "marking certificate revoked", "oauth_client_id", req.OAuthClientID)
	err = s.dir.Patch(ctx, directory.CollectionCertificates, cert.ID, []directory.PatchOp{
		directory.Replace("certificateStatus", models.CertificateStatusRevoked),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark certificate revoked",
			"oauth_client_id", req.OAuthClientID,
			"error", err,
		)
		return nil, dErrors.WithDetail(dErrors.CodeInternal,
			"Certificate update failed. Please ensure that you have provided the correct information.",
			map[string]string{"clientId": req.OAuthClientID})
	}

	if err := s.pki.Revoke(ctx, cert.SerialNumber, pki.ReasonCessationOfOperation); err != nil {
		// The directory says revoked but the issuer was not updated.
		s.logger.ErrorContext(ctx, "certificate revoked locally but PKI revocation failed",
			"oauth_client_id", req.OAuthClientID,
			"serial_number", cert.SerialNumber,
			"error", err,
		)
		return nil, dErrors.WithDetail(dErrors.CodeUpstream,
			"Unexpectedly failed to revoke device.",
			map[string]string{"oauthClientId": req.OAuthClientID})
	}

	if s.metrics != nil {
		s.metrics.CertificatesRevoked.Inc()
	}
	return &models.RevokeResult{
		Code:    200,
		Message: fmt.Sprintf("Successfully revoked device certificate associated with the Client Id %s", req.OAuthClientID),
	}, nil
}

// Delete removes a device, cascading over its certificate records and, when
// integration is enabled for the environment, the partner-directory
// registration. The device record is deleted last.
func (s *Service) Delete(ctx context.Context, req *models.DeleteDeviceRequest) (*models.Device, error) {
	rec, err := s.dir.Read(ctx, directory.CollectionDevices, req.DeviceID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Device not found: [%s]", req.DeviceID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	device := models.DeviceFromRecord(rec)

	if partner, ok := s.partners[device.Environment]; ok && device.CiamID != "" {
		org, err := s.readOrganisation(ctx, device.OrganisationID)
		if err != nil {
			return nil, err
		}
		externalID, err := s.orgExternalID(ctx, org, device.Environment)
		if err != nil {
			return nil, err
		}
		if err := partner.RemoveDevice(ctx, externalID, device.CiamID, device.Name); err != nil {
			return nil, err
		}
	} else {
		s.logger.InfoContext(ctx, "partner directory removal skipped",
			"device_id", device.ID,
			"environment", device.Environment,
		)
	}

	for _, certID := range device.CertificateIDs {
		s.logger.InfoContext(ctx, "deleting certificate record", "certificate_id", certID)
		if _, err := s.dir.Delete(ctx, directory.CollectionCertificates, certID); err != nil && !errors.Is(err, directory.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to delete certificate record")
		}
	}

	deleted, err := s.dir.Delete(ctx, directory.CollectionDevices, device.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to delete device record")
	}

	s.logger.InfoContext(ctx, "deleted device", "device_id", device.ID)
	if s.metrics != nil {
		s.metrics.DevicesDeleted.Inc()
	}
	result := models.DeviceFromRecord(deleted)
	return &result, nil
}

// RegisterAndActivate runs registration then activation as one logical
// operation. If activation fails the just-created device is deleted as a
// compensating action; compensation failure is logged but never masks the
// activation error.
func (s *Service) RegisterAndActivate(ctx context.Context, req *models.RegisterAndActivateRequest) (*models.ActivationResult, error) {
	registered, err := s.Register(ctx, req.Register())
	if err != nil {
		return nil, err
	}
	deviceID := registered.Device.ID

	activation, err := s.Activate(ctx, &models.ActivateDeviceRequest{CSR: req.CSR, DeviceID: deviceID})
	if err == nil {
		return activation, nil
	}

	s.logger.ErrorContext(ctx, "activation failed after registration, deleting device",
		"device_id", deviceID,
		"error", err,
	)
	if _, delErr := s.dir.Delete(ctx, directory.CollectionDevices, deviceID); delErr != nil {
		s.logger.ErrorContext(ctx, "failed to delete device after activation failure",
			"device_id", deviceID,
			"error", delErr,
		)
	}
	return nil, dErrors.New(dErrors.CodeInternal, "Failed to activate the device")
}

// findEligibleOrg resolves the single provider-eligible organisation with the
// ABN. Zero matches are a not-found, multiple matches a data-integrity
// failure that must not silently pick one.
func (s *Service) findEligibleOrg(ctx context.Context, abn string) (*models.Organisation, error) {
	filter := directory.And(
		directory.Eq("abn", abn),
		directory.Or(
			directory.Eq("type", models.OrgTypeProvider),
			directory.Eq("type", models.OrgTypeProviderViaAggregator),
		),
	)
	res, err := s.dir.Query(ctx, directory.CollectionOrganisations, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	if res.ResultCount == 0 {
		msg := fmt.Sprintf("No digital partner organisation with ABN [%s] found", abn)
		s.logger.WarnContext(ctx, msg)
		return nil, dErrors.New(dErrors.CodeNotFound, msg)
	}
	if res.ResultCount > 1 {
		msg := fmt.Sprintf("Multiple provider digital partner organisations with ABN [%s] found", abn)
		s.logger.ErrorContext(ctx, msg)
		return nil, dErrors.New(dErrors.CodeIntegrity, msg)
	}
	org := models.OrganisationFromRecord(res.Result[0])
	return &org, nil
}

// findOrgByABN resolves an organisation of any type, with the same zero and
// multiple match handling as findEligibleOrg.
func (s *Service) findOrgByABN(ctx context.Context, abn string) (*models.Organisation, error) {
	res, err := s.dir.Query(ctx, directory.CollectionOrganisations, directory.Eq("abn", abn))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	if res.ResultCount == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("No digital partner organisation with ABN [%s] found", abn))
	}
	if res.ResultCount > 1 {
		return nil, dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("Multiple digital partner organisations with ABN [%s] found", abn))
	}
	org := models.OrganisationFromRecord(res.Result[0])
	return &org, nil
}

func (s *Service) readOrganisation(ctx context.Context, orgID string) (*models.Organisation, error) {
	if orgID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Device must be associated with a provider organisation")
	}
	rec, err := s.dir.Read(ctx, directory.CollectionOrganisations, orgID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeValidation, "Device must be associated with a provider organisation")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	org := models.OrganisationFromRecord(rec)
	return &org, nil
}

// orgExternalID resolves the organisation's partner-directory identifier.
// Production uses the synced organisation mirror; other environments use the
// organisation's vendor test number, whose absence is a caller-visible error
// rather than a silent skip.
func (s *Service) orgExternalID(ctx context.Context, org *models.Organisation, environment string) (string, error) {
	filter := directory.And(
		directory.Eq("abn", org.ABN),
		directory.Ne("ignore", "true"),
	)
	res, err := s.dir.Query(ctx, directory.CollectionSyncedOrgs, filter)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	if res.ResultCount == 0 {
		return "", dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("No synced organisation found with ABN: [%s]", org.ABN))
	}
	// Duplicate synced records are tolerated as long as one is active.
	if res.ResultCount > 1 {
		s.logger.WarnContext(ctx, "multiple synced organisations found", "abn", org.ABN)
	}

	if environment == models.EnvironmentProd {
		return res.Result[0].String("externalId"), nil
	}

	if org.VendorTestOrgNumber == "" {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("No vendor test organisation number found for provider organisation with ABN: [%s]", org.ABN))
	}
	return org.VendorTestOrgNumber, nil
}
