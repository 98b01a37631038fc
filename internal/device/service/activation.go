package service

import (
	"context"
	"errors"
	"fmt"

	"warden/internal/device/models"
	"warden/internal/directory"
	"warden/internal/pki"
	dErrors "warden/pkg/domain-errors"
)

// Activate signs the CSR, creates the certificate record, registers the
// device in the partner directory when the environment has integration
// enabled, and finally flips the device to active. The certificate is signed
// before the device is inspected; a later failure does not revoke it.
func (s *Service) Activate(ctx context.Context, req *models.ActivateDeviceRequest) (*models.ActivationResult, error) {
	result, err := s.activate(ctx, req.CSR, req.DeviceID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ActivationFailures.Inc()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DevicesActivated.Inc()
	}
	return result, nil
}

func (s *Service) activate(ctx context.Context, csr, deviceID string) (*models.ActivationResult, error) {
	signed, expiry, err := s.issueCertificate(ctx, csr)
	if err != nil {
		return nil, err
	}

	device, err := s.readDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status == models.DeviceStatusActive {
		return nil, dErrors.WithDetail(dErrors.CodeValidation,
			fmt.Sprintf("Device is already active. To generate a new client ID, the existing OAuth client associated with [%s] must be deactivated first", device.Name),
			map[string]string{"name": device.Name, "ciamId": device.CiamID})
	}

	org, externalID, err := s.eligibleOrgExternalID(ctx, device)
	if err != nil {
		return nil, err
	}

	clientID := s.newClientID()
	if err := s.createCertificateRecord(ctx, device, clientID, signed, expiry); err != nil {
		return nil, err
	}

	if err := s.registerWithPartner(ctx, device, org, externalID, clientID); err != nil {
		return nil, err
	}

	deviceExpiry := s.now().AddDate(0, s.expiryMonths, 0).Format("2006-01-02")
	err = s.dir.Patch(ctx, directory.CollectionDevices, device.ID, []directory.PatchOp{
		directory.Replace("status", models.DeviceStatusActive),
		directory.Replace("deviceExpiry", deviceExpiry),
		directory.Replace("ciamId", clientID),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to activate device", "device_id", device.ID, "error", err)
		return nil, dErrors.WithDetail(dErrors.CodeInternal,
			"Unexpectedly failed to activate device",
			map[string]string{"name": device.Name, "ciamId": clientID})
	}

	s.logger.InfoContext(ctx, "activated device",
		"device_id", device.ID,
		"oauth_client_id", clientID,
		"device_expiry", deviceExpiry,
	)
	return &models.ActivationResult{
		Device: models.DeviceSummary{
			DeviceID:    device.ID,
			Name:        device.Name,
			CiamID:      clientID,
			Type:        device.Type,
			Environment: device.Environment,
		},
		Certificate: models.IssuedCertificate{
			Cert:         signed.CertPEM,
			SerialNumber: signed.SerialNumber,
		},
		OAuthClientID: clientID,
	}, nil
}

// AddCertificate issues an additional certificate for a device without
// touching its lifecycle status. The device keeps its existing ciamId and its
// partner-directory registration; the new certificate gets its own OAuth
// client id.
func (s *Service) AddCertificate(ctx context.Context, req *models.AddCertificateRequest) (*models.ActivationResult, error) {
	signed, expiry, err := s.issueCertificate(ctx, req.CSR)
	if err != nil {
		return nil, err
	}

	device, err := s.readDevice(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}

	// Eligibility gate only. Renewals stay under the registration made at
	// activation, so no partner-directory call here.
	if _, _, err := s.eligibleOrgExternalID(ctx, device); err != nil {
		return nil, err
	}

	clientID := s.newClientID()
	if err := s.createCertificateRecord(ctx, device, clientID, signed, expiry); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "added certificate to device",
		"device_id", device.ID,
		"oauth_client_id", clientID,
	)
	return &models.ActivationResult{
		Device: models.DeviceSummary{
			DeviceID:    device.ID,
			Name:        device.Name,
			CiamID:      device.CiamID,
			Type:        device.Type,
			Environment: device.Environment,
		},
		Certificate:   models.IssuedCertificate{Cert: signed.CertPEM},
		OAuthClientID: clientID,
	}, nil
}

// issueCertificate signs the CSR and extracts the certificate expiry date.
func (s *Service) issueCertificate(ctx context.Context, csr string) (*pki.SignedCertificate, string, error) {
	signed, err := s.pki.Sign(ctx, csr)
	if err != nil {
		return nil, "", err
	}
	expiry, err := pki.ParseExpiry(signed.CertPEM)
	if err != nil {
		return nil, "", err
	}
	if s.metrics != nil {
		s.metrics.CertificatesIssued.Inc()
	}
	return signed, expiry, nil
}

func (s *Service) readDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	rec, err := s.dir.Read(ctx, directory.CollectionDevices, deviceID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, dErrors.WithDetail(dErrors.CodeNotFound, "Device not found",
			"Ensure the deviceId provided is the directory UUID '_id', not the 'ciamId'")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	device := models.DeviceFromRecord(rec)
	return &device, nil
}

// eligibleOrgExternalID checks the owning organisation is provider eligible
// and resolves its partner-directory identifier for the device environment.
func (s *Service) eligibleOrgExternalID(ctx context.Context, device *models.Device) (*models.Organisation, string, error) {
	org, err := s.readOrganisation(ctx, device.OrganisationID)
	if err != nil {
		return nil, "", err
	}
	if !models.ProviderEligible(org.Type) {
		return nil, "", dErrors.New(dErrors.CodeValidation, "Device must be associated with a provider organisation")
	}
	externalID, err := s.orgExternalID(ctx, org, device.Environment)
	if err != nil {
		return nil, "", err
	}
	return org, externalID, nil
}

// createCertificateRecord stores the signed certificate and links it to the
// device.
func (s *Service) createCertificateRecord(ctx context.Context, device *models.Device, clientID string, signed *pki.SignedCertificate, expiry string) error {
	created, err := s.dir.Create(ctx, directory.CollectionCertificates, directory.Record{
		"oauthClientId":     clientID,
		"certificate":       signed.CertPEM,
		"serialNumber":      signed.SerialNumber,
		"certificateExpiry": expiry,
		"certificateStatus": models.CertificateStatusActive,
		"deviceId":          device.ID,
	})
	if err == nil {
		certIDs := append(device.CertificateIDs, created.ID())
		err = s.dir.Patch(ctx, directory.CollectionDevices, device.ID, []directory.PatchOp{
			directory.Replace("certificateIds", certIDs),
		})
		if err == nil {
			device.CertificateIDs = certIDs
		}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create certificate record",
			"device_id", device.ID,
			"error", err,
		)
		return dErrors.WithDetail(dErrors.CodeInternal,
			"Unexpectedly failed to create new certificate record",
			map[string]string{"name": device.Name, "clientId": clientID})
	}
	return nil
}

// registerWithPartner registers the OAuth client in the partner directory
// when the device environment has integration enabled.
func (s *Service) registerWithPartner(ctx context.Context, device *models.Device, org *models.Organisation, externalID, clientID string) error {
	partner, ok := s.partners[device.Environment]
	if !ok {
		s.logger.InfoContext(ctx, "partner directory registration skipped",
			"device_id", device.ID,
			"environment", device.Environment,
		)
		return nil
	}
	if err := partner.RegisterDevice(ctx, externalID, clientID, device.Name); err != nil {
		s.logger.ErrorContext(ctx, "partner directory registration failed",
			"device_id", device.ID,
			"organisation_abn", org.ABN,
			"error", err,
		)
		return err
	}
	return nil
}
