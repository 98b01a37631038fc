package service

import (
	"context"
	"fmt"

	"warden/internal/device/models"
	"warden/internal/device/resolver"
	"warden/internal/directory"
	dErrors "warden/pkg/domain-errors"
)

// DeviceList returns every device visible to the organisation with the ABN.
// Provider organisations see the devices they own; aggregators see the
// devices they manage on behalf of providers.
func (s *Service) DeviceList(ctx context.Context, abn string) (*models.DeviceListResult, error) {
	res, err := s.dir.Query(ctx, directory.CollectionOrganisations, directory.Eq("abn", abn))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	if res.ResultCount == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Organisation with an abn: %s not found", abn))
	}
	org := models.OrganisationFromRecord(res.Result[0])

	var devices []models.Device
	switch org.Type {
	case models.OrgTypeProvider, models.OrgTypeProviderViaAggregator, models.OrgTypeDirectIntegrator:
		devices = s.queryDevices(ctx, directory.Eq("organisationId", org.ID))
		devices = append(devices, s.queryDevices(ctx, directory.Eq("aggregatorId", org.ID))...)
	case models.OrgTypeAggregator:
		devices = s.queryDevices(ctx, directory.Eq("aggregatorId", org.ID))
	default:
		return nil, dErrors.New(dErrors.CodeIntegrity, "Organisation type is incorrect")
	}

	if len(devices) == 0 {
		return &models.DeviceListResult{
			Organisation: &models.OrganisationInfo{Name: org.Name, Type: org.Type},
			Devices:      []models.DeviceListEntry{},
		}, nil
	}

	resolved, err := s.resolver.Resolve(ctx, devices)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}

	entries := make([]models.DeviceListEntry, 0, len(devices))
	for _, device := range devices {
		entries = append(entries, models.DeviceListEntry{
			DeviceName:   device.Name,
			DeviceID:     device.ID,
			DeviceStatus: device.Status,
			Certificates: certificateSummaries(device, resolved, true),
			Provider:     organisationInfo(resolved, device.OrganisationID),
			Aggregator:   organisationInfo(resolved, device.AggregatorID),
		})
	}
	return &models.DeviceListResult{Devices: entries}, nil
}

// DeviceDetail returns the denormalized view of a single device.
func (s *Service) DeviceDetail(ctx context.Context, deviceID string) (*models.DeviceDetailResult, error) {
	res, err := s.dir.Query(ctx, directory.CollectionDevices, directory.Eq("_id", deviceID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	if res.ResultCount == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Device: %s was not found", deviceID))
	}

	devices := make([]models.Device, 0, len(res.Result))
	for _, rec := range res.Result {
		devices = append(devices, models.DeviceFromRecord(rec))
	}

	resolved, err := s.resolver.Resolve(ctx, devices)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}

	entries := make([]models.DeviceDetailEntry, 0, len(devices))
	for _, device := range devices {
		entries = append(entries, models.DeviceDetailEntry{
			DeviceName:        device.Name,
			DeviceID:          device.ID,
			DeviceStatus:      device.Status,
			DeviceExpiry:      device.Expiry,
			DeviceEnvironment: device.Environment,
			DeviceType:        device.Type,
			Certificates:      certificateSummaries(device, resolved, false),
			Provider:          organisationInfo(resolved, device.OrganisationID),
			Aggregator:        organisationInfo(resolved, device.AggregatorID),
		})
	}
	return &models.DeviceDetailResult{Device: entries}, nil
}

// AggregatorList returns the aggregator organisations linked to the provider
// with the ABN. Only a plain provider may call it.
func (s *Service) AggregatorList(ctx context.Context, abn string) (*models.AggregatorListResult, error) {
	org, err := s.findOrgByABN(ctx, abn)
	if err != nil {
		return nil, err
	}
	if org.Type != models.OrgTypeProvider {
		return nil, dErrors.New(dErrors.CodeForbidden, "Only a provider organisation is able to view aggregator organisations")
	}

	result := &models.AggregatorListResult{AggregatorOrgs: []models.OrganisationInfo{}}
	if len(org.AggregatorIDs) == 0 {
		return result, nil
	}

	res, err := s.dir.Query(ctx, directory.CollectionOrganisations, directory.AnyID(org.AggregatorIDs))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Internal Server Error")
	}
	for _, rec := range res.Result {
		linked := models.OrganisationFromRecord(rec)
		if linked.Type != models.OrgTypeAggregator {
			continue
		}
		result.AggregatorOrgs = append(result.AggregatorOrgs, models.OrganisationInfo{
			Name: linked.Name,
			Type: linked.Type,
			ABN:  linked.ABN,
		})
	}
	return result, nil
}

// queryDevices degrades to an empty slice on query failure so one bad
// relationship does not take down the whole listing.
func (s *Service) queryDevices(ctx context.Context, filter string) []models.Device {
	res, err := s.dir.Query(ctx, directory.CollectionDevices, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "device query failed", "filter", filter, "error", err)
		return nil
	}
	devices := make([]models.Device, 0, len(res.Result))
	for _, rec := range res.Result {
		devices = append(devices, models.DeviceFromRecord(rec))
	}
	return devices
}

func certificateSummaries(device models.Device, resolved *resolver.Resolved, includeClientID bool) []models.CertificateSummary {
	summaries := make([]models.CertificateSummary, 0, len(device.CertificateIDs))
	for _, certID := range device.CertificateIDs {
		cert, ok := resolved.Certificates[certID]
		if !ok {
			continue
		}
		summary := models.CertificateSummary{
			CertificateExpiry: cert.Expiry,
			CertificateStatus: cert.Status,
		}
		if includeClientID {
			summary.OAuthClientID = cert.OAuthClientID
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func organisationInfo(resolved *resolver.Resolved, orgID string) *models.OrganisationInfo {
	org, ok := resolved.Organisations[orgID]
	if !ok {
		return nil
	}
	return &models.OrganisationInfo{Name: org.Name, Type: org.Type}
}
