// Package resolver batches lookups of records referenced by a device set,
// building id-to-record maps so response assembly joins in O(1) instead of a
// round trip per reference.
package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"warden/internal/device/models"
	"warden/internal/directory"
)

// Resolver reads referenced organisations and certificates.
type Resolver struct {
	dir directory.Client
}

// New creates a resolver over the directory.
func New(dir directory.Client) *Resolver {
	return &Resolver{dir: dir}
}

// Resolved holds the joined reference maps for a device set.
type Resolved struct {
	Certificates  map[string]models.Certificate
	Organisations map[string]models.Organisation
}

// CollectCertificateIDs gathers every certificate reference across the
// devices, preserving duplicates-free order.
func CollectCertificateIDs(devices []models.Device) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, d := range devices {
		for _, id := range d.CertificateIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// CollectOrganisationIDs gathers the distinct provider and aggregator
// organisation references across the devices.
func CollectOrganisationIDs(devices []models.Device) []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, d := range devices {
		add(d.OrganisationID)
		add(d.AggregatorID)
	}
	return ids
}

// Resolve issues one batched query per referenced collection, in parallel,
// and returns the id-to-record maps. Query failures propagate to the caller.
func (r *Resolver) Resolve(ctx context.Context, devices []models.Device) (*Resolved, error) {
	certIDs := CollectCertificateIDs(devices)
	orgIDs := CollectOrganisationIDs(devices)

	resolved := &Resolved{
		Certificates:  make(map[string]models.Certificate),
		Organisations: make(map[string]models.Organisation),
	}

	g, ctx := errgroup.WithContext(ctx)
	if len(certIDs) > 0 {
		g.Go(func() error {
			res, err := r.dir.Query(ctx, directory.CollectionCertificates, directory.AnyID(certIDs))
			if err != nil {
				return err
			}
			for _, rec := range res.Result {
				cert := models.CertificateFromRecord(rec)
				resolved.Certificates[cert.ID] = cert
			}
			return nil
		})
	}
	if len(orgIDs) > 0 {
		g.Go(func() error {
			res, err := r.dir.Query(ctx, directory.CollectionOrganisations, directory.AnyID(orgIDs))
			if err != nil {
				return err
			}
			for _, rec := range res.Result {
				org := models.OrganisationFromRecord(rec)
				resolved.Organisations[org.ID] = org
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}
