// Package directory presents the identity directory's managed-object store as
// simple CRUD and filtered-query primitives.
//
// Records are schemaless maps keyed by field name. Filters are the directory's
// predicate strings (`field eq "value"`, combined with and/or and parentheses);
// use the builders in filter.go rather than formatting them by hand.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist in a collection.
var ErrNotFound = errors.New("record not found")

// Collection names used by the gateway.
const (
	CollectionOrganisations = "organisations"
	CollectionDevices       = "devices"
	CollectionCertificates  = "certificates"
	CollectionUsers         = "users"
	CollectionSyncedOrgs    = "syncedOrganisations"
)

// Record is a managed object. Field names follow the directory schema
// (camelCase), values are JSON-shaped.
type Record map[string]any

// ID returns the record's _id field.
func (r Record) ID() string {
	return r.String("_id")
}

// String returns the named field as a string, or "" when absent or not a string.
func (r Record) String(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// StringSlice returns the named field as a slice of strings. Elements that are
// not strings are skipped.
func (r Record) StringSlice(field string) []string {
	raw, ok := r[field].([]any)
	if !ok {
		if typed, ok := r[field].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// QueryResult carries a filtered query's matches.
type QueryResult struct {
	ResultCount int      `json:"resultCount"`
	Result      []Record `json:"result"`
}

// Patch operations supported by the directory.
const (
	OpReplace = "replace"
	OpRemove  = "remove"
)

// PatchOp is a single field mutation applied by Patch.
type PatchOp struct {
	Operation string `json:"operation"`
	Field     string `json:"field"`
	Value     any    `json:"value,omitempty"`
}

// Replace builds a replace patch operation for one field.
func Replace(field string, value any) PatchOp {
	return PatchOp{Operation: OpReplace, Field: field, Value: value}
}

// Client is the directory store surface consumed by the policy engine,
// resolver and orchestrator.
type Client interface {
	// Read returns the record with the given id, or ErrNotFound.
	Read(ctx context.Context, collection, id string) (Record, error)

	// Query returns every record in the collection matching the filter.
	Query(ctx context.Context, collection, filter string) (*QueryResult, error)

	// Create stores a new record and returns it with its assigned _id.
	Create(ctx context.Context, collection string, payload Record) (Record, error)

	// Patch applies the operations to the record with the given id.
	Patch(ctx context.Context, collection, id string, ops []PatchOp) error

	// Delete removes and returns the record with the given id.
	Delete(ctx context.Context, collection, id string) (Record, error)
}
