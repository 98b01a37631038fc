package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	created, err := store.Create(ctx, CollectionDevices, Record{
		"deviceName": "clinic terminal",
		"status":     "inactive",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())

	t.Run("read returns a copy", func(t *testing.T) {
		got, err := store.Read(ctx, CollectionDevices, created.ID())
		require.NoError(t, err)
		assert.Equal(t, "clinic terminal", got.String("deviceName"))

		got["deviceName"] = "tampered"
		again, err := store.Read(ctx, CollectionDevices, created.ID())
		require.NoError(t, err)
		assert.Equal(t, "clinic terminal", again.String("deviceName"))
	})

	t.Run("read missing record", func(t *testing.T) {
		_, err := store.Read(ctx, CollectionDevices, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("patch replaces and removes fields", func(t *testing.T) {
		err := store.Patch(ctx, CollectionDevices, created.ID(), []PatchOp{
			Replace("status", "active"),
			{Operation: OpRemove, Field: "deviceName"},
		})
		require.NoError(t, err)

		got, err := store.Read(ctx, CollectionDevices, created.ID())
		require.NoError(t, err)
		assert.Equal(t, "active", got.String("status"))
		assert.Empty(t, got.String("deviceName"))
	})

	t.Run("patch missing record", func(t *testing.T) {
		err := store.Patch(ctx, CollectionDevices, "missing", []PatchOp{Replace("status", "active")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete returns the record", func(t *testing.T) {
		deleted, err := store.Delete(ctx, CollectionDevices, created.ID())
		require.NoError(t, err)
		assert.Equal(t, created.ID(), deleted.ID())

		_, err = store.Read(ctx, CollectionDevices, created.ID())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	seed := []Record{
		{"_id": "org-1", "abn": "12345678901", "type": "provider"},
		{"_id": "org-2", "abn": "12345678901", "type": "providerViaAggregator"},
		{"_id": "org-3", "abn": "12345678901", "type": "aggregator"},
		{"_id": "org-4", "abn": "98765432109", "type": "provider"},
		{"_id": "org-5", "abn": "12345678901", "type": "provider", "ignore": "true"},
	}
	for _, rec := range seed {
		_, err := store.Create(ctx, CollectionOrganisations, rec)
		require.NoError(t, err)
	}

	t.Run("equality with disjunction", func(t *testing.T) {
		filter := And(
			Eq("abn", "12345678901"),
			Or(Eq("type", "provider"), Eq("type", "providerViaAggregator")),
		)
		res, err := store.Query(ctx, CollectionOrganisations, filter)
		require.NoError(t, err)
		assert.Equal(t, 3, res.ResultCount)
	})

	t.Run("ne excludes matching values but keeps absent fields", func(t *testing.T) {
		res, err := store.Query(ctx, CollectionOrganisations, And(Eq("abn", "12345678901"), Ne("ignore", "true")))
		require.NoError(t, err)
		assert.Equal(t, 3, res.ResultCount)
		for _, rec := range res.Result {
			assert.NotEqual(t, "org-5", rec.ID())
		}
	})

	t.Run("any id batch lookup", func(t *testing.T) {
		res, err := store.Query(ctx, CollectionOrganisations, AnyID([]string{"org-1", "org-4"}))
		require.NoError(t, err)
		assert.Equal(t, 2, res.ResultCount)
	})

	t.Run("no matches", func(t *testing.T) {
		res, err := store.Query(ctx, CollectionOrganisations, Eq("abn", "11111111111"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.ResultCount)
		assert.Empty(t, res.Result)
	})

	t.Run("malformed filter", func(t *testing.T) {
		_, err := store.Query(ctx, CollectionOrganisations, `abn eq`)
		assert.Error(t, err)
	})

	t.Run("quotes are stripped from values", func(t *testing.T) {
		res, err := store.Query(ctx, CollectionOrganisations, Eq("abn", `129"99`))
		require.NoError(t, err)
		assert.Equal(t, 0, res.ResultCount)
	})
}
