package zones

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine/sqlite"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

const testPrefix = "kg"

func setupRegistry(t *testing.T, cache Cache) (*Registry, engine.Engine) {
	t.Helper()
	eng, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	r, err := Open(context.Background(), eng, Options{Prefix: testPrefix, Cache: cache})
	require.NoError(t, err)
	return r, eng
}

// recordingCache wraps the default cache and records additions.
type recordingCache struct {
	Cache
	mu    sync.Mutex
	added []string
}

func (c *recordingCache) Add(zone string) {
	c.mu.Lock()
	c.added = append(c.added, zone)
	c.mu.Unlock()
	c.Cache.Add(zone)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"work", true},
		{"project-x_2", true},
		{"9lives", true},
		{"", false},
		{"Work", false},
		{"has space", false},
		{"-leading", false},
		{"dots.not.allowed", false},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.valid {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, models.ErrValidation, tt.name)
		}
	}
}

func TestLayout(t *testing.T) {
	l := Layout{}
	assert.Equal(t, "knowledge-graph-entities-work", l.EntityIndex("work"))
	assert.Equal(t, "knowledge-graph-relations", l.RelationIndex())
	assert.Equal(t, "knowledge-graph-zones", l.MetadataIndex())

	zone, ok := l.ZoneFromIndex("knowledge-graph-entities-work")
	assert.True(t, ok)
	assert.Equal(t, "work", zone)
	_, ok = l.ZoneFromIndex("knowledge-graph-relations")
	assert.False(t, ok)
}

func TestDefaultZone(t *testing.T) {
	r, eng := setupRegistry(t, nil)
	ctx := context.Background()

	ok, err := r.ZoneExists(ctx, models.DefaultZone)
	require.NoError(t, err)
	assert.True(t, ok)

	meta, err := r.GetZoneMetadata(ctx, models.DefaultZone)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "Default memory zone", meta.Description)

	exists, err := eng.IndexExists(ctx, "kg-entities-default")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = r.AddMemoryZone(ctx, models.DefaultZone, "", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = r.DeleteMemoryZone(ctx, models.DefaultZone)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAddMemoryZone(t *testing.T) {
	cache := &recordingCache{Cache: NewCache()}
	r, _ := setupRegistry(t, cache)
	ctx := context.Background()

	ok, err := r.ZoneExists(ctx, "work")
	require.NoError(t, err)
	assert.False(t, ok)

	meta, err := r.AddMemoryZone(ctx, "work", "Work notes", map[string]any{"owner": "team"})
	require.NoError(t, err)
	assert.Equal(t, "work", meta.Name)
	assert.Equal(t, "Work notes", meta.Description)
	assert.False(t, meta.CreatedAt.IsZero())
	assert.Contains(t, cache.added, "work")

	ok, err = r.ZoneExists(ctx, "work")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := r.GetZoneMetadata(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "team", stored.Config["owner"])

	_, err = r.AddMemoryZone(ctx, "", "", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = r.AddMemoryZone(ctx, "Bad Zone", "", nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	again, err := r.AddMemoryZone(ctx, "work", "", nil)
	require.NoError(t, err)
	assert.Equal(t, meta.CreatedAt.Unix(), again.CreatedAt.Unix(), "re-adding keeps the creation time")
	assert.Equal(t, "Memory zone work", again.Description)
}

func TestZoneExistsFallsBackToPartition(t *testing.T) {
	r, eng := setupRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, eng.CreateIndex(ctx, r.Layout().EntityIndex("legacy"), EntityMapping))
	ok, err := r.ZoneExists(ctx, "legacy")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ZoneExists(ctx, "Not A Zone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListMemoryZones(t *testing.T) {
	r, _ := setupRegistry(t, nil)
	ctx := context.Background()

	_, err := r.AddMemoryZone(ctx, "work", "", nil)
	require.NoError(t, err)
	_, err = r.AddMemoryZone(ctx, "archive", "", nil)
	require.NoError(t, err)

	zones, err := r.ListMemoryZones(ctx, "test")
	require.NoError(t, err)
	var names []string
	for _, z := range zones {
		names = append(names, z.Name)
	}
	assert.Equal(t, []string{"archive", "default", "work"}, names)
}

func TestListMemoryZonesPages(t *testing.T) {
	r, _ := setupRegistry(t, nil)
	r.pageSize = 2
	ctx := context.Background()
	want := []string{"default"}
	for _, z := range []string{"zeta", "alpha", "mid", "beta", "omega"} {
		_, err := r.AddMemoryZone(ctx, z, "", nil)
		require.NoError(t, err)
	}
	want = append(want, "alpha", "beta", "mid", "omega", "zeta")

	zones, err := r.ListMemoryZones(ctx, "test")
	require.NoError(t, err)
	var names []string
	for _, z := range zones {
		names = append(names, z.Name)
	}
	assert.ElementsMatch(t, want, names)
	assert.Equal(t, []string{"alpha", "beta", "default", "mid", "omega", "zeta"}, names)
}

func TestListMemoryZonesBackfill(t *testing.T) {
	r, eng := setupRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, eng.CreateIndex(ctx, r.Layout().EntityIndex("legacy"), EntityMapping))
	_, err := eng.Delete(ctx, r.Layout().MetadataIndex(), models.DefaultZone)
	require.NoError(t, err)

	zones, err := r.ListMemoryZones(ctx, "startup")
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "default", zones[0].Name)
	assert.Equal(t, "legacy", zones[1].Name)

	meta, err := r.GetZoneMetadata(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "Memory zone legacy", meta.Description)
}

func TestDeleteMemoryZone(t *testing.T) {
	r, eng := setupRegistry(t, nil)
	ctx := context.Background()

	_, err := r.AddMemoryZone(ctx, "work", "", nil)
	require.NoError(t, err)
	rels := r.Layout().RelationIndex()
	require.NoError(t, eng.Index(ctx, rels, "r1", map[string]any{
		"type": "relation", "from": "a", "fromZone": "work", "to": "b", "toZone": "default", "relationType": "knows",
	}))
	require.NoError(t, eng.Index(ctx, rels, "r2", map[string]any{
		"type": "relation", "from": "c", "fromZone": "default", "to": "a", "toZone": "work", "relationType": "knows",
	}))
	require.NoError(t, eng.Index(ctx, rels, "r3", map[string]any{
		"type": "relation", "from": "c", "fromZone": "default", "to": "d", "toZone": "default", "relationType": "knows",
	}))

	out, err := r.DeleteMemoryZone(ctx, "work")
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out.Failed)
	assert.Len(t, out.Succeeded, 4)

	ok, err := r.ZoneExists(ctx, "work")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := eng.Count(ctx, rels, query.MatchAll{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the relation outside the deleted zone survives")

	// Deleting again still runs every step.
	out, err = r.DeleteMemoryZone(ctx, "work")
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestUpdateZoneDescriptions(t *testing.T) {
	r, _ := setupRegistry(t, nil)
	ctx := context.Background()

	meta, err := r.UpdateZoneDescriptions(ctx, "research", "Long form research notes", "research")
	require.NoError(t, err)
	assert.Equal(t, "Long form research notes", meta.Description)
	assert.Equal(t, "research", meta.ShortDescription)

	ok, err := r.ZoneExists(ctx, "research")
	require.NoError(t, err)
	assert.True(t, ok)

	meta, err = r.UpdateZoneDescriptions(ctx, models.DefaultZone, "Everything else", "misc")
	require.NoError(t, err)
	assert.Equal(t, "misc", meta.ShortDescription)
}

func TestZoneStats(t *testing.T) {
	r, eng := setupRegistry(t, nil)
	ctx := context.Background()

	_, err := r.AddMemoryZone(ctx, "work", "", nil)
	require.NoError(t, err)
	entities := r.Layout().EntityIndex("work")
	for id, typ := range map[string]string{"a": "person", "b": "person", "c": "project"} {
		require.NoError(t, eng.Index(ctx, entities, id, map[string]any{
			"type": "entity", "zone": "work", "name": id, "entityType": typ,
		}))
	}
	rels := r.Layout().RelationIndex()
	docs := []map[string]any{
		{"type": "relation", "from": "a", "fromZone": "work", "to": "b", "toZone": "work"},
		{"type": "relation", "from": "a", "fromZone": "work", "to": "x", "toZone": "default"},
		{"type": "relation", "from": "y", "fromZone": "default", "to": "c", "toZone": "work"},
		{"type": "relation", "from": "z", "fromZone": "default", "to": "c", "toZone": "work"},
	}
	for i, d := range docs {
		require.NoError(t, eng.Index(ctx, rels, string(rune('0'+i)), d))
	}

	stats, err := r.ZoneStats(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EntityCount)
	assert.Equal(t, 1, stats.RelationCount)
	assert.Equal(t, 1, stats.OutgoingCrossZone)
	assert.Equal(t, 2, stats.IncomingCrossZone)
	assert.Equal(t, map[string]int64{"person": 2, "project": 1}, stats.EntityTypes)

	_, err = r.ZoneStats(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrZoneNotFound)
}
