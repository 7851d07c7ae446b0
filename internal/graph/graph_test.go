package graph

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/assistant"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine/sqlite"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

// stepClock returns a clock that advances one minute per call.
func stepClock() func() time.Time {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Minute)
	}
}

type fixture struct {
	eng    engine.Engine
	reg    *zones.Registry
	client *Client
}

func setup(t *testing.T, opts Options, wrap func(engine.Engine) engine.Engine) *fixture {
	t.Helper()
	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var eng engine.Engine = store
	if wrap != nil {
		eng = wrap(store)
	}
	reg, err := zones.Open(context.Background(), eng, zones.Options{Prefix: "kg"})
	require.NoError(t, err)
	c := New(reg, opts)
	c.now = stepClock()
	return &fixture{eng: eng, reg: reg, client: c}
}

func (f *fixture) save(t *testing.T, name, entityType, zone string, observations ...string) *models.Entity {
	t.Helper()
	e, err := f.client.SaveEntity(context.Background(), models.Entity{
		Name: name, EntityType: entityType, Observations: observations,
	}, zone, SaveEntityOptions{})
	require.NoError(t, err)
	return e
}

func (f *fixture) addZone(t *testing.T, name string) {
	t.Helper()
	_, err := f.reg.AddMemoryZone(context.Background(), name, "", nil)
	require.NoError(t, err)
}

func (f *fixture) relationCount(t *testing.T) int {
	t.Helper()
	n, err := f.eng.Count(context.Background(), f.reg.Layout().RelationIndex(), query.MatchAll{})
	require.NoError(t, err)
	return n
}

func TestSaveEntityUpsert(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()

	e := f.save(t, "Go", "language", "", "compiled")
	assert.Equal(t, models.DefaultZone, e.Zone)
	assert.Equal(t, models.TypeEntity, e.Type)
	assert.Equal(t, models.DefaultRelevance, e.RelevanceScore)
	assert.Zero(t, e.ReadCount)
	assert.Equal(t, e.LastWrite, e.LastRead, "new entities start with lastRead=now")

	read, err := f.client.GetEntity(ctx, "Go", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, read.ReadCount)

	updated, err := f.client.SaveEntity(ctx, models.Entity{Name: "Go", EntityType: "language", Observations: []string{"fast"}}, "", SaveEntityOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated.ReadCount, "read count survives an upsert")
	assert.True(t, updated.LastRead.Equal(read.LastRead))
	assert.True(t, updated.LastWrite.After(read.LastRead))
	assert.Equal(t, []string{"fast"}, updated.Observations)

	boosted, err := f.client.SaveEntity(ctx, models.Entity{Name: "Go", RelevanceScore: 100}, "", SaveEntityOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MaxRelevance, boosted.RelevanceScore)

	kept, err := f.client.SaveEntity(ctx, models.Entity{Name: "Go"}, "", SaveEntityOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MaxRelevance, kept.RelevanceScore, "relevance is preserved when not supplied")
}

func TestSaveEntityValidation(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()

	_, err := f.client.SaveEntity(ctx, models.Entity{Name: "   "}, "", SaveEntityOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.client.SaveEntity(ctx, models.Entity{Name: "X"}, "nowhere", SaveEntityOptions{})
	assert.ErrorIs(t, err, models.ErrZoneNotFound)
	assert.Contains(t, err.Error(), "nowhere")

	_, err = f.client.SaveEntity(ctx, models.Entity{Name: "X"}, "nowhere", SaveEntityOptions{SkipZoneValidation: true})
	require.NoError(t, err)
	got, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "X", "nowhere")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "nowhere", got.Zone)
}

func TestZoneIsolation(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.addZone(t, "team-a")
	f.save(t, "Widget", "tool", "team-a", "v1")

	res, err := f.client.Search(ctx, query.SearchRequest{Query: "Widget", Zone: "team-a"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Widget", res.Hits[0].Entity.Name)
	assert.Equal(t, "team-a", res.Hits[0].Entity.Zone)

	res, err = f.client.Search(ctx, query.SearchRequest{Query: "Widget", Zone: models.DefaultZone})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	for _, q := range []string{"*", "widget tool", "Widget AND v1"} {
		res, err = f.client.Search(ctx, query.SearchRequest{Query: q})
		require.NoError(t, err)
		assert.Empty(t, res.Hits, q)
	}

	e, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "Widget", models.DefaultZone)
	require.NoError(t, err)
	assert.Nil(t, e)

	res, err = f.client.Search(ctx, query.SearchRequest{Query: "Widget", Zone: "unknown-zone"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

// flakyEngine fails every partial update.
type flakyEngine struct {
	engine.Engine
}

func (flakyEngine) Update(context.Context, string, string, map[string]any) error {
	return errors.New("engine unavailable")
}

func TestGetEntityReadUpdateIsBestEffort(t *testing.T) {
	f := setup(t, Options{}, func(e engine.Engine) engine.Engine { return flakyEngine{e} })
	ctx := context.Background()
	f.save(t, "Go", "language", "")

	e, err := f.client.GetEntity(ctx, "Go", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.ReadCount)

	stored, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "Go", "")
	require.NoError(t, err)
	assert.Zero(t, stored.ReadCount)

	missing, err := f.client.GetEntity(ctx, "Rust", "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRelevanceScoreStaysInBounds(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.save(t, "Go", "language", "")

	var e *models.Entity
	var err error
	for i := 0; i < 5; i++ {
		e, err = f.client.MarkImportant(ctx, "Go", true, "")
		require.NoError(t, err)
		assert.LessOrEqual(t, e.RelevanceScore, models.MaxRelevance)
	}
	assert.Equal(t, models.MaxRelevance, e.RelevanceScore)

	for i := 0; i < 5; i++ {
		e, err = f.client.MarkImportant(ctx, "Go", false, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, e.RelevanceScore, models.MinRelevance)
	}
	assert.Equal(t, models.MinRelevance, e.RelevanceScore)

	stored, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "Go", "")
	require.NoError(t, err)
	assert.Equal(t, models.MinRelevance, stored.RelevanceScore)

	for _, ratio := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		_, err = f.client.UpdateEntityRelevanceScore(ctx, "Go", ratio, "", RelevanceOptions{})
		assert.ErrorIs(t, err, models.ErrValidation, "ratio %v", ratio)
	}

	_, err = f.client.UpdateEntityRelevanceScore(ctx, "Rust", 2, "", RelevanceOptions{})
	assert.ErrorIs(t, err, models.ErrNotFound)

	e, err = f.client.UpdateEntityRelevanceScore(ctx, "Rust", 2, "", RelevanceOptions{AutoCreateMissingEntities: true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.RelevanceScore)
	assert.Equal(t, models.PlaceholderEntityType, e.EntityType)
}

func TestAddObservations(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.save(t, "Go", "language", "", "compiled")

	e, err := f.client.AddObservations(ctx, "Go", []string{"garbage collected", "compiled"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"compiled", "garbage collected", "compiled"}, e.Observations)

	_, err = f.client.AddObservations(ctx, "Rust", []string{"x"}, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEntityNamesAreTrimmed(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.save(t, "Widget", "thing", "")

	e, err := f.client.AddObservations(ctx, " Widget ", []string{"blue"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Widget", e.Name)
	assert.Equal(t, []string{"blue"}, e.Observations)

	e, err = f.client.UpdateEntityRelevanceScore(ctx, "\tWidget", 2, "", RelevanceOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.RelevanceScore)

	e, err = f.client.MarkImportant(ctx, "Widget ", true, "")
	require.NoError(t, err)
	assert.Equal(t, 20.0, e.RelevanceScore)

	got, err := f.client.GetEntity(ctx, " Widget", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"blue"}, got.Observations)

	_, err = f.client.AddObservations(ctx, "  ", []string{"x"}, "")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.client.UpdateEntityRelevanceScore(ctx, "", 2, "", RelevanceOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSaveRelation(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.addZone(t, "work")
	f.save(t, "Alice", "person", "")

	r, err := f.client.SaveRelation(ctx, models.Relation{From: "Alice", To: "Acme", RelationType: "works_at"}, "", "work", SaveRelationOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultZone, r.FromZone)
	assert.Equal(t, "work", r.ToZone)

	acme, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "Acme", "work")
	require.NoError(t, err)
	require.NotNil(t, acme, "missing endpoint is created as a placeholder")
	assert.Equal(t, models.PlaceholderEntityType, acme.EntityType)
	assert.Empty(t, acme.Observations)

	_, err = f.client.SaveRelation(ctx, models.Relation{From: "Alice", To: "Bob", RelationType: "knows"}, "", "", SaveRelationOptions{DisableAutoCreate: true})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.client.SaveRelation(ctx, models.Relation{From: "Alice", To: "Bob", RelationType: "knows"}, "", "ghost", SaveRelationOptions{})
	assert.ErrorIs(t, err, models.ErrZoneNotFound)
	assert.Contains(t, err.Error(), "ghost")

	_, err = f.client.SaveRelation(ctx, models.Relation{From: "Alice", RelationType: "knows"}, "", "", SaveRelationOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)

	// Saving the same tuple again upserts.
	_, err = f.client.SaveRelation(ctx, models.Relation{From: "Alice", To: "Acme", RelationType: "works_at", ToZone: "work"}, "", "", SaveRelationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.relationCount(t))

	rels, err := f.client.GetRelationsForEntities(ctx, []string{"Acme"}, "work")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "Alice", rels[0].From)

	ok, err := f.client.DeleteRelation(ctx, "Alice", "Acme", "works_at", "", "work")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.client.DeleteRelation(ctx, "Alice", "Acme", "works_at", "", "work")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteZoneRemovesCrossZoneRelation(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.addZone(t, "z1")
	f.addZone(t, "z2")
	f.save(t, "A", "thing", "z1")
	f.save(t, "B", "thing", "z2")

	_, err := f.client.SaveRelation(ctx, models.Relation{From: "A", To: "B", RelationType: "uses"}, "z1", "z2", SaveRelationOptions{})
	require.NoError(t, err)

	out, err := f.reg.DeleteMemoryZone(ctx, "z1")
	require.NoError(t, err)
	assert.True(t, out.OK())

	rels, err := f.client.GetRelationsForEntities(ctx, []string{"B"}, "z2")
	require.NoError(t, err)
	assert.Empty(t, rels)
	assert.Zero(t, f.relationCount(t))
}

func setupCascade(t *testing.T) *fixture {
	t.Helper()
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.addZone(t, "work")
	f.save(t, "X", "node", "")
	f.save(t, "Y", "node", "")
	f.save(t, "W", "node", "work")

	for _, r := range []struct{ from, fromZone, to, toZone string }{
		{"X", "default", "Y", "default"},
		{"Y", "default", "X", "default"},
		{"X", "default", "W", "work"},
		{"W", "work", "X", "default"},
		{"Y", "default", "W", "work"},
	} {
		_, err := f.client.SaveRelation(ctx, models.Relation{From: r.from, To: r.to, RelationType: "links"}, r.fromZone, r.toZone, SaveRelationOptions{DisableAutoCreate: true})
		require.NoError(t, err)
	}
	require.Equal(t, 5, f.relationCount(t))
	return f
}

func TestDeleteEntityCascades(t *testing.T) {
	f := setupCascade(t)
	ctx := context.Background()

	res, err := f.client.DeleteEntity(ctx, "X", "", DeleteEntityOptions{})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.True(t, res.Steps.OK())
	assert.Equal(t, 1, f.relationCount(t), "only Y->W survives")

	e, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "X", "")
	require.NoError(t, err)
	assert.Nil(t, e)

	res, err = f.client.DeleteEntity(ctx, "X", "", DeleteEntityOptions{})
	require.NoError(t, err)
	assert.False(t, res.Deleted)

	_, err = f.client.DeleteEntity(ctx, " ", "", DeleteEntityOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeleteEntityKeepRelations(t *testing.T) {
	f := setupCascade(t)

	res, err := f.client.DeleteEntity(context.Background(), "X", "", DeleteEntityOptions{KeepRelations: true})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, 3, f.relationCount(t), "cross-zone relations of X are always removed")
}

func TestGetRelatedEntitiesTerminatesOnCycles(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.addZone(t, "work")
	for _, r := range []struct{ from, to, toZone string }{
		{"A", "B", ""},
		{"B", "C", ""},
		{"C", "A", ""},
		{"C", "D", "work"},
	} {
		_, err := f.client.SaveRelation(ctx, models.Relation{From: r.from, To: r.to, RelationType: "next"}, "", r.toZone, SaveRelationOptions{})
		require.NoError(t, err)
	}

	g, err := f.client.GetRelatedEntities(ctx, "A", 5, "")
	require.NoError(t, err)
	names := map[string]int{}
	for _, e := range g.Entities {
		names[e.Zone+"/"+e.Name]++
	}
	assert.Equal(t, map[string]int{"default/A": 1, "default/B": 1, "default/C": 1, "work/D": 1}, names)
	assert.Len(t, g.Relations, 4)

	g, err = f.client.GetRelatedEntities(ctx, "A", 1, "")
	require.NoError(t, err)
	assert.Len(t, g.Entities, 3, "A plus its direct neighbours B and C")
	assert.Len(t, g.Relations, 2)

	g, err = f.client.GetRelatedEntities(ctx, "Nobody", 2, "")
	require.NoError(t, err)
	assert.Empty(t, g.Entities)
	assert.Empty(t, g.Relations)
}

func TestGetRecentEntities(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.save(t, "First", "note", "", "one")
	f.save(t, "Second", "note", "", "two")
	f.save(t, "Third", "note", "", "three")

	_, err := f.client.GetEntity(ctx, "First", "")
	require.NoError(t, err)

	recent, err := f.client.GetRecentEntities(ctx, 2, false, "")
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "First", recent[0].Name)
	assert.Equal(t, "Third", recent[1].Name)
	assert.Empty(t, recent[0].Observations)

	recent, err = f.client.GetRecentEntities(ctx, 10, true, "")
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	assert.Equal(t, []string{"one"}, recent[0].Observations)
}

func TestSearchRanking(t *testing.T) {
	f := setup(t, Options{}, nil)
	ctx := context.Background()
	f.save(t, "Postgres", "database", "", "relational database server")
	f.save(t, "Redis", "cache", "", "in-memory key value store", "sometimes used as a database")
	f.save(t, "Alice", "person", "", "administers the database cluster")
	_, err := f.client.MarkImportant(ctx, "Alice", true, "")
	require.NoError(t, err)

	res, err := f.client.Search(ctx, query.SearchRequest{Query: "database server"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "Postgres", res.Hits[0].Entity.Name)
	assert.NotEmpty(t, res.Hits[0].Highlights)

	res, err = f.client.Search(ctx, query.SearchRequest{Query: "database server", SortBy: query.SortImportance})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "Alice", res.Hits[0].Entity.Name)

	entities, err := f.client.SearchEntities(ctx, query.SearchRequest{Query: "*", EntityTypes: []string{"cache", "person"}})
	require.NoError(t, err)
	var names []string
	for _, e := range entities {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"Redis", "Alice"}, names)

	res, err = f.client.Search(ctx, query.SearchRequest{Query: "*", Limit: 1, Offset: 1, SortBy: query.SortImportance})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Hits, 1)
}

type scorerFunc func(context.Context, assistant.Request) ([]assistant.Verdict, error)

func (f scorerFunc) Score(ctx context.Context, req assistant.Request) ([]assistant.Verdict, error) {
	return f(ctx, req)
}

func seedDeploys(t *testing.T, f *fixture) {
	t.Helper()
	f.save(t, "Deploy Pipeline", "process", "", "ships builds to production")
	f.save(t, "Deploy Party", "event", "", "cake after a release")
	f.save(t, "Deploy Checklist", "document", "", "steps before production deploys")
}

func TestUserSearchFiltersWithAssistant(t *testing.T) {
	var offered int
	scorer := scorerFunc(func(_ context.Context, req assistant.Request) ([]assistant.Verdict, error) {
		offered = len(req.Candidates)
		var out []assistant.Verdict
		for _, c := range req.Candidates {
			switch {
			case strings.Contains(c.Name, "Checklist"):
				out = append(out, assistant.Verdict{ID: c.ID, Useful: true, Score: 0.9})
			case strings.Contains(c.Name, "Pipeline"):
				out = append(out, assistant.Verdict{ID: c.ID, Useful: true, Score: 0.5})
			default:
				out = append(out, assistant.Verdict{ID: c.ID, Useful: false, Score: 0.1})
			}
		}
		return out, nil
	})
	f := setup(t, Options{Assistant: scorer}, nil)
	ctx := context.Background()
	seedDeploys(t, f)

	res, err := f.client.UserSearch(ctx, UserSearchRequest{
		SearchRequest:     query.SearchRequest{Query: "deploy", Limit: 5},
		InformationNeeded: "how releases reach production",
	})
	require.NoError(t, err)
	assert.True(t, res.Filtered)
	assert.Equal(t, 3, offered)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "Deploy Checklist", res.Hits[0].Entity.Name)
	assert.Equal(t, "Deploy Pipeline", res.Hits[1].Entity.Name)
	assert.InDelta(t, 1.9, res.Hits[0].Entity.RelevanceScore, 1e-9)

	party, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "Deploy Party", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, party.RelevanceScore, 1e-9)
	pipeline, err := f.client.GetEntityWithoutUpdatingLastRead(ctx, "Deploy Pipeline", "")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, pipeline.RelevanceScore, 1e-9)
}

func TestUserSearchFallsBack(t *testing.T) {
	failing := scorerFunc(func(context.Context, assistant.Request) ([]assistant.Verdict, error) {
		return nil, errors.New("model timeout")
	})
	f := setup(t, Options{Assistant: failing}, nil)
	ctx := context.Background()
	seedDeploys(t, f)

	res, err := f.client.UserSearch(ctx, UserSearchRequest{
		SearchRequest:     query.SearchRequest{Query: "deploy", Limit: 2},
		InformationNeeded: "anything",
	})
	require.NoError(t, err)
	assert.False(t, res.Filtered)
	assert.Contains(t, res.Fallback, "model timeout")
	assert.Len(t, res.Hits, 2, "fallback is truncated to the limit")

	res, err = f.client.UserSearch(ctx, UserSearchRequest{SearchRequest: query.SearchRequest{Query: "deploy", Limit: 2}})
	require.NoError(t, err)
	assert.False(t, res.Filtered)
	assert.Empty(t, res.Fallback)
	assert.Len(t, res.Hits, 2)
}

func TestUserSearchWithoutAssistant(t *testing.T) {
	f := setup(t, Options{}, nil)
	seedDeploys(t, f)

	res, err := f.client.UserSearch(context.Background(), UserSearchRequest{
		SearchRequest:     query.SearchRequest{Query: "deploy", Limit: 1},
		InformationNeeded: "anything",
	})
	require.NoError(t, err)
	assert.Equal(t, assistant.ErrUnavailable.Error(), res.Fallback)
	assert.Len(t, res.Hits, 1)
}

func TestListEntities(t *testing.T) {
	f := setup(t, Options{}, nil)
	f.save(t, "b", "x", "")
	f.save(t, "a", "x", "")
	f.save(t, "c", "x", "")

	list, err := f.client.ListEntities(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "c", list[2].Name)

	list, err = f.client.ListEntities(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, list)
}

// recordingEngine keeps every search request it forwards.
type recordingEngine struct {
	engine.Engine
	requests *[]query.Request
}

func (e recordingEngine) Search(ctx context.Context, index string, req query.Request) (*engine.SearchResponse, error) {
	*e.requests = append(*e.requests, req)
	return e.Engine.Search(ctx, index, req)
}

func TestListingsPageWithSearchAfter(t *testing.T) {
	var requests []query.Request
	f := setup(t, Options{}, func(e engine.Engine) engine.Engine {
		return recordingEngine{Engine: e, requests: &requests}
	})
	f.client.pageSize = 2
	ctx := context.Background()
	names := []string{"e", "c", "a", "d", "b"}
	for _, n := range names {
		f.save(t, n, "x", "")
	}
	for _, to := range names[1:] {
		_, err := f.client.SaveRelation(ctx, models.Relation{From: "a", To: to, RelationType: "knows"}, "", "", SaveRelationOptions{})
		require.NoError(t, err)
	}

	requests = nil
	list, err := f.client.ListEntities(ctx, "")
	require.NoError(t, err)
	var got []string
	for _, e := range list {
		got = append(got, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	require.Len(t, requests, 3)
	assert.Nil(t, requests[0].SearchAfter)
	assert.Equal(t, []any{"b"}, requests[1].SearchAfter)
	assert.Equal(t, []any{"d"}, requests[2].SearchAfter)
	for _, r := range requests {
		assert.Zero(t, r.From)
		assert.Equal(t, 2, r.Size)
	}

	requests = nil
	rels, err := f.client.ListRelations(ctx, "")
	require.NoError(t, err)
	require.Len(t, rels, 4)
	for i, want := range []string{"b", "c", "d", "e"} {
		assert.Equal(t, want, rels[i].To)
	}
	require.Len(t, requests, 3)
	assert.Equal(t, []any{"default", "a", "default", "e", "knows"}, requests[2].SearchAfter)
}
