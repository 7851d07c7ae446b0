package graph

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// SaveEntityOptions controls SaveEntity.
type SaveEntityOptions struct {
	// SkipZoneValidation writes without checking that the zone exists.
	SkipZoneValidation bool
}

// DeleteEntityOptions controls DeleteEntity.
type DeleteEntityOptions struct {
	// KeepRelations leaves same-zone relations in place. Cross-zone
	// relations referencing the entity are always removed.
	KeepRelations bool
}

// RelevanceOptions controls UpdateEntityRelevanceScore.
type RelevanceOptions struct {
	AutoCreateMissingEntities bool
}

// DeleteResult reports an entity deletion and its cascade steps.
type DeleteResult struct {
	Deleted bool           `json:"deleted"`
	Steps   models.Outcome `json:"steps"`
}

// Ratios applied by MarkImportant.
const (
	ImportantRatio   = 10.0
	UnimportantRatio = 0.1
)

// SaveEntity upserts an entity into zone. Read statistics of an existing
// record are preserved; relevance is taken from e when positive, else kept,
// else defaulted.
func (c *Client) SaveEntity(ctx context.Context, e models.Entity, zone string, opts SaveEntityOptions) (*models.Entity, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return nil, fmt.Errorf("%w: entity name is required", models.ErrValidation)
	}
	zone = zoneOrDefault(zone)
	if !opts.SkipZoneValidation && zone != models.DefaultZone {
		if err := c.zones.RequireZone(ctx, zone); err != nil {
			return nil, err
		}
	}
	if err := c.zones.EnsurePartition(ctx, zone); err != nil {
		return nil, err
	}

	existing, id, err := c.lookup(ctx, e.Name, zone)
	if err != nil {
		return nil, err
	}
	now := c.now()

	doc := models.Entity{
		Type:         models.TypeEntity,
		Name:         e.Name,
		EntityType:   e.EntityType,
		Observations: e.Observations,
		Zone:         zone,
		LastRead:     now,
		LastWrite:    now,
	}
	if doc.Observations == nil {
		doc.Observations = []string{}
	}
	switch {
	case e.RelevanceScore > 0:
		doc.RelevanceScore = clampRelevance(e.RelevanceScore)
	case existing != nil:
		doc.RelevanceScore = existing.RelevanceScore
	default:
		doc.RelevanceScore = models.DefaultRelevance
	}
	if existing != nil {
		doc.ReadCount = existing.ReadCount
		doc.LastRead = existing.LastRead
	} else {
		id = EntityID(zone, e.Name)
	}

	if err := c.eng.Index(ctx, c.layout.EntityIndex(zone), id, doc); err != nil {
		return nil, fmt.Errorf("save entity %q: %w", e.Name, err)
	}
	return &doc, nil
}

// lookup finds an entity by name, always filtering on the zone. It returns
// the document id alongside the entity, or nil when absent.
func (c *Client) lookup(ctx context.Context, name, zone string) (*models.Entity, string, error) {
	resp, err := c.eng.Search(ctx, c.layout.EntityIndex(zone), query.Request{
		Query: query.And(
			query.Term{Field: query.FieldZone, Value: zone},
			query.Term{Field: query.FieldNameKeyword, Value: name},
		),
		Size: 1,
	})
	if engine.IsMissing(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("look up entity %q in zone %q: %w", name, zone, err)
	}
	if len(resp.Hits) == 0 {
		return nil, "", nil
	}
	e, err := decodeEntity(resp.Hits[0].Source)
	if err != nil {
		return nil, "", err
	}
	return e, resp.Hits[0].ID, nil
}

// GetEntityWithoutUpdatingLastRead returns the entity, or nil when absent.
func (c *Client) GetEntityWithoutUpdatingLastRead(ctx context.Context, name, zone string) (*models.Entity, error) {
	e, _, err := c.lookup(ctx, strings.TrimSpace(name), zoneOrDefault(zone))
	return e, err
}

// GetEntity returns the entity and records the read. A failure to persist
// the read statistics is logged; the returned entity reflects them anyway.
func (c *Client) GetEntity(ctx context.Context, name, zone string) (*models.Entity, error) {
	name = strings.TrimSpace(name)
	zone = zoneOrDefault(zone)
	e, id, err := c.lookup(ctx, name, zone)
	if err != nil || e == nil {
		return e, err
	}
	e.ReadCount++
	e.LastRead = c.now()
	if err := c.eng.Update(ctx, c.layout.EntityIndex(zone), id, map[string]any{
		"readCount": e.ReadCount,
		"lastRead":  e.LastRead,
	}); err != nil {
		c.logger.Warn("failed to record entity read", "entity", name, "zone", zone, "err", err)
	}
	return e, nil
}

// DeleteEntity removes an entity and the relations referencing it.
func (c *Client) DeleteEntity(ctx context.Context, name, zone string, opts DeleteEntityOptions) (*DeleteResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", models.ErrValidation)
	}
	zone = zoneOrDefault(zone)
	e, id, err := c.lookup(ctx, name, zone)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{}
	if e == nil {
		return res, nil
	}

	rels := c.layout.RelationIndex()
	step := func(label string, q query.Query) {
		_, err := c.eng.DeleteByQuery(ctx, rels, q)
		if engine.IsMissing(err) {
			err = nil
		}
		if err != nil {
			c.logger.Warn("relation cleanup failed", "entity", name, "zone", zone, "step", label, "err", err)
		}
		res.Steps.Record(label, err)
	}
	if !opts.KeepRelations {
		step("delete same-zone relations", sameZoneRelations(name, zone))
	}
	step("delete cross-zone relations", crossZoneRelations(name, zone))

	if _, err := c.eng.Delete(ctx, c.layout.EntityIndex(zone), id); err != nil {
		res.Steps.Record("delete entity", err)
		return res, fmt.Errorf("delete entity %q: %w", name, err)
	}
	res.Steps.Record("delete entity", nil)
	res.Deleted = true
	return res, nil
}

func sameZoneRelations(name, zone string) query.Query {
	return query.Bool{
		Filter: []query.Query{
			query.Term{Field: "fromZone", Value: zone},
			query.Term{Field: "toZone", Value: zone},
		},
		Should: []query.Query{
			query.Term{Field: "from", Value: name},
			query.Term{Field: "to", Value: name},
		},
		MinimumShouldMatch: 1,
	}
}

func crossZoneRelations(name, zone string) query.Query {
	return query.Or(
		query.Bool{
			Filter:  []query.Query{query.Term{Field: "fromZone", Value: zone}, query.Term{Field: "from", Value: name}},
			MustNot: []query.Query{query.Term{Field: "toZone", Value: zone}},
		},
		query.Bool{
			Filter:  []query.Query{query.Term{Field: "toZone", Value: zone}, query.Term{Field: "to", Value: name}},
			MustNot: []query.Query{query.Term{Field: "fromZone", Value: zone}},
		},
	)
}

// AddObservations appends observations to an existing entity.
func (c *Client) AddObservations(ctx context.Context, name string, observations []string, zone string) (*models.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", models.ErrValidation)
	}
	zone = zoneOrDefault(zone)
	e, _, err := c.lookup(ctx, name, zone)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: entity %q in zone %q", models.ErrNotFound, name, zone)
	}
	e.Observations = append(e.Observations, observations...)
	return c.SaveEntity(ctx, *e, zone, SaveEntityOptions{SkipZoneValidation: true})
}

// UpdateEntityRelevanceScore multiplies the entity's relevance by ratio,
// clamping the result to [MinRelevance, MaxRelevance].
func (c *Client) UpdateEntityRelevanceScore(ctx context.Context, name string, ratio float64, zone string, opts RelevanceOptions) (*models.Entity, error) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		return nil, fmt.Errorf("%w: relevance ratio must be a positive number, got %v", models.ErrValidation, ratio)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", models.ErrValidation)
	}
	zone = zoneOrDefault(zone)
	e, id, err := c.lookup(ctx, name, zone)
	if err != nil {
		return nil, err
	}
	if e == nil {
		if !opts.AutoCreateMissingEntities {
			return nil, fmt.Errorf("%w: entity %q in zone %q", models.ErrNotFound, name, zone)
		}
		e, err = c.SaveEntity(ctx, placeholder(name), zone, SaveEntityOptions{})
		if err != nil {
			return nil, err
		}
		id = EntityID(zone, e.Name)
	}

	score := e.RelevanceScore * ratio
	if ratio > 1 {
		score = min(models.MaxRelevance, score)
	} else {
		score = max(models.MinRelevance, score)
	}
	e.RelevanceScore = clampRelevance(score)
	if err := c.eng.Update(ctx, c.layout.EntityIndex(zone), id, map[string]any{
		"relevanceScore": e.RelevanceScore,
	}); err != nil {
		return nil, fmt.Errorf("update relevance of %q: %w", name, err)
	}
	return e, nil
}

// MarkImportant raises or lowers an entity's relevance tenfold.
func (c *Client) MarkImportant(ctx context.Context, name string, important bool, zone string) (*models.Entity, error) {
	ratio := UnimportantRatio
	if important {
		ratio = ImportantRatio
	}
	return c.UpdateEntityRelevanceScore(ctx, name, ratio, zone, RelevanceOptions{})
}

// GetRecentEntities returns the most recently read entities of a zone.
func (c *Client) GetRecentEntities(ctx context.Context, limit int, includeObservations bool, zone string) ([]models.Entity, error) {
	entities, err := c.SearchEntities(ctx, query.SearchRequest{
		Query:  "*",
		Limit:  limit,
		SortBy: query.SortRecent,
		Zone:   zone,
	})
	if err != nil {
		return nil, err
	}
	if !includeObservations {
		for i := range entities {
			entities[i].Observations = []string{}
		}
	}
	return entities, nil
}

// ListEntities returns every entity of a zone ordered by name. Names are
// unique within a zone, so name.keyword is a complete paging key.
func (c *Client) ListEntities(ctx context.Context, zone string) ([]models.Entity, error) {
	zone = zoneOrDefault(zone)
	var out []models.Entity
	err := engine.Scan(ctx, c.eng, c.layout.EntityIndex(zone), query.Request{
		Query: query.And(
			query.Term{Field: query.FieldZone, Value: zone},
			query.Term{Field: query.FieldType, Value: models.TypeEntity},
		),
		Sort: []query.Sort{{Field: query.FieldNameKeyword, Order: query.Asc}},
	}, c.pageSize, func(h engine.Hit) {
		e, err := decodeEntity(h.Source)
		if err != nil {
			c.logger.Warn("skipping malformed entity", "id", h.ID, "err", err)
			return
		}
		out = append(out, *e)
	})
	if engine.IsMissing(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list entities of zone %q: %w", zone, err)
	}
	return out, nil
}

func placeholder(name string) models.Entity {
	return models.Entity{
		Name:         name,
		EntityType:   models.PlaceholderEntityType,
		Observations: []string{},
	}
}
