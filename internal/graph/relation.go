package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// SaveRelationOptions controls SaveRelation.
type SaveRelationOptions struct {
	// DisableAutoCreate makes a missing endpoint an error instead of
	// creating a placeholder entity for it.
	DisableAutoCreate  bool
	SkipZoneValidation bool
}

func firstZone(zones ...string) string {
	for _, z := range zones {
		if z = strings.TrimSpace(z); z != "" {
			return z
		}
	}
	return models.DefaultZone
}

// SaveRelation upserts a relation. Explicit zones win over the relation's
// own zone fields; both fall back to the default zone.
func (c *Client) SaveRelation(ctx context.Context, r models.Relation, fromZone, toZone string, opts SaveRelationOptions) (*models.Relation, error) {
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
	r.RelationType = strings.TrimSpace(r.RelationType)
	if r.From == "" || r.To == "" || r.RelationType == "" {
		return nil, fmt.Errorf("%w: relation needs from, to and relationType", models.ErrValidation)
	}
	r.FromZone = firstZone(fromZone, r.FromZone)
	r.ToZone = firstZone(toZone, r.ToZone)
	r.Type = models.TypeRelation

	if !opts.SkipZoneValidation {
		if err := c.zones.RequireZone(ctx, r.FromZone); err != nil {
			return nil, fmt.Errorf("source zone: %w", err)
		}
		if r.ToZone != r.FromZone {
			if err := c.zones.RequireZone(ctx, r.ToZone); err != nil {
				return nil, fmt.Errorf("target zone: %w", err)
			}
		}
	}

	for _, end := range []struct{ name, zone string }{{r.From, r.FromZone}, {r.To, r.ToZone}} {
		if err := c.ensureEndpoint(ctx, end.name, end.zone, !opts.DisableAutoCreate); err != nil {
			return nil, err
		}
	}

	if err := c.eng.Index(ctx, c.layout.RelationIndex(), RelationID(r), r); err != nil {
		return nil, fmt.Errorf("save relation %s -[%s]-> %s: %w", r.From, r.RelationType, r.To, err)
	}
	return &r, nil
}

// ensureEndpoint checks that an endpoint exists, creating a placeholder when
// allowed. The zone has already been validated.
func (c *Client) ensureEndpoint(ctx context.Context, name, zone string, create bool) error {
	e, _, err := c.lookup(ctx, name, zone)
	if err != nil {
		return err
	}
	if e != nil {
		return nil
	}
	if !create {
		return fmt.Errorf("%w: entity %q in zone %q", models.ErrNotFound, name, zone)
	}
	if _, err := c.SaveEntity(ctx, placeholder(name), zone, SaveEntityOptions{SkipZoneValidation: true}); err != nil {
		return fmt.Errorf("create placeholder %q: %w", name, err)
	}
	return nil
}

// DeleteRelation deletes a relation by its full tuple. It reports false when
// no such relation exists.
func (c *Client) DeleteRelation(ctx context.Context, from, to, relationType, fromZone, toZone string) (bool, error) {
	r := models.Relation{
		From:         strings.TrimSpace(from),
		FromZone:     firstZone(fromZone),
		To:           strings.TrimSpace(to),
		ToZone:       firstZone(toZone),
		RelationType: strings.TrimSpace(relationType),
	}
	ok, err := c.eng.Delete(ctx, c.layout.RelationIndex(), RelationID(r))
	if engine.IsMissing(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	return ok, nil
}

// GetRelationsForEntities returns the relations in which any of names, in
// zone, is the source or the target.
func (c *Client) GetRelationsForEntities(ctx context.Context, names []string, zone string) ([]models.Relation, error) {
	zone = zoneOrDefault(zone)
	var clean []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	return c.searchRelations(ctx, query.Or(
		query.And(query.Term{Field: "fromZone", Value: zone}, query.Terms{Field: "from", Values: clean}),
		query.And(query.Term{Field: "toZone", Value: zone}, query.Terms{Field: "to", Values: clean}),
	))
}

// relationOrder is unique per relation since the id derives from it.
var relationOrder = []query.Sort{
	{Field: "fromZone", Order: query.Asc},
	{Field: "from", Order: query.Asc},
	{Field: "toZone", Order: query.Asc},
	{Field: "to", Order: query.Asc},
	{Field: "relationType", Order: query.Asc},
}

func (c *Client) searchRelations(ctx context.Context, q query.Query) ([]models.Relation, error) {
	var out []models.Relation
	err := engine.Scan(ctx, c.eng, c.layout.RelationIndex(), query.Request{Query: q, Sort: relationOrder}, c.pageSize, func(h engine.Hit) {
		r, err := decodeRelation(h.Source)
		if err != nil {
			c.logger.Warn("skipping malformed relation", "id", h.ID, "err", err)
			return
		}
		out = append(out, *r)
	})
	if engine.IsMissing(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search relations: %w", err)
	}
	return out, nil
}

// ListRelations returns every relation with an endpoint in zone.
func (c *Client) ListRelations(ctx context.Context, zone string) ([]models.Relation, error) {
	zone = zoneOrDefault(zone)
	return c.searchRelations(ctx, query.Or(
		query.Term{Field: "fromZone", Value: zone},
		query.Term{Field: "toZone", Value: zone},
	))
}
