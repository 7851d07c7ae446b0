// Package transfer copies, moves and merges entities between zones.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

// Engine moves knowledge between zones through a graph client.
type Engine struct {
	graph  *graph.Client
	zones  *zones.Registry
	logger *log.Logger
}

// New creates a transfer engine.
func New(c *graph.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{graph: c, zones: c.Zones(), logger: logger.WithPrefix("transfer")}
}

// CopyOptions controls CopyEntitiesBetweenZones and MoveEntitiesBetweenZones.
type CopyOptions struct {
	// SkipRelations copies entities only.
	SkipRelations bool
	// Overwrite replaces entities that already exist in the target zone.
	Overwrite bool
}

func zoneOrDefault(zone string) string {
	if zone = strings.TrimSpace(zone); zone == "" {
		return models.DefaultZone
	}
	return zone
}

func (e *Engine) checkPair(ctx context.Context, source, target string) error {
	if source == target {
		return fmt.Errorf("%w: source and target zone are both %q", models.ErrValidation, source)
	}
	if err := e.zones.RequireZone(ctx, source); err != nil {
		return fmt.Errorf("source zone: %w", err)
	}
	if err := e.zones.RequireZone(ctx, target); err != nil {
		return fmt.Errorf("target zone: %w", err)
	}
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// CopyEntitiesBetweenZones copies the named entities from source to target.
// Entities missing from source, or already present in target without
// Overwrite, are skipped. Relations of the copied entities are re-created
// in target when both endpoints resolve there, whatever zone the far
// endpoint lived in.
func (e *Engine) CopyEntitiesBetweenZones(ctx context.Context, names []string, source, target string, opts CopyOptions) (*models.TransferResult, error) {
	source, target = zoneOrDefault(source), zoneOrDefault(target)
	if err := e.checkPair(ctx, source, target); err != nil {
		return nil, err
	}
	res := &models.TransferResult{
		Source:    source,
		Target:    target,
		Entities:  []string{},
		Relations: []models.Relation{},
		Skipped:   []models.Skipped{},
	}

	for _, name := range uniqueNames(names) {
		ent, err := e.graph.GetEntityWithoutUpdatingLastRead(ctx, name, source)
		if err != nil {
			return res, err
		}
		if ent == nil {
			res.Skipped = append(res.Skipped, models.Skipped{Name: name, Reason: "not found in source zone " + source})
			continue
		}
		if !opts.Overwrite {
			existing, err := e.graph.GetEntityWithoutUpdatingLastRead(ctx, name, target)
			if err != nil {
				return res, err
			}
			if existing != nil {
				res.Skipped = append(res.Skipped, models.Skipped{Name: name, Reason: "already exists in target zone " + target})
				continue
			}
		}
		if _, err := e.graph.SaveEntity(ctx, stripped(*ent, name), target, graph.SaveEntityOptions{SkipZoneValidation: true}); err != nil {
			res.Skipped = append(res.Skipped, models.Skipped{Name: name, Reason: err.Error()})
			continue
		}
		res.Entities = append(res.Entities, name)
	}

	if !opts.SkipRelations && len(res.Entities) > 0 {
		rels, err := e.graph.GetRelationsForEntities(ctx, res.Entities, source)
		if err != nil {
			return res, err
		}
		res.Relations = e.recreate(ctx, rels, source, target, nil)
	}
	e.logger.Info("copied entities", "source", source, "target", target,
		"entities", len(res.Entities), "relations", len(res.Relations), "skipped", len(res.Skipped))
	return res, nil
}

// stripped is the zone-free copy of an entity saved into another zone.
func stripped(ent models.Entity, name string) models.Entity {
	return models.Entity{
		Name:           name,
		EntityType:     ent.EntityType,
		Observations:   ent.Observations,
		RelevanceScore: ent.RelevanceScore,
	}
}

// recreate saves rels with both endpoints re-pointed at target. Endpoints
// that came from source are renamed through renamed. A relation is kept only
// when both endpoints resolve in target; the rest are dropped silently.
func (e *Engine) recreate(ctx context.Context, rels []models.Relation, source, target string, renamed map[string]string) []models.Relation {
	out := []models.Relation{}
	seen := map[string]bool{}
	remap := func(name, zone string) (string, string) {
		if zone == source {
			if n, ok := renamed[name]; ok {
				name = n
			}
		}
		return name, target
	}
	for _, r := range rels {
		nr := models.Relation{RelationType: r.RelationType}
		nr.From, nr.FromZone = remap(r.From, r.FromZone)
		nr.To, nr.ToZone = remap(r.To, r.ToZone)
		id := graph.RelationID(nr)
		if seen[id] {
			continue
		}
		seen[id] = true

		saved, err := e.graph.SaveRelation(ctx, nr, nr.FromZone, nr.ToZone, graph.SaveRelationOptions{
			DisableAutoCreate:  true,
			SkipZoneValidation: true,
		})
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			e.logger.Warn("failed to re-create relation", "from", nr.From, "to", nr.To, "type", nr.RelationType, "err", err)
			continue
		}
		out = append(out, *saved)
	}
	return out
}

// MoveEntitiesBetweenZones copies the named entities and then deletes them
// from source. An entity whose deletion fails stays in both zones and is
// reported as skipped.
func (e *Engine) MoveEntitiesBetweenZones(ctx context.Context, names []string, source, target string, opts CopyOptions) (*models.TransferResult, error) {
	res, err := e.CopyEntitiesBetweenZones(ctx, names, source, target, opts)
	if err != nil {
		return res, err
	}
	moved := res.Entities[:0]
	for _, name := range res.Entities {
		del, err := e.graph.DeleteEntity(ctx, name, res.Source, graph.DeleteEntityOptions{KeepRelations: true})
		if err == nil && !del.Deleted {
			err = errors.New("entity disappeared from source zone")
		}
		if err != nil {
			e.logger.Warn("copied entity could not be removed from source", "entity", name, "zone", res.Source, "err", err)
			res.Skipped = append(res.Skipped, models.Skipped{Name: name, Reason: "copied but not deleted from source: " + err.Error()})
			continue
		}
		moved = append(moved, name)
	}
	res.Entities = moved
	return res, nil
}
