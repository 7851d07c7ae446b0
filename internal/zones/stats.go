package zones

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

const maxEntityTypes = 100

// ZoneStats counts the entities and relations of a zone.
func (r *Registry) ZoneStats(ctx context.Context, name string) (*models.ZoneStats, error) {
	if err := r.RequireZone(ctx, name); err != nil {
		return nil, err
	}

	stats := &models.ZoneStats{Zone: name, EntityTypes: map[string]int64{}}
	entities := r.layout.EntityIndex(name)
	relations := r.layout.RelationIndex()
	from := query.Term{Field: "fromZone", Value: name}
	to := query.Term{Field: "toZone", Value: name}

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int, index string, q query.Query) {
		g.Go(func() error {
			n, err := r.eng.Count(gctx, index, q)
			if engine.IsMissing(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("count %s: %w", index, err)
			}
			*dst = n
			return nil
		})
	}
	count(&stats.EntityCount, entities, query.Term{Field: "type", Value: models.TypeEntity})
	count(&stats.RelationCount, relations, query.And(from, to))
	count(&stats.OutgoingCrossZone, relations, query.Bool{Filter: []query.Query{from}, MustNot: []query.Query{to}})
	count(&stats.IncomingCrossZone, relations, query.Bool{Filter: []query.Query{to}, MustNot: []query.Query{from}})

	var buckets []engine.Bucket
	g.Go(func() error {
		var err error
		buckets, err = r.eng.TermsAggregation(gctx, entities, "entityType", query.MatchAll{}, maxEntityTypes)
		if engine.IsMissing(err) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("zone stats %q: %w", name, err)
	}
	for _, b := range buckets {
		stats.EntityTypes[b.Key] = b.Count
	}
	return stats, nil
}
