package portable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
)

// ExportOptions controls Export.
type ExportOptions struct {
	// Zones restricts the export; empty exports every zone.
	Zones []string
}

// Export writes zones, then entities, then relations to w. A relation is
// exported once even when both of its zones are exported.
func Export(ctx context.Context, c *graph.Client, w io.Writer, opts ExportOptions) (*models.ExportResult, error) {
	all, err := c.Zones().ListMemoryZones(ctx, "export")
	if err != nil {
		return nil, err
	}
	selected := all
	if len(opts.Zones) > 0 {
		selected = selected[:0:0]
		for _, name := range opts.Zones {
			i := slices.IndexFunc(all, func(z models.ZoneMetadata) bool { return z.Name == name })
			if i < 0 {
				return nil, fmt.Errorf("%w: %w: %q", models.ErrValidation, models.ErrZoneNotFound, name)
			}
			selected = append(selected, all[i])
		}
	}

	enc := json.NewEncoder(w)
	res := &models.ExportResult{}
	for _, z := range selected {
		if err := enc.Encode(zoneRecord{Type: RecordZone, ZoneMetadata: z}); err != nil {
			return res, fmt.Errorf("write zone %q: %w", z.Name, err)
		}
		res.Zones++
	}

	for _, z := range selected {
		entities, err := c.ListEntities(ctx, z.Name)
		if err != nil {
			return res, err
		}
		for _, e := range entities {
			e.Type, e.Zone = RecordEntity, z.Name
			if err := enc.Encode(e); err != nil {
				return res, fmt.Errorf("write entity %q: %w", e.Name, err)
			}
			res.Entities++
		}
	}

	seen := map[string]bool{}
	for _, z := range selected {
		rels, err := c.ListRelations(ctx, z.Name)
		if err != nil {
			return res, err
		}
		for _, r := range rels {
			id := graph.RelationID(r)
			if seen[id] {
				continue
			}
			seen[id] = true
			r.Type = RecordRelation
			if err := enc.Encode(r); err != nil {
				return res, fmt.Errorf("write relation %s -> %s: %w", r.From, r.To, err)
			}
			res.Relations++
		}
	}
	return res, nil
}
