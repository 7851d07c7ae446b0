package transfer

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
)

// ConflictPolicy decides what a merge does with an entity whose name is
// already taken in the target zone.
type ConflictPolicy string

const (
	ConflictSkip      ConflictPolicy = "skip"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictRename    ConflictPolicy = "rename"
)

// ParseConflictPolicy validates a policy name. Empty means skip.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case "":
		return ConflictSkip, nil
	case ConflictSkip, ConflictOverwrite, ConflictRename:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown conflict policy %q (want skip, overwrite or rename)", models.ErrValidation, s)
	}
}

// MergeOptions controls MergeZones.
type MergeOptions struct {
	// DeleteSourceZones removes each source zone after it merged cleanly.
	DeleteSourceZones  bool
	OverwriteConflicts ConflictPolicy
}

// MergeZones merges every entity of each source zone into target. Sources
// are merged independently; the failure of one is recorded and does not
// stop the others.
func (e *Engine) MergeZones(ctx context.Context, sources []string, target string, opts MergeOptions) (*models.MergeResult, error) {
	target = zoneOrDefault(target)
	policy, err := ParseConflictPolicy(string(opts.OverwriteConflicts))
	if err != nil {
		return nil, err
	}
	sources = uniqueNames(sources)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: at least one source zone is required", models.ErrValidation)
	}
	if slices.Contains(sources, target) {
		return nil, fmt.Errorf("%w: target zone %q is also a source", models.ErrValidation, target)
	}
	if err := e.zones.RequireZone(ctx, target); err != nil {
		return nil, fmt.Errorf("target zone: %w", err)
	}

	res := &models.MergeResult{Target: target, Sources: []models.ZoneMergeResult{}, Failed: []models.Skipped{}}
	for _, source := range sources {
		zr, err := e.mergeOne(ctx, source, target, policy)
		if err == nil && opts.DeleteSourceZones {
			var out *models.Outcome
			if out, err = e.zones.DeleteMemoryZone(ctx, source); err == nil && !out.OK() {
				err = fmt.Errorf("delete source zone: %s", out.Failed[0].Reason)
			}
			zr.SourceDeleted = err == nil
		}
		if err != nil {
			e.logger.Warn("zone merge failed", "source", source, "target", target, "err", err)
			zr.Error = err.Error()
			res.Failed = append(res.Failed, models.Skipped{Name: source, Reason: err.Error()})
		}
		res.Sources = append(res.Sources, *zr)
	}
	return res, nil
}

func (e *Engine) mergeOne(ctx context.Context, source, target string, policy ConflictPolicy) (*models.ZoneMergeResult, error) {
	zr := &models.ZoneMergeResult{
		Source:    source,
		Entities:  []string{},
		Relations: []models.Relation{},
		Skipped:   []models.Skipped{},
	}
	if err := e.zones.RequireZone(ctx, source); err != nil {
		return zr, err
	}
	entities, err := e.graph.ListEntities(ctx, source)
	if err != nil {
		return zr, err
	}

	if policy != ConflictRename {
		names := make([]string, len(entities))
		for i, ent := range entities {
			names[i] = ent.Name
		}
		tr, err := e.CopyEntitiesBetweenZones(ctx, names, source, target, CopyOptions{Overwrite: policy == ConflictOverwrite})
		if tr != nil {
			zr.Entities, zr.Relations, zr.Skipped = tr.Entities, tr.Relations, tr.Skipped
		}
		return zr, err
	}

	renamed, err := e.planRenames(ctx, entities, source, target)
	if err != nil {
		return zr, err
	}
	for _, ent := range entities {
		name := ent.Name
		if n, ok := renamed[name]; ok {
			name = n
		}
		if _, err := e.graph.SaveEntity(ctx, stripped(ent, name), target, graph.SaveEntityOptions{SkipZoneValidation: true}); err != nil {
			zr.Skipped = append(zr.Skipped, models.Skipped{Name: ent.Name, Reason: err.Error()})
			continue
		}
		zr.Entities = append(zr.Entities, name)
	}
	if len(renamed) > 0 {
		zr.Renamed = renamed
	}

	rels, err := e.graph.ListRelations(ctx, source)
	if err != nil {
		return zr, err
	}
	zr.Relations = e.recreate(ctx, rels, source, target, renamed)
	e.logger.Info("merged zone", "source", source, "target", target,
		"entities", len(zr.Entities), "renamed", len(renamed), "relations", len(zr.Relations))
	return zr, nil
}

// planRenames picks a new name for every source entity whose name is taken
// in target: "<name>_from_<source>", numbered from 2 while still taken.
func (e *Engine) planRenames(ctx context.Context, entities []models.Entity, source, target string) (map[string]string, error) {
	taken := make(map[string]bool, len(entities))
	for _, ent := range entities {
		taken[ent.Name] = true
	}
	inTarget := func(name string) (bool, error) {
		existing, err := e.graph.GetEntityWithoutUpdatingLastRead(ctx, name, target)
		return existing != nil, err
	}

	renamed := map[string]string{}
	for _, ent := range entities {
		conflict, err := inTarget(ent.Name)
		if err != nil {
			return nil, err
		}
		if !conflict {
			continue
		}
		base := ent.Name + "_from_" + source
		candidate := base
		for n := 2; ; n++ {
			used, err := inTarget(candidate)
			if err != nil {
				return nil, err
			}
			if !used && !taken[candidate] {
				break
			}
			candidate = base + "_" + strconv.Itoa(n)
		}
		taken[candidate] = true
		renamed[ent.Name] = candidate
	}
	return renamed, nil
}
