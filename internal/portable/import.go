package portable

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

const (
	defaultBatchSize = 500
	maxLineSize      = 16 << 20
)

// ImportOptions controls Import.
type ImportOptions struct {
	// TargetZone, when set, replaces every zone named in the stream.
	TargetZone string
	BatchSize  int
}

type entityLine struct {
	line   int
	entity models.Entity
}

type relationLine struct {
	line     int
	relation models.Relation
}

type batch struct {
	zones     map[string]*models.ZoneMetadata
	implied   map[string]bool
	entities  map[string][]entityLine
	relations []relationLine
}

// Import reads a record stream and writes it into the graph: zones first,
// then entities in bulk with their read statistics intact, then relations.
// Bad records are reported in the result; only a failure to read r is
// returned as an error.
func Import(ctx context.Context, c *graph.Client, r io.Reader, opts ImportOptions) (*models.ImportResult, error) {
	res := &models.ImportResult{Failures: []models.ImportFailure{}}
	target := strings.TrimSpace(opts.TargetZone)
	if target != "" {
		if err := zones.ValidateName(target); err != nil {
			return nil, err
		}
	}

	b, err := readBatch(r, target, res)
	if err != nil {
		return res, err
	}

	reg := c.Zones()
	for _, name := range sortedKeys(b.implied) {
		if err := importZone(ctx, reg, name, b.zones[name], res); err != nil {
			for _, e := range b.entities[name] {
				res.Failures = append(res.Failures, models.ImportFailure{
					Line: e.line, Type: RecordEntity, Name: e.entity.Name, Reason: "zone unavailable: " + err.Error(),
				})
			}
			delete(b.entities, name)
		}
	}

	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for _, zone := range sortedKeys(b.entities) {
		importEntities(ctx, reg, zone, b.entities[zone], size, res)
	}

	for _, rl := range b.relations {
		rel := rl.relation
		if _, err := c.SaveRelation(ctx, rel, rel.FromZone, rel.ToZone, graph.SaveRelationOptions{DisableAutoCreate: true}); err != nil {
			res.Failures = append(res.Failures, models.ImportFailure{
				Line: rl.line, Type: RecordRelation, Name: rel.From + " -> " + rel.To, Reason: err.Error(),
			})
			continue
		}
		res.Relations++
	}
	return res, nil
}

func readBatch(r io.Reader, target string, res *models.ImportResult) (*batch, error) {
	b := &batch{
		zones:    map[string]*models.ZoneMetadata{},
		implied:  map[string]bool{},
		entities: map[string][]entityLine{},
	}
	zoneFor := func(z string) string {
		if target != "" {
			return target
		}
		if z = strings.TrimSpace(z); z == "" {
			return models.DefaultZone
		}
		return z
	}
	fail := func(line int, kind, name string, err error) {
		res.Failures = append(res.Failures, models.ImportFailure{Line: line, Type: kind, Name: name, Reason: err.Error()})
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		kind, rec, err := decodeLine(line)
		if err != nil {
			fail(n, kind, "", err)
			continue
		}
		switch v := rec.(type) {
		case *models.ZoneMetadata:
			v.Name = zoneFor(v.Name)
			if err := zones.ValidateName(v.Name); err != nil {
				fail(n, kind, v.Name, err)
				continue
			}
			if _, dup := b.zones[v.Name]; !dup {
				b.zones[v.Name] = v
			}
			b.implied[v.Name] = true
		case *models.Entity:
			v.Name = strings.TrimSpace(v.Name)
			v.Zone = zoneFor(v.Zone)
			if v.Name == "" {
				fail(n, kind, "", fmt.Errorf("%w: entity name is required", models.ErrValidation))
				continue
			}
			if err := zones.ValidateName(v.Zone); err != nil {
				fail(n, kind, v.Name, err)
				continue
			}
			b.implied[v.Zone] = true
			b.entities[v.Zone] = append(b.entities[v.Zone], entityLine{line: n, entity: *v})
		case *models.Relation:
			v.FromZone, v.ToZone = zoneFor(v.FromZone), zoneFor(v.ToZone)
			if strings.TrimSpace(v.From) == "" || strings.TrimSpace(v.To) == "" || strings.TrimSpace(v.RelationType) == "" {
				fail(n, kind, v.From+" -> "+v.To, fmt.Errorf("%w: relation needs from, to and relationType", models.ErrValidation))
				continue
			}
			b.implied[v.FromZone] = true
			b.implied[v.ToZone] = true
			b.relations = append(b.relations, relationLine{line: n, relation: *v})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read record stream: %w", err)
	}
	return b, nil
}

// importZone creates name when missing, using the streamed metadata if any.
func importZone(ctx context.Context, reg *zones.Registry, name string, meta *models.ZoneMetadata, res *models.ImportResult) error {
	ok, err := reg.ZoneExists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	var description string
	var config map[string]any
	if meta != nil {
		description, config = meta.Description, meta.Config
	}
	if _, err := reg.AddMemoryZone(ctx, name, description, config); err != nil {
		return err
	}
	if meta != nil && meta.ShortDescription != "" {
		if _, err := reg.UpdateZoneDescriptions(ctx, name, description, meta.ShortDescription); err != nil {
			return err
		}
	}
	res.Zones++
	return nil
}

func importEntities(ctx context.Context, reg *zones.Registry, zone string, lines []entityLine, size int, res *models.ImportResult) {
	if err := reg.EnsurePartition(ctx, zone); err != nil {
		for _, l := range lines {
			res.Failures = append(res.Failures, models.ImportFailure{Line: l.line, Type: RecordEntity, Name: l.entity.Name, Reason: err.Error()})
		}
		return
	}
	index := reg.Layout().EntityIndex(zone)
	now := time.Now().UTC()

	for start := 0; start < len(lines); start += size {
		chunk := lines[start:min(start+size, len(lines))]
		items := make([]engine.BulkItem, len(chunk))
		byID := make(map[string]entityLine, len(chunk))
		for i, l := range chunk {
			e := normalize(l.entity, zone, now)
			id := graph.EntityID(zone, e.Name)
			items[i] = engine.BulkItem{ID: id, Source: e}
			byID[id] = l
		}
		out, err := reg.Engine().Bulk(ctx, index, items)
		if err != nil {
			for _, l := range chunk {
				res.Failures = append(res.Failures, models.ImportFailure{Line: l.line, Type: RecordEntity, Name: l.entity.Name, Reason: err.Error()})
			}
			continue
		}
		res.Entities += out.Indexed
		for _, f := range out.Failures {
			l := byID[f.ID]
			res.Failures = append(res.Failures, models.ImportFailure{Line: l.line, Type: RecordEntity, Name: l.entity.Name, Reason: f.Reason})
		}
	}
}

// normalize fills what a stored entity must carry, keeping every value the
// stream supplied.
func normalize(e models.Entity, zone string, now time.Time) models.Entity {
	e.Type, e.Zone = models.TypeEntity, zone
	if e.Observations == nil {
		e.Observations = []string{}
	}
	if e.RelevanceScore <= 0 {
		e.RelevanceScore = models.DefaultRelevance
	}
	e.RelevanceScore = min(max(e.RelevanceScore, models.MinRelevance), models.MaxRelevance)
	if e.LastWrite.IsZero() {
		e.LastWrite = now
	}
	if e.LastRead.IsZero() {
		e.LastRead = e.LastWrite
	}
	return e
}
