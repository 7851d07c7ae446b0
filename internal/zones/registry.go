// Package zones manages the zone registry: which zones exist, their
// metadata records and the engine partitions backing them.
package zones

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// Options configures a Registry.
type Options struct {
	Prefix string
	// Cache defaults to NewCache().
	Cache  Cache
	Logger *log.Logger
}

// Registry tracks zones and their partitions in the backing engine.
type Registry struct {
	eng    engine.Engine
	layout Layout
	cache  Cache
	logger *log.Logger
	now    func() time.Time
	// pageSize bounds each metadata listing request.
	pageSize int

	mu      sync.Mutex
	ensured map[string]struct{}
}

// zoneDoc is the stored form of a zone metadata record.
type zoneDoc struct {
	Type string `json:"type"`
	models.ZoneMetadata
}

// New creates a registry without touching the engine.
func New(eng engine.Engine, opts Options) *Registry {
	cache := opts.Cache
	if cache == nil {
		cache = NewCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		eng:      eng,
		layout:   Layout{Prefix: opts.Prefix},
		cache:    cache,
		logger:   logger.WithPrefix("zones"),
		now:      func() time.Time { return time.Now().UTC() },
		pageSize: engine.DefaultPageSize,
		ensured:  make(map[string]struct{}),
	}
}

// Open creates a registry and makes sure the default zone exists.
func Open(ctx context.Context, eng engine.Engine, opts Options) (*Registry, error) {
	r := New(eng, opts)
	if err := r.EnsureDefault(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Engine returns the backing engine.
func (r *Registry) Engine() engine.Engine { return r.eng }

// Layout returns the partition naming scheme.
func (r *Registry) Layout() Layout { return r.layout }

// EnsureDefault creates the shared collections and the default zone.
func (r *Registry) EnsureDefault(ctx context.Context) error {
	if err := r.eng.CreateIndex(ctx, r.layout.MetadataIndex(), MetadataMapping); err != nil {
		return fmt.Errorf("create zone metadata index: %w", err)
	}
	if err := r.eng.CreateIndex(ctx, r.layout.RelationIndex(), RelationMapping); err != nil {
		return fmt.Errorf("create relation index: %w", err)
	}
	if err := r.EnsurePartition(ctx, models.DefaultZone); err != nil {
		return err
	}
	meta, err := r.GetZoneMetadata(ctx, models.DefaultZone)
	if err != nil {
		return err
	}
	if meta == nil {
		now := r.now()
		if err := r.putMetadata(ctx, &models.ZoneMetadata{
			Name:         models.DefaultZone,
			Description:  "Default memory zone",
			CreatedAt:    now,
			LastModified: now,
		}); err != nil {
			return err
		}
	}
	r.cache.Add(models.DefaultZone)
	return nil
}

// EnsurePartition creates the entity partition of zone if needed. Partitions
// already ensured by this registry are not checked again.
func (r *Registry) EnsurePartition(ctx context.Context, zone string) error {
	index := r.layout.EntityIndex(zone)
	r.mu.Lock()
	_, ok := r.ensured[index]
	r.mu.Unlock()
	if ok {
		return nil
	}
	if err := r.eng.CreateIndex(ctx, index, EntityMapping); err != nil {
		return fmt.Errorf("create partition for zone %q: %w", zone, err)
	}
	r.mu.Lock()
	r.ensured[index] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *Registry) forgetPartition(zone string) {
	r.mu.Lock()
	delete(r.ensured, r.layout.EntityIndex(zone))
	r.mu.Unlock()
}

// ZoneExists reports whether zone exists. The default zone always does.
func (r *Registry) ZoneExists(ctx context.Context, zone string) (bool, error) {
	if zone == models.DefaultZone || r.cache.Has(zone) {
		return true, nil
	}
	if !validName.MatchString(zone) {
		return false, nil
	}

	meta, err := r.GetZoneMetadata(ctx, zone)
	if err != nil {
		return false, err
	}
	if meta != nil {
		r.cache.Add(zone)
		return true, nil
	}

	ok, err := r.eng.IndexExists(ctx, r.layout.EntityIndex(zone))
	if err != nil {
		return false, fmt.Errorf("check partition of zone %q: %w", zone, err)
	}
	if ok {
		r.cache.Add(zone)
	}
	return ok, nil
}

// RequireZone returns a not-found error naming zone when it does not exist.
func (r *Registry) RequireZone(ctx context.Context, zone string) error {
	ok, err := r.ZoneExists(ctx, zone)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %w: %q", models.ErrValidation, models.ErrZoneNotFound, zone)
	}
	return nil
}

// AddMemoryZone creates a zone with its partition and metadata record.
// Adding an existing zone refreshes its description and config.
func (r *Registry) AddMemoryZone(ctx context.Context, name, description string, config map[string]any) (*models.ZoneMetadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if name == models.DefaultZone {
		return nil, fmt.Errorf("%w: the default zone cannot be created", models.ErrValidation)
	}
	if err := r.EnsurePartition(ctx, name); err != nil {
		return nil, err
	}

	now := r.now()
	meta, err := r.GetZoneMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = &models.ZoneMetadata{Name: name, CreatedAt: now}
	}
	if description == "" {
		description = "Memory zone " + name
	}
	meta.Description = description
	meta.Config = config
	meta.LastModified = now
	if err := r.putMetadata(ctx, meta); err != nil {
		return nil, err
	}
	r.cache.Add(name)
	r.logger.Info("zone added", "zone", name)
	return meta, nil
}

// DeleteMemoryZone removes a zone, its partition, its metadata and every
// relation with an endpoint in it. Steps are best-effort: each failure is
// logged and recorded in the outcome, and later steps still run.
func (r *Registry) DeleteMemoryZone(ctx context.Context, name string) (*models.Outcome, error) {
	if name == models.DefaultZone {
		return nil, fmt.Errorf("%w: the default zone cannot be deleted", models.ErrValidation)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	out := &models.Outcome{}
	step := func(label string, err error) {
		if err != nil && !engine.IsMissing(err) {
			r.logger.Warn("zone delete step failed", "zone", name, "step", label, "err", err)
			out.Record(label, err)
			return
		}
		out.Record(label, nil)
	}

	step("delete partition", r.eng.DeleteIndex(ctx, r.layout.EntityIndex(name)))
	r.forgetPartition(name)

	_, err := r.eng.Delete(ctx, r.layout.MetadataIndex(), name)
	step("delete metadata", err)

	r.cache.Remove(name)
	step("purge cache", nil)

	_, err = r.eng.DeleteByQuery(ctx, r.layout.RelationIndex(), query.Or(
		query.Term{Field: "fromZone", Value: name},
		query.Term{Field: "toZone", Value: name},
	))
	step("delete relations", err)

	r.logger.Info("zone deleted", "zone", name, "failed_steps", len(out.Failed))
	return out, nil
}

// ListMemoryZones returns every zone's metadata, sorted by name. When no
// metadata records exist the entity partitions are enumerated and records
// are backfilled. The existence cache is repopulated from the result.
func (r *Registry) ListMemoryZones(ctx context.Context, reason string) ([]models.ZoneMetadata, error) {
	r.logger.Debug("listing zones", "reason", reason)

	var zones []models.ZoneMetadata
	err := engine.Scan(ctx, r.eng, r.layout.MetadataIndex(), query.Request{
		Query: query.Term{Field: "type", Value: models.TypeZone},
		Sort:  []query.Sort{{Field: "name", Order: query.Asc}},
	}, r.pageSize, func(h engine.Hit) {
		var doc zoneDoc
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			r.logger.Warn("skipping malformed zone record", "id", h.ID, "err", err)
			return
		}
		zones = append(zones, doc.ZoneMetadata)
	})
	if err != nil && !engine.IsMissing(err) {
		return nil, fmt.Errorf("list zone metadata: %w", err)
	}

	if len(zones) == 0 {
		zones, err = r.backfill(ctx)
		if err != nil {
			return nil, err
		}
	}

	names := make([]string, len(zones))
	for i, z := range zones {
		names[i] = z.Name
	}
	r.cache.Reset(names)
	return zones, nil
}

func (r *Registry) backfill(ctx context.Context) ([]models.ZoneMetadata, error) {
	indices, err := r.eng.ListIndices(ctx, r.layout.EntityPrefix())
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	now := r.now()
	var zones []models.ZoneMetadata
	for _, index := range indices {
		zone, ok := r.layout.ZoneFromIndex(index)
		if !ok {
			continue
		}
		meta := models.ZoneMetadata{
			Name:         zone,
			Description:  "Memory zone " + zone,
			CreatedAt:    now,
			LastModified: now,
		}
		if zone == models.DefaultZone {
			meta.Description = "Default memory zone"
		}
		if err := r.putMetadata(ctx, &meta); err != nil {
			r.logger.Warn("metadata backfill failed", "zone", zone, "err", err)
		}
		zones = append(zones, meta)
	}
	r.logger.Info("zone metadata backfilled", "zones", len(zones))
	return zones, nil
}

// GetZoneMetadata returns the metadata record of name, or nil when absent.
func (r *Registry) GetZoneMetadata(ctx context.Context, name string) (*models.ZoneMetadata, error) {
	raw, err := r.eng.Get(ctx, r.layout.MetadataIndex(), name)
	if engine.IsMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get zone metadata %q: %w", name, err)
	}
	var doc zoneDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode zone metadata %q: %w", name, err)
	}
	return &doc.ZoneMetadata, nil
}

// UpdateZoneDescriptions sets both descriptions of a zone, creating the zone
// first when it does not exist.
func (r *Registry) UpdateZoneDescriptions(ctx context.Context, name, description, shortDescription string) (*models.ZoneMetadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ok, err := r.ZoneExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := r.AddMemoryZone(ctx, name, description, nil); err != nil {
			return nil, err
		}
	}

	meta, err := r.GetZoneMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if meta == nil {
		meta = &models.ZoneMetadata{Name: name, CreatedAt: now}
	}
	meta.Description = description
	meta.ShortDescription = shortDescription
	meta.LastModified = now
	if err := r.putMetadata(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *Registry) putMetadata(ctx context.Context, meta *models.ZoneMetadata) error {
	doc := zoneDoc{Type: models.TypeZone, ZoneMetadata: *meta}
	if err := r.eng.Index(ctx, r.layout.MetadataIndex(), meta.Name, doc); err != nil {
		return fmt.Errorf("store zone metadata %q: %w", meta.Name, err)
	}
	return nil
}

// IsZoneNotFound reports whether err is a missing-zone error.
func IsZoneNotFound(err error) bool {
	return errors.Is(err, models.ErrZoneNotFound)
}
