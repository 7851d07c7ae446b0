// Package graph is the zone-aware knowledge graph client: entity and
// relation storage, traversal and search over the backing engine.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/assistant"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/wagnerlima/memory-cloud/zonegraph"))

// EntityID is the document id of the entity (zone, name).
func EntityID(zone, name string) string {
	return uuid.NewSHA1(idNamespace, []byte(models.TypeEntity+"\x00"+zone+"\x00"+name)).String()
}

// RelationID is the document id of a relation, derived from its full tuple.
func RelationID(r models.Relation) string {
	key := strings.Join([]string{models.TypeRelation, r.FromZone, r.From, r.RelationType, r.ToZone, r.To}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Options configures a Client.
type Options struct {
	// Assistant is optional; without it UserSearch never filters.
	Assistant assistant.Scorer
	Logger    *log.Logger
}

// Client reads and writes the knowledge graph.
type Client struct {
	eng       engine.Engine
	zones     *zones.Registry
	layout    zones.Layout
	assistant assistant.Scorer
	logger    *log.Logger
	now       func() time.Time
	pageSize  int
}

// New creates a client on top of a zone registry.
func New(reg *zones.Registry, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		eng:       reg.Engine(),
		zones:     reg,
		layout:    reg.Layout(),
		assistant: opts.Assistant,
		logger:    logger.WithPrefix("graph"),
		now:       func() time.Time { return time.Now().UTC() },
		pageSize:  engine.DefaultPageSize,
	}
}

// Zones returns the zone registry.
func (c *Client) Zones() *zones.Registry { return c.zones }

func zoneOrDefault(zone string) string {
	if zone = strings.TrimSpace(zone); zone == "" {
		return models.DefaultZone
	}
	return zone
}

func decodeEntity(raw json.RawMessage) (*models.Entity, error) {
	var e models.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	if e.RelevanceScore <= 0 {
		e.RelevanceScore = models.DefaultRelevance
	}
	if e.Observations == nil {
		e.Observations = []string{}
	}
	return &e, nil
}

func decodeRelation(raw json.RawMessage) (*models.Relation, error) {
	var r models.Relation
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode relation: %w", err)
	}
	return &r, nil
}

func clampRelevance(s float64) float64 {
	return min(max(s, models.MinRelevance), models.MaxRelevance)
}
