package models

import "time"

// DefaultZone is the zone every unqualified operation targets. It always
// exists and cannot be deleted.
const DefaultZone = "default"

// Document type tags stored alongside every record in the backing engine.
const (
	TypeEntity   = "entity"
	TypeRelation = "relation"
	TypeZone     = "zone"
)

// Relevance score bounds and default.
const (
	MinRelevance     = 0.01
	MaxRelevance     = 25.0
	DefaultRelevance = 1.0
)

// PlaceholderEntityType marks entities created implicitly as relation endpoints.
const PlaceholderEntityType = "unknown"

// Entity represents a node in the knowledge graph. Its identity is the
// (Zone, Name) pair.
type Entity struct {
	Type           string    `json:"type,omitempty"`
	Name           string    `json:"name"`
	EntityType     string    `json:"entityType"`
	Observations   []string  `json:"observations"`
	Zone           string    `json:"zone,omitempty"`
	RelevanceScore float64   `json:"relevanceScore,omitempty"`
	ReadCount      int64     `json:"readCount"`
	LastRead       time.Time `json:"lastRead"`
	LastWrite      time.Time `json:"lastWrite"`
}

// Relation represents a directed, typed edge between two entities that may
// live in different zones.
type Relation struct {
	Type         string `json:"type,omitempty"`
	From         string `json:"from"`
	FromZone     string `json:"fromZone"`
	To           string `json:"to"`
	ToZone       string `json:"toZone"`
	RelationType string `json:"relationType"`
}

// ZoneMetadata is the descriptive record kept for each zone.
type ZoneMetadata struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ShortDescription string         `json:"shortDescription,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	LastModified     time.Time      `json:"lastModified"`
	Config           map[string]any `json:"config,omitempty"`
}

// ZoneStats summarises the contents of a zone.
type ZoneStats struct {
	Zone              string           `json:"zone"`
	EntityCount       int              `json:"entityCount"`
	RelationCount     int              `json:"relationCount"`
	OutgoingCrossZone int              `json:"outgoingCrossZone"`
	IncomingCrossZone int              `json:"incomingCrossZone"`
	EntityTypes       map[string]int64 `json:"entityTypes"`
}

// Graph is a set of entities together with the relations between them.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}
