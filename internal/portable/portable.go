// Package portable reads and writes knowledge graphs as JSON Lines record
// streams. Every record carries a "type" tag ("zone", "entity" or
// "relation") and the zone or zones it belongs to.
package portable

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
)

// Record type tags.
const (
	RecordZone     = models.TypeZone
	RecordEntity   = models.TypeEntity
	RecordRelation = models.TypeRelation
)

type zoneRecord struct {
	Type string `json:"type"`
	models.ZoneMetadata
}

type typeTag struct {
	Type string `json:"type"`
}

// decodeLine splits a raw line into one of the record kinds.
func decodeLine(line []byte) (kind string, rec any, err error) {
	var tag typeTag
	if err := json.Unmarshal(line, &tag); err != nil {
		return "", nil, fmt.Errorf("malformed record: %w", err)
	}
	switch tag.Type {
	case RecordZone:
		var z zoneRecord
		if err := json.Unmarshal(line, &z); err != nil {
			return tag.Type, nil, fmt.Errorf("malformed zone: %w", err)
		}
		return tag.Type, &z.ZoneMetadata, nil
	case RecordEntity:
		var e models.Entity
		if err := json.Unmarshal(line, &e); err != nil {
			return tag.Type, nil, fmt.Errorf("malformed entity: %w", err)
		}
		return tag.Type, &e, nil
	case RecordRelation:
		var r models.Relation
		if err := json.Unmarshal(line, &r); err != nil {
			return tag.Type, nil, fmt.Errorf("malformed relation: %w", err)
		}
		return tag.Type, &r, nil
	case "":
		return "", nil, fmt.Errorf("record has no type")
	default:
		return tag.Type, nil, fmt.Errorf("unknown record type %q", tag.Type)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
