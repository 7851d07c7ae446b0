package zones

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
)

// DefaultPrefix is the index name prefix used when none is configured.
const DefaultPrefix = "knowledge-graph"

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateName checks that name can be used for a new zone.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: zone name is required", models.ErrValidation)
	case !validName.MatchString(name):
		return fmt.Errorf("%w: invalid zone name %q: use lowercase letters, digits, '-' and '_'", models.ErrValidation, name)
	}
	return nil
}

// Layout maps zones to engine partitions.
type Layout struct {
	Prefix string
}

func (l Layout) prefix() string {
	if l.Prefix == "" {
		return DefaultPrefix
	}
	return l.Prefix
}

// EntityPrefix is the common prefix of every entity partition.
func (l Layout) EntityPrefix() string {
	return l.prefix() + "-entities-"
}

// EntityIndex is the partition holding the entities of zone.
func (l Layout) EntityIndex(zone string) string {
	return l.EntityPrefix() + zone
}

// RelationIndex is the single collection holding all relations.
func (l Layout) RelationIndex() string {
	return l.prefix() + "-relations"
}

// MetadataIndex holds one record per zone.
func (l Layout) MetadataIndex() string {
	return l.prefix() + "-zones"
}

// ZoneFromIndex recovers the zone name from an entity partition name.
func (l Layout) ZoneFromIndex(index string) (string, bool) {
	zone, ok := strings.CutPrefix(index, l.EntityPrefix())
	if !ok || zone == "" {
		return "", false
	}
	return zone, true
}

// EntityMapping is the field mapping of entity partitions.
var EntityMapping = engine.Mapping{
	"type":           engine.FieldKeyword,
	"zone":           engine.FieldKeyword,
	"name":           engine.FieldTextKeyword,
	"entityType":     engine.FieldKeyword,
	"observations":   engine.FieldText,
	"relevanceScore": engine.FieldFloat,
	"readCount":      engine.FieldLong,
	"lastRead":       engine.FieldDate,
	"lastWrite":      engine.FieldDate,
}

// RelationMapping is the field mapping of the relation collection.
var RelationMapping = engine.Mapping{
	"type":         engine.FieldKeyword,
	"from":         engine.FieldKeyword,
	"fromZone":     engine.FieldKeyword,
	"to":           engine.FieldKeyword,
	"toZone":       engine.FieldKeyword,
	"relationType": engine.FieldKeyword,
}

// MetadataMapping is the field mapping of the zone metadata collection.
var MetadataMapping = engine.Mapping{
	"type":             engine.FieldKeyword,
	"name":             engine.FieldKeyword,
	"description":      engine.FieldText,
	"shortDescription": engine.FieldText,
	"createdAt":        engine.FieldDate,
	"lastModified":     engine.FieldDate,
	"config":           engine.FieldObject,
}
