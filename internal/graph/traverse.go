package graph

import (
	"context"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

type nodeKey struct{ zone, name string }

// GetRelatedEntities walks relations in both directions from the root
// entity, up to maxDepth hops, following relations into other zones. Each
// entity and relation appears once in the result.
func (c *Client) GetRelatedEntities(ctx context.Context, name string, maxDepth int, zone string) (*models.Graph, error) {
	zone = zoneOrDefault(zone)
	if maxDepth < 1 {
		maxDepth = 1
	}
	g := &models.Graph{Entities: []models.Entity{}, Relations: []models.Relation{}}

	root, _, err := c.lookup(ctx, name, zone)
	if err != nil || root == nil {
		return g, err
	}
	g.Entities = append(g.Entities, *root)

	visited := map[nodeKey]bool{{zone, root.Name}: true}
	seenRel := map[string]bool{}
	frontier := []nodeKey{{zone, root.Name}}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []nodeKey
		for _, n := range frontier {
			rels, err := c.searchRelations(ctx, query.Or(
				query.And(query.Term{Field: "fromZone", Value: n.zone}, query.Term{Field: "from", Value: n.name}),
				query.And(query.Term{Field: "toZone", Value: n.zone}, query.Term{Field: "to", Value: n.name}),
			))
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				id := RelationID(r)
				if seenRel[id] {
					continue
				}
				seenRel[id] = true
				g.Relations = append(g.Relations, r)

				other := nodeKey{r.ToZone, r.To}
				if other == n {
					other = nodeKey{r.FromZone, r.From}
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				e, _, err := c.lookup(ctx, other.name, other.zone)
				if err != nil {
					return nil, err
				}
				if e == nil {
					continue
				}
				g.Entities = append(g.Entities, *e)
				next = append(next, other)
			}
		}
		frontier = next
	}
	return g, nil
}
