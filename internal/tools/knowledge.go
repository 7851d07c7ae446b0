package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/session"
)

// KnowledgeTools holds references needed by knowledge graph tool handlers.
type KnowledgeTools struct {
	Graph   *graph.Client
	Session *session.Session
}

// --- Input types ---

type SaveEntitiesInput struct {
	Entities []EntityInput `json:"entities" jsonschema:"Array of entities to save"`
	Zone     string        `json:"zone,omitempty" jsonschema:"Target zone (defaults to the current zone)"`
}

type EntityInput struct {
	Name           string   `json:"name" jsonschema:"Entity name"`
	EntityType     string   `json:"entity_type" jsonschema:"Entity type (e.g., person, technology, concept)"`
	Observations   []string `json:"observations,omitempty" jsonschema:"Observations about the entity; replaces existing ones"`
	RelevanceScore float64  `json:"relevance_score,omitempty" jsonschema:"Initial relevance between 0.01 and 25"`
}

type EntityNameInput struct {
	Name string `json:"name" jsonschema:"Entity name"`
	Zone string `json:"zone,omitempty" jsonschema:"Zone (defaults to the current zone)"`
}

type DeleteEntitiesInput struct {
	Names         []string `json:"names" jsonschema:"Entity names to delete"`
	Zone          string   `json:"zone,omitempty" jsonschema:"Zone (defaults to the current zone)"`
	KeepRelations bool     `json:"keep_relations,omitempty" jsonschema:"Keep relations inside the zone; cross-zone relations are always removed"`
}

type AddObservationsInput struct {
	Observations []ObservationInput `json:"observations" jsonschema:"Array of observations to add"`
	Zone         string             `json:"zone,omitempty" jsonschema:"Zone (defaults to the current zone)"`
}

type ObservationInput struct {
	EntityName string   `json:"entity_name" jsonschema:"Name of the entity"`
	Contents   []string `json:"contents" jsonschema:"Observation texts to add"`
}

type MarkImportantInput struct {
	Name      string `json:"name" jsonschema:"Entity name"`
	Important bool   `json:"important" jsonschema:"true raises relevance tenfold, false lowers it tenfold"`
	Zone      string `json:"zone,omitempty" jsonschema:"Zone (defaults to the current zone)"`
}

type SaveRelationsInput struct {
	Relations         []RelationInput `json:"relations" jsonschema:"Array of relations to save"`
	Zone              string          `json:"zone,omitempty" jsonschema:"Zone of endpoints without an explicit zone (defaults to the current zone)"`
	DisableAutoCreate bool            `json:"disable_auto_create,omitempty" jsonschema:"Fail instead of creating missing endpoint entities"`
}

type RelationInput struct {
	From         string `json:"from" jsonschema:"Source entity name"`
	To           string `json:"to" jsonschema:"Target entity name"`
	RelationType string `json:"relation_type" jsonschema:"Relation type in active voice (e.g., uses, depends_on, manages)"`
	FromZone     string `json:"from_zone,omitempty" jsonschema:"Zone of the source entity"`
	ToZone       string `json:"to_zone,omitempty" jsonschema:"Zone of the target entity"`
}

type DeleteRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Array of relations to delete"`
	Zone      string          `json:"zone,omitempty" jsonschema:"Zone of endpoints without an explicit zone (defaults to the current zone)"`
}

type SearchNodesInput struct {
	Query       string   `json:"query" jsonschema:"Search text; '*' lists everything, a single word matches names, AND/OR/NOT and ~ enable query syntax"`
	EntityTypes []string `json:"entity_types,omitempty" jsonschema:"Only return entities of these types"`
	Limit       int      `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
	Offset      int      `json:"offset,omitempty" jsonschema:"Number of results to skip"`
	SortBy      string   `json:"sort_by,omitempty" jsonschema:"relevance, recent or importance"`
	Zone        string   `json:"zone,omitempty" jsonschema:"Zone to search (defaults to the current zone)"`
}

type UserSearchInput struct {
	Query             string   `json:"query" jsonschema:"Search text"`
	EntityTypes       []string `json:"entity_types,omitempty" jsonschema:"Only return entities of these types"`
	Limit             int      `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
	SortBy            string   `json:"sort_by,omitempty" jsonschema:"relevance, recent or importance"`
	Zone              string   `json:"zone,omitempty" jsonschema:"Zone to search (defaults to the current zone)"`
	InformationNeeded string   `json:"information_needed,omitempty" jsonschema:"What the user is trying to find out; enables relevance filtering"`
	Reason            string   `json:"reason,omitempty" jsonschema:"Why the user needs it"`
}

type RelatedEntitiesInput struct {
	Name     string `json:"name" jsonschema:"Entity to start from"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"Number of hops to follow (default 1)"`
	Zone     string `json:"zone,omitempty" jsonschema:"Zone of the start entity (defaults to the current zone)"`
}

type RelationsForEntitiesInput struct {
	Names []string `json:"names" jsonschema:"Entity names"`
	Zone  string   `json:"zone,omitempty" jsonschema:"Zone of the entities (defaults to the current zone)"`
}

type RecentEntitiesInput struct {
	Limit               int    `json:"limit,omitempty" jsonschema:"Maximum number of entities (default 10)"`
	IncludeObservations bool   `json:"include_observations,omitempty" jsonschema:"Include observations in the result"`
	Zone                string `json:"zone,omitempty" jsonschema:"Zone (defaults to the current zone)"`
}

func (in SearchNodesInput) request(zone string) query.SearchRequest {
	return query.SearchRequest{
		Query:       in.Query,
		EntityTypes: in.EntityTypes,
		Limit:       in.Limit,
		Offset:      in.Offset,
		SortBy:      query.ParseSortBy(in.SortBy),
		Zone:        zone,
	}
}

// --- Handlers ---

func (t *KnowledgeTools) SaveEntities(ctx context.Context, _ *mcp.CallToolRequest, input SaveEntitiesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Entities) == 0 {
		return toolError("At least one entity is required"), nil, nil
	}
	zone := t.Session.Resolve(input.Zone)
	saved := make([]*models.Entity, 0, len(input.Entities))
	for _, e := range input.Entities {
		ent, err := t.Graph.SaveEntity(ctx, models.Entity{
			Name:           e.Name,
			EntityType:     e.EntityType,
			Observations:   e.Observations,
			RelevanceScore: e.RelevanceScore,
		}, zone, graph.SaveEntityOptions{})
		if err != nil {
			return toolFailure(fmt.Sprintf("save entity %q", e.Name), err), nil, nil
		}
		saved = append(saved, ent)
	}
	return toolJSON(saved)
}

func (t *KnowledgeTools) GetEntity(ctx context.Context, _ *mcp.CallToolRequest, input EntityNameInput) (*mcp.CallToolResult, any, error) {
	zone := t.Session.Resolve(input.Zone)
	ent, err := t.Graph.GetEntity(ctx, input.Name, zone)
	if err != nil {
		return toolFailure("get entity", err), nil, nil
	}
	if ent == nil {
		return toolError("Entity %q not found in zone %q", input.Name, zone), nil, nil
	}
	return toolJSON(ent)
}

func (t *KnowledgeTools) DeleteEntities(ctx context.Context, _ *mcp.CallToolRequest, input DeleteEntitiesInput) (*mcp.CallToolResult, any, error) {
	zone := t.Session.Resolve(input.Zone)
	results := make(map[string]*graph.DeleteResult, len(input.Names))
	for _, name := range input.Names {
		res, err := t.Graph.DeleteEntity(ctx, name, zone, graph.DeleteEntityOptions{KeepRelations: input.KeepRelations})
		if err != nil {
			return toolFailure(fmt.Sprintf("delete entity %q", name), err), nil, nil
		}
		results[name] = res
	}
	return toolJSON(results)
}

func (t *KnowledgeTools) AddObservations(ctx context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	zone := t.Session.Resolve(input.Zone)
	var updated []*models.Entity
	for _, obs := range input.Observations {
		ent, err := t.Graph.AddObservations(ctx, obs.EntityName, obs.Contents, zone)
		if err != nil {
			return toolFailure(fmt.Sprintf("add observations for %q", obs.EntityName), err), nil, nil
		}
		updated = append(updated, ent)
	}
	return toolJSON(updated)
}

func (t *KnowledgeTools) MarkImportant(ctx context.Context, _ *mcp.CallToolRequest, input MarkImportantInput) (*mcp.CallToolResult, any, error) {
	ent, err := t.Graph.MarkImportant(ctx, input.Name, input.Important, t.Session.Resolve(input.Zone))
	if err != nil {
		return toolFailure("mark entity", err), nil, nil
	}
	return toolJSON(ent)
}

func (t *KnowledgeTools) SaveRelations(ctx context.Context, _ *mcp.CallToolRequest, input SaveRelationsInput) (*mcp.CallToolResult, any, error) {
	zone := t.Session.Resolve(input.Zone)
	saved := make([]*models.Relation, 0, len(input.Relations))
	for _, r := range input.Relations {
		rel, err := t.Graph.SaveRelation(ctx, models.Relation{
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		}, orZone(r.FromZone, zone), orZone(r.ToZone, zone), graph.SaveRelationOptions{DisableAutoCreate: input.DisableAutoCreate})
		if err != nil {
			return toolFailure(fmt.Sprintf("save relation %s -> %s", r.From, r.To), err), nil, nil
		}
		saved = append(saved, rel)
	}
	return toolJSON(saved)
}

func (t *KnowledgeTools) DeleteRelations(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRelationsInput) (*mcp.CallToolResult, any, error) {
	zone := t.Session.Resolve(input.Zone)
	var count int
	for _, r := range input.Relations {
		ok, err := t.Graph.DeleteRelation(ctx, r.From, r.To, r.RelationType, orZone(r.FromZone, zone), orZone(r.ToZone, zone))
		if err != nil {
			return toolFailure("delete relation", err), nil, nil
		}
		if ok {
			count++
		}
	}
	return toolText(fmt.Sprintf("Deleted %d relations.", count)), nil, nil
}

func (t *KnowledgeTools) SearchNodes(ctx context.Context, _ *mcp.CallToolRequest, input SearchNodesInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Graph.Search(ctx, input.request(t.Session.Resolve(input.Zone)))
	if err != nil {
		return toolFailure("search", err), nil, nil
	}
	return toolJSON(res)
}

func (t *KnowledgeTools) UserSearch(ctx context.Context, _ *mcp.CallToolRequest, input UserSearchInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Graph.UserSearch(ctx, graph.UserSearchRequest{
		SearchRequest: query.SearchRequest{
			Query:       input.Query,
			EntityTypes: input.EntityTypes,
			Limit:       input.Limit,
			SortBy:      query.ParseSortBy(input.SortBy),
			Zone:        t.Session.Resolve(input.Zone),
		},
		InformationNeeded: input.InformationNeeded,
		Reason:            input.Reason,
	})
	if err != nil {
		return toolFailure("search", err), nil, nil
	}
	return toolJSON(res)
}

func (t *KnowledgeTools) GetRelatedEntities(ctx context.Context, _ *mcp.CallToolRequest, input RelatedEntitiesInput) (*mcp.CallToolResult, any, error) {
	g, err := t.Graph.GetRelatedEntities(ctx, input.Name, input.MaxDepth, t.Session.Resolve(input.Zone))
	if err != nil {
		return toolFailure("traverse relations", err), nil, nil
	}
	return toolJSON(g)
}

func (t *KnowledgeTools) GetRelationsForEntities(ctx context.Context, _ *mcp.CallToolRequest, input RelationsForEntitiesInput) (*mcp.CallToolResult, any, error) {
	rels, err := t.Graph.GetRelationsForEntities(ctx, input.Names, t.Session.Resolve(input.Zone))
	if err != nil {
		return toolFailure("get relations", err), nil, nil
	}
	if rels == nil {
		rels = []models.Relation{}
	}
	return toolJSON(rels)
}

func (t *KnowledgeTools) RecentEntities(ctx context.Context, _ *mcp.CallToolRequest, input RecentEntitiesInput) (*mcp.CallToolResult, any, error) {
	entities, err := t.Graph.GetRecentEntities(ctx, input.Limit, input.IncludeObservations, t.Session.Resolve(input.Zone))
	if err != nil {
		return toolFailure("get recent entities", err), nil, nil
	}
	return toolJSON(entities)
}

func orZone(zone, fallback string) string {
	if zone == "" {
		return fallback
	}
	return zone
}
