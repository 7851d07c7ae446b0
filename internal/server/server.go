// Package server exposes the knowledge graph as an MCP server.
package server

import (
	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/session"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/tools"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/transfer"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// New creates a fully configured MCP server with all tools registered. Each
// server carries its own session, so every connection starts in the
// default zone.
func New(c *graph.Client, logger *log.Logger) *mcp.Server {
	sess := session.New()

	zt := &tools.ZoneTools{Zones: c.Zones(), Session: sess}
	kt := &tools.KnowledgeTools{Graph: c, Session: sess}
	tt := &tools.TransferTools{Transfer: transfer.New(c, logger), Session: sess}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "zonegraph",
		Version: Version,
	}, nil)

	// Zone management tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_zones",
		Description: "List all memory zones with their descriptions and the current zone",
	}, zt.ListZones)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_zone",
		Description: "Create a memory zone, an isolated namespace for entities",
	}, zt.AddZone)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_zone",
		Description: "Permanently delete a zone, its entities and every relation touching it (irreversible)",
	}, zt.DeleteZone)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "zone_stats",
		Description: "Count entities, relations and cross-zone relations of a zone",
	}, zt.ZoneStats)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_zone_descriptions",
		Description: "Set the description and short description of a zone",
	}, zt.UpdateZoneDescriptions)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "switch_zone",
		Description: "Switch the zone used by this session when no zone is given",
	}, zt.SwitchZone)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_current_zone",
		Description: "Get the zone this session currently works in",
	}, zt.GetCurrentZone)

	// Knowledge graph tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "save_entities",
		Description: "Create or update entities in a zone",
	}, kt.SaveEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_entity",
		Description: "Retrieve an entity by exact name and record the read",
	}, kt.GetEntity)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entities",
		Description: "Delete entities and the relations referencing them",
	}, kt.DeleteEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations",
		Description: "Append observations to existing entities",
	}, kt.AddObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "mark_important",
		Description: "Raise or lower an entity's relevance score tenfold",
	}, kt.MarkImportant)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "save_relations",
		Description: "Create directed relations, optionally across zones",
	}, kt.SaveRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relations",
		Description: "Delete specific relations",
	}, kt.DeleteRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_nodes",
		Description: "Search entities of a zone by name, type and observations",
	}, kt.SearchNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "user_search",
		Description: "Search on behalf of a user, keeping only results judged useful for the stated information need",
	}, kt.UserSearch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_related_entities",
		Description: "Follow relations from an entity up to a number of hops, across zones",
	}, kt.GetRelatedEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_relations_for_entities",
		Description: "List the relations in which the given entities take part",
	}, kt.GetRelationsForEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "recent_entities",
		Description: "List the most recently read entities of a zone",
	}, kt.RecentEntities)

	// Transfer tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "copy_entities",
		Description: "Copy entities and their relations from one zone to another",
	}, tt.CopyEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "move_entities",
		Description: "Move entities from one zone to another",
	}, tt.MoveEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "merge_zones",
		Description: "Merge the entities of several zones into a target zone",
	}, tt.MergeZones)

	return srv
}
