package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/session"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/transfer"
)

// TransferTools holds references needed by cross-zone transfer handlers.
type TransferTools struct {
	Transfer *transfer.Engine
	Session  *session.Session
}

// --- Input types ---

type TransferEntitiesInput struct {
	Names         []string `json:"names" jsonschema:"Entity names to transfer"`
	SourceZone    string   `json:"source_zone,omitempty" jsonschema:"Zone to take the entities from (defaults to the current zone)"`
	TargetZone    string   `json:"target_zone" jsonschema:"Zone to put the entities in"`
	SkipRelations bool     `json:"skip_relations,omitempty" jsonschema:"Do not re-create relations in the target zone"`
	Overwrite     bool     `json:"overwrite,omitempty" jsonschema:"Replace entities that already exist in the target zone"`
}

type MergeZonesInput struct {
	SourceZones        []string `json:"source_zones" jsonschema:"Zones to merge"`
	TargetZone         string   `json:"target_zone" jsonschema:"Zone receiving the merged entities"`
	DeleteSourceZones  bool     `json:"delete_source_zones,omitempty" jsonschema:"Delete each source zone after it merged cleanly"`
	OverwriteConflicts string   `json:"overwrite_conflicts,omitempty" jsonschema:"skip (default), overwrite or rename entities whose name is taken in the target"`
}

func (in TransferEntitiesInput) options() transfer.CopyOptions {
	return transfer.CopyOptions{SkipRelations: in.SkipRelations, Overwrite: in.Overwrite}
}

// --- Handlers ---

func (t *TransferTools) CopyEntities(ctx context.Context, _ *mcp.CallToolRequest, input TransferEntitiesInput) (*mcp.CallToolResult, any, error) {
	if input.TargetZone == "" {
		return toolError("target_zone is required"), nil, nil
	}
	res, err := t.Transfer.CopyEntitiesBetweenZones(ctx, input.Names, t.Session.Resolve(input.SourceZone), input.TargetZone, input.options())
	if err != nil {
		return toolFailure("copy entities", err), nil, nil
	}
	return toolJSON(res)
}

func (t *TransferTools) MoveEntities(ctx context.Context, _ *mcp.CallToolRequest, input TransferEntitiesInput) (*mcp.CallToolResult, any, error) {
	if input.TargetZone == "" {
		return toolError("target_zone is required"), nil, nil
	}
	res, err := t.Transfer.MoveEntitiesBetweenZones(ctx, input.Names, t.Session.Resolve(input.SourceZone), input.TargetZone, input.options())
	if err != nil {
		return toolFailure("move entities", err), nil, nil
	}
	return toolJSON(res)
}

func (t *TransferTools) MergeZones(ctx context.Context, _ *mcp.CallToolRequest, input MergeZonesInput) (*mcp.CallToolResult, any, error) {
	if input.TargetZone == "" {
		return toolError("target_zone is required"), nil, nil
	}
	res, err := t.Transfer.MergeZones(ctx, input.SourceZones, input.TargetZone, transfer.MergeOptions{
		DeleteSourceZones:  input.DeleteSourceZones,
		OverwriteConflicts: transfer.ConflictPolicy(input.OverwriteConflicts),
	})
	if err != nil {
		return toolFailure("merge zones", err), nil, nil
	}
	for _, src := range res.Sources {
		if src.SourceDeleted {
			t.Session.Forget(src.Source)
		}
	}
	return toolJSON(res)
}
