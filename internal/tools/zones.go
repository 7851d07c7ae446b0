package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/session"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

// ZoneTools holds references needed by zone management tool handlers.
type ZoneTools struct {
	Zones   *zones.Registry
	Session *session.Session
}

// --- Input types ---

type ListZonesInput struct {
	Reason string `json:"reason,omitempty" jsonschema:"Why the zones are being listed (logged only)"`
}

type AddZoneInput struct {
	Name        string         `json:"name" jsonschema:"Zone name: lowercase letters, digits, '-' and '_'"`
	Description string         `json:"description,omitempty" jsonschema:"What the zone is for"`
	Config      map[string]any `json:"config,omitempty" jsonschema:"Free-form zone settings"`
}

type ZoneNameInput struct {
	Name string `json:"name" jsonschema:"Zone name"`
}

type ZoneStatsInput struct {
	Zone string `json:"zone,omitempty" jsonschema:"Zone to inspect (defaults to the current zone)"`
}

type UpdateZoneDescriptionsInput struct {
	Zone             string `json:"zone,omitempty" jsonschema:"Zone to describe (defaults to the current zone)"`
	Description      string `json:"description" jsonschema:"Full description of the zone"`
	ShortDescription string `json:"short_description,omitempty" jsonschema:"One-line summary of the zone"`
}

// ZoneList is the list_zones result.
type ZoneList struct {
	Current string                `json:"current"`
	Zones   []models.ZoneMetadata `json:"zones"`
}

// --- Handlers ---

func (t *ZoneTools) ListZones(ctx context.Context, _ *mcp.CallToolRequest, input ListZonesInput) (*mcp.CallToolResult, any, error) {
	list, err := t.Zones.ListMemoryZones(ctx, input.Reason)
	if err != nil {
		return toolFailure("list zones", err), nil, nil
	}
	if list == nil {
		list = []models.ZoneMetadata{}
	}
	return toolJSON(ZoneList{Current: t.Session.CurrentZone(), Zones: list})
}

func (t *ZoneTools) AddZone(ctx context.Context, _ *mcp.CallToolRequest, input AddZoneInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return toolError("Zone name is required"), nil, nil
	}
	meta, err := t.Zones.AddMemoryZone(ctx, name, input.Description, input.Config)
	if err != nil {
		return toolFailure("add zone", err), nil, nil
	}
	return toolJSON(meta)
}

func (t *ZoneTools) DeleteZone(ctx context.Context, _ *mcp.CallToolRequest, input ZoneNameInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return toolError("Zone name is required"), nil, nil
	}
	out, err := t.Zones.DeleteMemoryZone(ctx, name)
	if err != nil {
		return toolFailure("delete zone", err), nil, nil
	}
	t.Session.Forget(name)
	if !out.OK() {
		res, _, _ := toolJSON(out)
		res.IsError = true
		return res, nil, nil
	}
	return toolJSON(out)
}

func (t *ZoneTools) ZoneStats(ctx context.Context, _ *mcp.CallToolRequest, input ZoneStatsInput) (*mcp.CallToolResult, any, error) {
	stats, err := t.Zones.ZoneStats(ctx, t.Session.Resolve(input.Zone))
	if err != nil {
		return toolFailure("compute zone stats", err), nil, nil
	}
	return toolJSON(stats)
}

func (t *ZoneTools) UpdateZoneDescriptions(ctx context.Context, _ *mcp.CallToolRequest, input UpdateZoneDescriptionsInput) (*mcp.CallToolResult, any, error) {
	meta, err := t.Zones.UpdateZoneDescriptions(ctx, t.Session.Resolve(input.Zone), input.Description, input.ShortDescription)
	if err != nil {
		return toolFailure("update zone descriptions", err), nil, nil
	}
	return toolJSON(meta)
}

func (t *ZoneTools) SwitchZone(ctx context.Context, _ *mcp.CallToolRequest, input ZoneNameInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return toolError("Zone name is required"), nil, nil
	}
	meta, err := t.Session.SwitchZone(ctx, t.Zones, input.Name)
	if err != nil {
		return toolFailure("switch zone", err), nil, nil
	}
	return toolJSON(meta)
}

func (t *ZoneTools) GetCurrentZone(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	name := t.Session.CurrentZone()
	meta, err := t.Zones.GetZoneMetadata(ctx, name)
	if err != nil || meta == nil {
		return toolText("Current zone: " + name + " (details unavailable)"), nil, nil
	}
	return toolJSON(meta)
}
