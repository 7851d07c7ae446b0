package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine/sqlite"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/server"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/tools"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

// setupIntegration creates a real MCP server with in-memory transport and returns a connected client session.
func setupIntegration(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard)
	reg, err := zones.Open(ctx, store, zones.Options{Prefix: "kg", Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(graph.New(reg, graph.Options{Logger: logger}), logger)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool is a helper that calls a tool and returns the text content.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) returned error: %s", name, tc.Text)
	}
	return tc.Text
}

// callToolExpectError calls a tool and expects an error response (IsError=true).
func callToolExpectError(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): protocol error: %v", name, err)
	}
	tc := result.Content[0].(*mcp.TextContent)
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected error but got success: %s", name, tc.Text)
	}
	return tc.Text
}

func decode[T any](t *testing.T, tool, text string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("parse %s: %v", tool, err)
	}
	return v
}

func TestIntegration_ListTools(t *testing.T) {
	session := setupIntegration(t)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	expectedTools := []string{
		"list_zones", "add_zone", "delete_zone", "zone_stats",
		"update_zone_descriptions", "switch_zone", "get_current_zone",
		"save_entities", "get_entity", "delete_entities", "add_observations",
		"mark_important", "save_relations", "delete_relations",
		"search_nodes", "user_search", "get_related_entities",
		"get_relations_for_entities", "recent_entities",
		"copy_entities", "move_entities", "merge_zones",
	}

	toolNames := make(map[string]bool)
	for _, tool := range result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range expectedTools {
		if !toolNames[name] {
			t.Errorf("Missing tool: %s", name)
		}
	}
	if len(result.Tools) != len(expectedTools) {
		t.Errorf("Expected %d tools, got %d", len(expectedTools), len(result.Tools))
	}
}

func TestIntegration_FullWorkflow(t *testing.T) {
	session := setupIntegration(t)

	// Step 1: add_zone("work") and switch to it
	meta := decode[models.ZoneMetadata](t, "add_zone", callTool(t, session, "add_zone", map[string]any{
		"name":        "work",
		"description": "Work knowledge",
	}))
	if meta.Name != "work" || meta.Description != "Work knowledge" {
		t.Errorf("add_zone = %+v", meta)
	}
	callTool(t, session, "switch_zone", map[string]any{"name": "work"})
	current := decode[models.ZoneMetadata](t, "get_current_zone", callTool(t, session, "get_current_zone", nil))
	if current.Name != "work" {
		t.Fatalf("current zone = %q, want work", current.Name)
	}

	// Step 2: save_entities lands in the current zone
	entities := decode[[]models.Entity](t, "save_entities", callTool(t, session, "save_entities", map[string]any{
		"entities": []any{
			map[string]any{"name": "Go", "entity_type": "technology", "observations": []any{"Fast compiled language"}},
			map[string]any{"name": "Memory Cloud", "entity_type": "project"},
		},
	}))
	if len(entities) != 2 || entities[0].Zone != "work" {
		t.Fatalf("save_entities = %+v", entities)
	}

	// Step 3: add_observations
	text := callTool(t, session, "add_observations", map[string]any{
		"observations": []any{
			map[string]any{"entity_name": "Go", "contents": []any{"Great for CLI tools"}},
		},
	})
	if !strings.Contains(text, "Great for CLI tools") {
		t.Error("add_observations should return the new observation")
	}

	// Step 4: save_relations, one of them into the default zone
	rels := decode[[]models.Relation](t, "save_relations", callTool(t, session, "save_relations", map[string]any{
		"relations": []any{
			map[string]any{"from": "Go", "to": "Memory Cloud", "relation_type": "powers"},
			map[string]any{"from": "Memory Cloud", "to": "Alice", "to_zone": "default", "relation_type": "owned_by"},
		},
	}))
	if len(rels) != 2 || rels[1].ToZone != models.DefaultZone {
		t.Fatalf("save_relations = %+v", rels)
	}

	// Step 5: search_nodes("Go")
	res := decode[models.SearchResult](t, "search_nodes", callTool(t, session, "search_nodes", map[string]any{"query": "Go"}))
	if len(res.Hits) != 1 || res.Hits[0].Entity.Name != "Go" {
		t.Fatalf("search_nodes = %+v", res)
	}
	if len(res.Hits[0].Entity.Observations) != 2 {
		t.Errorf("Go should have 2 observations, got %d", len(res.Hits[0].Entity.Observations))
	}

	// Step 6: get_entity records the read
	ent := decode[models.Entity](t, "get_entity", callTool(t, session, "get_entity", map[string]any{"name": "Go"}))
	if ent.ReadCount != 1 {
		t.Errorf("readCount = %d, want 1", ent.ReadCount)
	}

	// Step 7: mark_important
	ent = decode[models.Entity](t, "mark_important", callTool(t, session, "mark_important", map[string]any{"name": "Go", "important": true}))
	if ent.RelevanceScore != 10 {
		t.Errorf("relevanceScore = %v, want 10", ent.RelevanceScore)
	}

	// Step 8: get_related_entities crosses into the default zone
	g := decode[models.Graph](t, "get_related_entities", callTool(t, session, "get_related_entities", map[string]any{"name": "Go", "max_depth": 2}))
	if len(g.Entities) != 3 || len(g.Relations) != 2 {
		t.Errorf("related graph has %d entities and %d relations, want 3 and 2", len(g.Entities), len(g.Relations))
	}

	// Step 9: zone_stats
	stats := decode[models.ZoneStats](t, "zone_stats", callTool(t, session, "zone_stats", map[string]any{}))
	if stats.EntityCount != 2 || stats.RelationCount != 1 || stats.OutgoingCrossZone != 1 {
		t.Errorf("zone_stats = %+v", stats)
	}

	// Step 10: copy_entities into default
	tr := decode[models.TransferResult](t, "copy_entities", callTool(t, session, "copy_entities", map[string]any{
		"names":       []any{"Go", "Memory Cloud"},
		"target_zone": "default",
	}))
	if len(tr.Entities) != 2 || len(tr.Relations) != 2 {
		t.Errorf("copy_entities = %+v", tr)
	}

	// Step 11: delete_zone returns the session to default
	out := decode[models.Outcome](t, "delete_zone", callTool(t, session, "delete_zone", map[string]any{"name": "work"}))
	if !out.OK() {
		t.Errorf("delete_zone failed steps: %+v", out.Failed)
	}
	current = decode[models.ZoneMetadata](t, "get_current_zone", callTool(t, session, "get_current_zone", nil))
	if current.Name != models.DefaultZone {
		t.Errorf("current zone after delete = %q, want default", current.Name)
	}
	recent := decode[[]models.Entity](t, "recent_entities", callTool(t, session, "recent_entities", map[string]any{"limit": 10}))
	if len(recent) != 3 {
		t.Errorf("default zone should hold Alice plus the two copies, got %d", len(recent))
	}
}

func TestIntegration_ZoneIsolation(t *testing.T) {
	session := setupIntegration(t)

	callTool(t, session, "add_zone", map[string]any{"name": "team-a"})
	callTool(t, session, "save_entities", map[string]any{
		"zone":     "team-a",
		"entities": []any{map[string]any{"name": "Widget", "entity_type": "tool"}},
	})

	res := decode[models.SearchResult](t, "search_nodes", callTool(t, session, "search_nodes", map[string]any{"query": "Widget", "zone": "team-a"}))
	if len(res.Hits) != 1 {
		t.Errorf("team-a search returned %d hits, want 1", len(res.Hits))
	}
	res = decode[models.SearchResult](t, "search_nodes", callTool(t, session, "search_nodes", map[string]any{"query": "Widget"}))
	if len(res.Hits) != 0 {
		t.Errorf("default search returned %d hits, want 0", len(res.Hits))
	}

	list := decode[tools.ZoneList](t, "list_zones", callTool(t, session, "list_zones", map[string]any{}))
	if list.Current != models.DefaultZone || len(list.Zones) != 2 {
		t.Errorf("list_zones = %+v", list)
	}
}

func TestIntegration_UserSearchWithoutAssistant(t *testing.T) {
	session := setupIntegration(t)

	callTool(t, session, "save_entities", map[string]any{
		"entities": []any{map[string]any{"name": "Deploy Pipeline", "entity_type": "process"}},
	})
	res := decode[models.UserSearchResult](t, "user_search", callTool(t, session, "user_search", map[string]any{
		"query":              "deploy",
		"information_needed": "how releases ship",
	}))
	if res.Filtered {
		t.Error("results cannot be filtered without an assistant")
	}
	if res.Fallback == "" || len(res.Hits) != 1 {
		t.Errorf("user_search = %+v", res)
	}
}

func TestIntegration_ErrorCases(t *testing.T) {
	session := setupIntegration(t)

	text := callToolExpectError(t, session, "switch_zone", map[string]any{"name": "nowhere"})
	if !strings.Contains(text, "list_zones") {
		t.Errorf("missing zone error should point at list_zones: %s", text)
	}
	callToolExpectError(t, session, "save_entities", map[string]any{
		"zone":     "nowhere",
		"entities": []any{map[string]any{"name": "X", "entity_type": "thing"}},
	})
	callToolExpectError(t, session, "save_entities", map[string]any{"entities": []any{}})
	callToolExpectError(t, session, "get_entity", map[string]any{"name": "Ghost"})
	callToolExpectError(t, session, "add_zone", map[string]any{"name": "Bad Name"})
	callToolExpectError(t, session, "delete_zone", map[string]any{"name": "default"})
	callToolExpectError(t, session, "mark_important", map[string]any{"name": "Ghost", "important": true})
	callToolExpectError(t, session, "save_relations", map[string]any{
		"disable_auto_create": true,
		"relations":           []any{map[string]any{"from": "A", "to": "B", "relation_type": "knows"}},
	})
	callToolExpectError(t, session, "merge_zones", map[string]any{
		"source_zones": []any{"default"},
		"target_zone":  "default",
	})
	callToolExpectError(t, session, "copy_entities", map[string]any{"names": []any{"A"}})
}
