package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/automarker/store"
)

var testMCPImpl = &mcp.Implementation{Name: "automarker-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func textContent(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	return tc.Text
}

func TestMCPToolsListed(t *testing.T) {
	svc, _ := newTestService(t)
	session := mcpSession(t, svc)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"automarker_open":      false,
		"automarker_highlight": false,
		"automarker_page_info": false,
		"automarker_strategy":  false,
	}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCPOpenAndPageInfo(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	pages := pageServer(t)

	settings := store.DefaultSettings()
	settings.Slots = manualSlots("goroutine")
	st.SetSettings(ctx, settings)

	session := mcpSession(t, svc)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "automarker_open",
		Arguments: map[string]any{"url": pages.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("open failed: %v", textContent(t, res))
	}

	var info Info
	if err := json.Unmarshal([]byte(textContent(t, res)), &info); err != nil {
		t.Fatal(err)
	}
	if info.Matches != 2 || info.Title != "Gopher News" {
		t.Errorf("info = %+v", info)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "automarker_page_info",
		Arguments: map[string]any{"session_id": info.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("page_info failed: %v", textContent(t, res))
	}
}

func TestMCPPageInfoUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	session := mcpSession(t, svc)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "automarker_page_info",
		Arguments: map[string]any{"session_id": "pg_missing"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for unknown session")
	}
	if msg := textContent(t, res); !strings.Contains(msg, "no session") {
		t.Errorf("error = %v", msg)
	}
}
