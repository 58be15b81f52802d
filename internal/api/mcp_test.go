package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

const mcpUser = "mcp-user"

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *stubGenerator) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gen := &stubGenerator{}
	return MCPDeps{
		Store:     store,
		Workspace: studio.NewWorkspace(store, gen),
		UserID:    mcpUser,
	}, store, gen
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func seedProduct(t *testing.T, store *storage.Store, name string) storage.CatalogItem {
	t.Helper()
	item, err := store.CreateCatalogItem(context.Background(), mcpUser, storage.CatalogItemFields{
		StoreName: "Toko A", ProductName: name, Description: "Kopi robusta pilihan",
	})
	if err != nil {
		t.Fatalf("CreateCatalogItem: %v", err)
	}
	return item
}

// --- tests ---

func TestMCPTool_ListProducts(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	handler := mcpListProducts(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_products", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toolText(t, result) != studio.MsgEmptyCatalog {
		t.Errorf("empty catalog text = %q", toolText(t, result))
	}

	seedProduct(t, store, "Kopi")
	result, _ = handler(context.Background(), makeCallToolRequest("list_products", nil))
	var items []storage.CatalogItem
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(items) != 1 || items[0].ProductName != "Kopi" {
		t.Errorf("items = %+v", items)
	}
}

func TestMCPTool_ListStrategiesAndBrains(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	ctx := context.Background()
	store.CreateStrategy(ctx, mcpUser, storage.StrategyFields{Title: "PAS", Hook: "h", Example: "e"})
	store.CreateBrain(ctx, mcpUser, storage.BrainFields{Title: "Sari", Instruction: "ramah"})

	result, _ := mcpListStrategies(deps)(ctx, makeCallToolRequest("list_strategies", nil))
	if !strings.Contains(toolText(t, result), `"title": "PAS"`) {
		t.Errorf("strategies = %s", toolText(t, result))
	}
	result, _ = mcpListBrains(deps)(ctx, makeCallToolRequest("list_brains", nil))
	if !strings.Contains(toolText(t, result), `"instruction": "ramah"`) {
		t.Errorf("brains = %s", toolText(t, result))
	}
}

func TestMCPTool_GenerateCaption(t *testing.T) {
	deps, store, gen := newTestMCPDeps(t)
	product := seedProduct(t, store, "Kopi")
	store.CreateBrain(context.Background(), mcpUser, storage.BrainFields{Title: "Sari", Instruction: "Selalu pakai bahasa Jawa."})

	result, err := mcpGenerateCaption(deps)(context.Background(), makeCallToolRequest("generate_caption", map[string]interface{}{
		"product_id": product.ID,
		"tone":       "professional",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var c studio.Caption
	if err := json.Unmarshal([]byte(toolText(t, result)), &c); err != nil {
		t.Fatalf("parsing caption: %v", err)
	}
	if c.Tone != "Profesional" || c.ProductName != "Kopi" || c.CopyText == "" {
		t.Errorf("caption = %+v", c)
	}
	if !strings.Contains(gen.prompts[0], "Selalu pakai bahasa Jawa.") {
		t.Error("default persona not applied")
	}

	history, _ := store.ListGeneratedCaptions(context.Background(), mcpUser)
	if len(history) != 1 || history[0].ID != c.ID {
		t.Errorf("history = %+v", history)
	}
}

func TestMCPTool_GenerateCaption_NoPersona(t *testing.T) {
	deps, store, gen := newTestMCPDeps(t)
	product := seedProduct(t, store, "Kopi")
	store.CreateBrain(context.Background(), mcpUser, storage.BrainFields{Title: "Sari", Instruction: "Selalu pakai bahasa Jawa."})

	result, _ := mcpGenerateCaption(deps)(context.Background(), makeCallToolRequest("generate_caption", map[string]interface{}{
		"product_id": product.ID,
		"brain_id":   "none",
	}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if strings.Contains(gen.prompts[0], "Selalu pakai bahasa Jawa.") {
		t.Error("persona applied although brain_id=none")
	}
}

func TestMCPTool_GenerateCaption_Errors(t *testing.T) {
	deps, _, gen := newTestMCPDeps(t)
	handler := mcpGenerateCaption(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("generate_caption", map[string]interface{}{}))
	if !result.IsError || toolText(t, result) != studio.MsgSelectProduct {
		t.Errorf("missing product: %+v", result)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("generate_caption", map[string]interface{}{
		"product_id": "p1", "tone": "sarcastic",
	}))
	if !result.IsError {
		t.Error("expected error for unknown tone")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("generate_caption", map[string]interface{}{
		"product_id": "missing",
	}))
	if !result.IsError || !strings.Contains(toolText(t, result), "tidak ditemukan") {
		t.Errorf("unknown product: %s", toolText(t, result))
	}
	if len(gen.prompts) != 0 {
		t.Error("generator called on invalid input")
	}
}

func TestMCPTool_ListAndDeleteHistory(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	product := seedProduct(t, store, "Kopi")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, _ := mcpGenerateCaption(deps)(ctx, makeCallToolRequest("generate_caption", map[string]interface{}{"product_id": product.ID}))
		if result.IsError {
			t.Fatalf("generate: %s", toolText(t, result))
		}
	}

	result, _ := mcpListHistory(deps)(ctx, makeCallToolRequest("list_history", map[string]interface{}{"limit": float64(2)}))
	var entries []studio.Caption
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatalf("parsing history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	del := mcpDeleteHistoryEntry(deps)
	result, _ = del(ctx, makeCallToolRequest("delete_history_entry", map[string]interface{}{"id": entries[0].ID}))
	if !result.IsError || !strings.Contains(toolText(t, result), studio.HistoryMessages.DeletePrompt) {
		t.Errorf("unconfirmed delete: %s", toolText(t, result))
	}
	if all, _ := store.ListGeneratedCaptions(ctx, mcpUser); len(all) != 3 {
		t.Fatalf("unconfirmed delete removed an entry")
	}

	result, _ = del(ctx, makeCallToolRequest("delete_history_entry", map[string]interface{}{"id": entries[0].ID, "confirm": true}))
	if result.IsError {
		t.Fatalf("confirmed delete: %s", toolText(t, result))
	}
	if all, _ := store.ListGeneratedCaptions(ctx, mcpUser); len(all) != 2 {
		t.Errorf("expected 2 entries after delete, got %d", len(all))
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)

	_, err := store.CreateGeneratedCaption(context.Background(), mcpUser, storage.GeneratedCaptionFields{
		StoreName:        "Toko A",
		ProductName:      "Kopi",
		Tone:             "Edukatif",
		GeneratedCaption: strings.Repeat("a", 300),
	})
	if err != nil {
		t.Fatalf("saving caption: %v", err)
	}

	handler := mcpResourceRecent(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("kohen://history/recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []struct {
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 caption, got %d", len(summaries))
	}
	if len(summaries[0].Caption) != 203 {
		t.Errorf("caption not shortened: %d chars", len(summaries[0].Caption))
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	seedProduct(t, store, "Kopi")

	list := mcpListProducts(deps)
	history := mcpListHistory(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := list(context.Background(), makeCallToolRequest("list_products", nil)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := history(context.Background(), makeCallToolRequest("list_history", nil)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if NewMCPServer(deps) == nil {
		t.Fatal("expected server")
	}
}
