package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/composer"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

// MCPDeps holds dependencies for the MCP server. Every tool acts as UserID.
type MCPDeps struct {
	Store     *storage.Store
	Workspace *studio.Workspace
	UserID    string
}

// NewMCPServer creates an MCP server with all caption tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kohen",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("kohen: write Indonesian social-media captions from your product catalog, copywriting strategies and brand personas."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_products",
			mcp.WithDescription("List the products in the catalog, newest first."),
		),
		mcpListProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("list_strategies",
			mcp.WithDescription("List the saved copywriting strategies (hook plus example)."),
		),
		mcpListStrategies(deps),
	)

	s.AddTool(
		mcp.NewTool("list_brains",
			mcp.WithDescription("List the saved brand personas. The first one is used by default."),
		),
		mcpListBrains(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_caption",
			mcp.WithDescription("Generate a caption with hashtags for a product and save it to history."),
			mcp.WithString("product_id", mcp.Description("Catalog product id"), mcp.Required()),
			mcp.WithString("strategy_id", mcp.Description("Optional strategy id")),
			mcp.WithString("brain_id", mcp.Description("Optional persona id; defaults to the newest persona, \"none\" for no persona")),
			mcp.WithString("tone", mcp.Description("fun, professional, luxury, persuasive or educational (default fun)")),
			mcp.WithString("custom_instruction", mcp.Description("Extra instruction appended to the prompt")),
		),
		mcpGenerateCaption(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List previously generated captions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_history_entry",
			mcp.WithDescription("Delete a generated caption from history. Requires confirm=true."),
			mcp.WithString("id", mcp.Description("History entry id"), mcp.Required()),
			mcp.WithBoolean("confirm", mcp.Description("Must be true; the entry cannot be restored")),
		),
		mcpDeleteHistoryEntry(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kohen://history/recent",
			"Recent Captions",
			mcp.WithResourceDescription("Last 10 generated captions (shortened)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpListProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := deps.Store.ListCatalogItems(ctx, deps.UserID)
		if err != nil {
			return mcpError(studio.MsgLoadFailed), nil
		}
		if len(items) == 0 {
			return mcpText(studio.MsgEmptyCatalog), nil
		}
		return mcpJSON(items)
	}
}

func mcpListStrategies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := deps.Store.ListStrategies(ctx, deps.UserID)
		if err != nil {
			return mcpError(studio.MsgLoadFailed), nil
		}
		return mcpJSON(items)
	}
}

func mcpListBrains(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := deps.Store.ListBrains(ctx, deps.UserID)
		if err != nil {
			return mcpError(studio.MsgLoadFailed), nil
		}
		return mcpJSON(items)
	}
}

func mcpGenerateCaption(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID, err := req.RequireString("product_id")
		if err != nil || productID == "" {
			return mcpError(studio.MsgSelectProduct), nil
		}
		tone, err := composer.ParseTone(req.GetString("tone", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		screen := deps.Workspace.Generation(deps.UserID)
		if screen.State().Phase == studio.PhaseGenerating {
			return mcpError(studio.MsgBusy), nil
		}
		if err := screen.Mount(ctx); err != nil {
			return mcpError(apperr.MessageOf(err)), nil
		}

		screen.Select(studio.Selection{
			ProductID:         productID,
			StrategyID:        req.GetString("strategy_id", ""),
			BrainID:           screen.State().ResolveBrain(req.GetString("brain_id", "")),
			Tone:              tone,
			CustomInstruction: req.GetString("custom_instruction", ""),
		})

		caption, err := screen.Generate(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("%s (%s)", apperr.MessageOf(err), apperr.CodeOf(err))), nil
		}
		return mcpJSON(caption)
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		history := deps.Workspace.History(deps.UserID)
		if err := history.Refresh(ctx); err != nil {
			return mcpError(apperr.MessageOf(err)), nil
		}
		items := history.State().Items
		if len(items) > limit {
			items = items[:limit]
		}
		out := make([]studio.Caption, len(items))
		for i, c := range items {
			out[i] = studio.Caption{GeneratedCaption: c, CopyText: studio.CopyText(c)}
		}
		return mcpJSON(out)
	}
}

func mcpDeleteHistoryEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		history := deps.Workspace.History(deps.UserID)
		if !req.GetBool("confirm", false) {
			return mcpError(history.DeletePrompt() + " Call again with confirm=true."), nil
		}
		if err := history.Delete(ctx, id, true); err != nil {
			return mcpError(apperr.MessageOf(err)), nil
		}
		return mcpText(fmt.Sprintf("deleted history entry %s", id)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		captions, err := deps.Store.ListGeneratedCaptions(ctx, deps.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list captions: %w", err)
		}
		if len(captions) > 10 {
			captions = captions[:10]
		}

		type captionSummary struct {
			ID          string `json:"id"`
			CreatedAt   string `json:"created_at"`
			ProductName string `json:"product_name"`
			Tone        string `json:"tone"`
			Caption     string `json:"caption"`
		}

		summaries := make([]captionSummary, len(captions))
		for i, c := range captions {
			text := c.GeneratedCaption
			if utf8.RuneCountInString(text) > 200 {
				runes := []rune(text)
				text = string(runes[:200]) + "..."
			}
			summaries[i] = captionSummary{
				ID:          c.ID,
				CreatedAt:   c.CreatedAt.Format(time.RFC3339),
				ProductName: c.ProductName,
				Tone:        c.Tone,
				Caption:     text,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal captions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
