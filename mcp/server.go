package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyperengineering/setaside"
)

// Server wraps the MCP server with set-aside tools.
type Server struct {
	client    *setaside.Client
	coord     *setaside.Coordinator
	mcpServer *server.MCPServer
	session   *setaside.Session
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with set-aside tools registered. The
// client must have been started.
func NewServer(client *setaside.Client) *Server {
	s := &Server{
		client:  client,
		coord:   client.Coordinator(),
		session: setaside.NewSession(),
	}

	s.mcpServer = server.NewMCPServer(
		"setaside",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "setaside_list", Description: "List set-aside tab collections"},
		{Name: "setaside_create", Description: "Set a group of tabs aside as a new collection"},
		{Name: "setaside_remove_item", Description: "Remove one tab from a collection"},
		{Name: "setaside_restore_item", Description: "Reopen one tab and remove it from its collection"},
		{Name: "setaside_remove_collection", Description: "Remove a whole collection"},
		{Name: "setaside_restore_collection", Description: "Reopen every tab of a collection and remove it"},
		{Name: "setaside_gc", Description: "Delete attachment records of collections that no longer exist"},
		{Name: "setaside_export", Description: "Export every collection as JSON"},
		{Name: "setaside_status", Description: "Show profile, store configuration and health"},
	}
}

// CallTool executes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "setaside_list":
		return s.handleList(ctx, args)
	case "setaside_create":
		return s.handleCreate(ctx, args)
	case "setaside_remove_item":
		return s.handleRemoveItem(ctx, args)
	case "setaside_restore_item":
		return s.handleRestoreItem(ctx, args)
	case "setaside_remove_collection":
		return s.handleRemoveCollection(ctx, args)
	case "setaside_restore_collection":
		return s.handleRestoreCollection(ctx, args)
	case "setaside_gc":
		return s.handleGC(ctx, args)
	case "setaside_export":
		return s.handleExport(ctx, args)
	case "setaside_status":
		return s.handleStatus(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	collectionParam := mcp.WithString("collection",
		mcp.Description("Session ref (C1, C2, ...), collection ID, unique ID prefix, or a snippet of a listed collection's URLs or titles"),
		mcp.Required(),
	)
	destinationParam := mcp.WithString("destination",
		mcp.Description("Browser to open tabs in (default: system handler)"),
	)

	s.mcpServer.AddTool(mcp.NewTool("setaside_list",
		mcp.WithDescription("List set-aside tab collections, newest first. Returns session references (C1, C2, ...) usable by the other tools."),
		mcp.WithString("filter",
			mcp.Description("Only list collections whose URLs or titles contain this text"),
		),
	), s.wrap(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("setaside_create",
		mcp.WithDescription("Set a group of tabs aside as a new collection. URLs that cannot be reopened later (about:, file:, ...) are skipped."),
		mcp.WithArray("urls",
			mcp.Description("URLs of the tabs, in order"),
			mcp.WithStringItems(),
			mcp.Required(),
		),
		mcp.WithArray("titles",
			mcp.Description("Titles matching urls by position"),
			mcp.WithStringItems(),
		),
	), s.wrap(s.handleCreate))

	s.mcpServer.AddTool(mcp.NewTool("setaside_remove_item",
		mcp.WithDescription("Remove one tab from a collection. Removing the last tab removes the collection."),
		collectionParam,
		mcp.WithString("item",
			mcp.Description("Item ID, or its 1-based position in the collection"),
			mcp.Required(),
		),
	), s.wrap(s.handleRemoveItem))

	s.mcpServer.AddTool(mcp.NewTool("setaside_restore_item",
		mcp.WithDescription("Reopen one tab and remove it from its collection."),
		collectionParam,
		mcp.WithString("item",
			mcp.Description("Item ID, or its 1-based position in the collection"),
			mcp.Required(),
		),
		destinationParam,
	), s.wrap(s.handleRestoreItem))

	s.mcpServer.AddTool(mcp.NewTool("setaside_remove_collection",
		mcp.WithDescription("Remove a whole collection without reopening its tabs."),
		collectionParam,
	), s.wrap(s.handleRemoveCollection))

	s.mcpServer.AddTool(mcp.NewTool("setaside_restore_collection",
		mcp.WithDescription("Reopen every tab of a collection, then remove it. The collection is kept if any tab fails to open."),
		collectionParam,
		destinationParam,
	), s.wrap(s.handleRestoreCollection))

	s.mcpServer.AddTool(mcp.NewTool("setaside_gc",
		mcp.WithDescription("Delete attachment records of collections that no longer exist."),
	), s.wrap(s.handleGC))

	s.mcpServer.AddTool(mcp.NewTool("setaside_export",
		mcp.WithDescription("Export every collection, attachments included, as a JSON document."),
	), s.wrap(s.handleExport))

	s.mcpServer.AddTool(mcp.NewTool("setaside_status",
		mcp.WithDescription("Show the active profile, store configuration and health. Read-only."),
	), s.wrap(s.handleStatus))
}

type handlerFunc func(ctx context.Context, args map[string]any) (*ToolResult, error)

// wrap adapts an internal handler to mcp-go.
func (s *Server) wrap(h handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func errorResult(format string, a ...any) (*ToolResult, error) {
	return &ToolResult{Content: fmt.Sprintf(format, a...), IsError: true}, nil
}

// Internal handlers

func (s *Server) handleList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if !s.coord.Ready() {
		return errorResult("collections unavailable: %v", setaside.ErrNotReady)
	}
	filter, _ := args["filter"].(string)
	filter = strings.ToLower(filter)

	var shown []*setaside.Collection
	for _, col := range s.coord.Collections() {
		if filter != "" && !strings.Contains(strings.ToLower(setaside.Describe(col)), filter) {
			continue
		}
		shown = append(shown, col)
	}
	if len(shown) == 0 {
		return &ToolResult{Content: "No collections found."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d collections:\n\n", len(shown))
	for _, col := range shown {
		ref := s.session.Track(col.ID)
		fmt.Fprintf(&sb, "[%s] %s  %s  (%d tabs)\n", ref, shortID(col.ID), formatRelativeTime(col.CreatedAt), len(col.Items))
		for i, it := range col.Items {
			fmt.Fprintf(&sb, "    %d. %s\n       %s\n", i+1, title(it), it.URL)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Use setaside_restore_collection or setaside_restore_item with session refs (C1, C2, ...).")
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleCreate(ctx context.Context, args map[string]any) (*ToolResult, error) {
	urls := toStringSlice(args["urls"])
	if len(urls) == 0 {
		return errorResult("urls is required")
	}
	titles := toStringSlice(args["titles"])

	tabs := make([]setaside.Tab, len(urls))
	for i, u := range urls {
		tabs[i] = setaside.Tab{URL: u}
		if i < len(titles) {
			tabs[i].Title = titles[i]
		}
	}

	col, err := s.coord.SetAside(ctx, tabs)
	if err != nil {
		return errorResult("set aside failed: %v", err)
	}
	if col == nil {
		return &ToolResult{Content: "Nothing set aside: none of the URLs can be reopened later."}, nil
	}
	ref := s.session.Track(col.ID)
	skipped := len(urls) - len(col.Items)
	msg := fmt.Sprintf("Set aside %d tabs as [%s] %s", len(col.Items), ref, col.ID)
	if skipped > 0 {
		msg += fmt.Sprintf(" (skipped %d)", skipped)
	}
	return &ToolResult{Content: msg}, nil
}

func (s *Server) handleRemoveItem(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, res := s.resolveCollection(args)
	if res != nil {
		return res, nil
	}
	it, res := resolveItem(col, args)
	if res != nil {
		return res, nil
	}
	if err := s.coord.RemoveItem(ctx, col.ID, it.ID); err != nil {
		return errorResult("remove item failed: %v", err)
	}
	return &ToolResult{Content: fmt.Sprintf("Removed %s", it.URL)}, nil
}

func (s *Server) handleRestoreItem(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, res := s.resolveCollection(args)
	if res != nil {
		return res, nil
	}
	it, res := resolveItem(col, args)
	if res != nil {
		return res, nil
	}
	dest, _ := args["destination"].(string)
	if err := s.coord.RestoreItem(ctx, col.ID, it.ID, dest); err != nil {
		return errorResult("restore item failed: %v", openHint(err))
	}
	return &ToolResult{Content: fmt.Sprintf("Restored %s", it.URL)}, nil
}

func (s *Server) handleRemoveCollection(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, res := s.resolveCollection(args)
	if res != nil {
		return res, nil
	}
	if err := s.coord.RemoveCollection(ctx, col.ID); err != nil {
		return errorResult("remove collection failed: %v", err)
	}
	return &ToolResult{Content: fmt.Sprintf("Removed collection %s (%d tabs)", shortID(col.ID), len(col.Items))}, nil
}

func (s *Server) handleRestoreCollection(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, res := s.resolveCollection(args)
	if res != nil {
		return res, nil
	}
	dest, _ := args["destination"].(string)
	if err := s.coord.RestoreCollection(ctx, col.ID, dest); err != nil {
		return errorResult("restore collection failed: %v", openHint(err))
	}
	return &ToolResult{Content: fmt.Sprintf("Restored %d tabs from %s", len(col.Items), shortID(col.ID))}, nil
}

func (s *Server) handleGC(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	n, err := s.coord.CollectGarbage(ctx)
	if err != nil {
		return errorResult("garbage collection failed: %v", err)
	}
	return &ToolResult{Content: fmt.Sprintf("Deleted %d stale attachment records", n)}, nil
}

func (s *Server) handleExport(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	var buf bytes.Buffer
	if err := s.coord.ExportJSON(ctx, s.client.Config().Profile, &buf); err != nil {
		return errorResult("export failed: %v", err)
	}
	return &ToolResult{Content: buf.String()}, nil
}

// resolveCollection finds the collection named by args["collection"]. A non-nil
// result is the error to return to the caller.
func (s *Server) resolveCollection(args map[string]any) (*setaside.Collection, *ToolResult) {
	ref, _ := args["collection"].(string)
	if ref == "" {
		return nil, &ToolResult{Content: "collection is required", IsError: true}
	}
	if !s.coord.Ready() {
		return nil, &ToolResult{Content: setaside.ErrNotReady.Error(), IsError: true}
	}

	cols := s.coord.Collections()
	ids := make([]string, len(cols))
	byID := make(map[string]*setaside.Collection, len(cols))
	for i, col := range cols {
		ids[i] = col.ID
		byID[col.ID] = col
	}
	id, ok := s.session.Match(ref, ids, func(id string) string {
		if col, ok := byID[id]; ok {
			return setaside.Describe(col)
		}
		return ""
	})
	if !ok {
		return nil, &ToolResult{Content: fmt.Sprintf("collection not found: %q\nUse setaside_list to see collections.", ref), IsError: true}
	}
	col, ok := byID[id]
	if !ok {
		return nil, &ToolResult{Content: fmt.Sprintf("collection %s no longer exists", id), IsError: true}
	}
	return col, nil
}

// resolveItem finds the item named by args["item"], either by ID or by 1-based
// position.
func resolveItem(col *setaside.Collection, args map[string]any) (setaside.Item, *ToolResult) {
	var ref string
	switch v := args["item"].(type) {
	case string:
		ref = v
	case float64:
		ref = strconv.Itoa(int(v))
	}
	if ref == "" {
		return setaside.Item{}, &ToolResult{Content: "item is required", IsError: true}
	}
	if it, ok := col.Item(ref); ok {
		return it, nil
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(col.Items) {
		return col.Items[n-1], nil
	}
	return setaside.Item{}, &ToolResult{Content: fmt.Sprintf("item not found in %s: %q", shortID(col.ID), ref), IsError: true}
}

func openHint(err error) error {
	if errors.Is(err, setaside.ErrOpenUnavailable) {
		return fmt.Errorf("%w (this server cannot open tabs; restore from a connected browser instead)", err)
	}
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func title(it setaside.Item) string {
	if it.Title != "" {
		return truncate(it.Title, 80)
	}
	return "(untitled)"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// toStringSlice converts various array types to []string.
// Handles []any, []string, and nil.
func toStringSlice(v any) []string {
	if v == nil {
		return nil
	}

	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
