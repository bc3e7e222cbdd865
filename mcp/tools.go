// Package mcp exposes set-aside collections as MCP (Model Context Protocol) tools.
//
// Two approaches are offered:
//
//  1. Full MCP Server (server.go)
//     NewServer builds a complete mcp-go server with stdio transport. This is
//     what `setaside mcp` runs.
//
//  2. Registry Pattern (tools.go)
//     RegisterTools registers the core tools with a registry you provide, for
//     agent frameworks that already have their own MCP plumbing. Handlers take
//     raw JSON params and return the coordinator's values unformatted.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/setaside"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Default     interface{}       `json:"default,omitempty"`
	Items       map[string]string `json:"items,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// RegisterTools registers the list, create and restore tools with registry.
// IDs are full collection and item IDs; session references are only available
// through NewServer.
func RegisterTools(registry Registry, coord *setaside.Coordinator) {
	registry.Register(Tool{
		Name:        "setaside_list",
		Description: "List set-aside tab collections, newest first",
		Parameters:  Schema{},
		Handler:     makeListHandler(coord),
	})

	registry.Register(Tool{
		Name:        "setaside_create",
		Description: "Set a group of tabs aside as a new collection",
		Parameters: Schema{
			"tabs": {
				Type:        "array",
				Description: "Tabs to set aside, each {\"url\", \"title\"}",
				Required:    true,
				Items:       map[string]string{"type": "object"},
			},
		},
		Handler: makeCreateHandler(coord),
	})

	registry.Register(Tool{
		Name:        "setaside_restore",
		Description: "Reopen a collection, or one item of it, and remove what was reopened",
		Parameters: Schema{
			"collection_id": {
				Type:        "string",
				Description: "Collection ID",
				Required:    true,
			},
			"item_id": {
				Type:        "string",
				Description: "Item ID; omit to restore the whole collection",
			},
			"destination": {
				Type:        "string",
				Description: "Browser to open tabs in",
			},
		},
		Handler: makeRestoreHandler(coord),
	})
}

func makeListHandler(coord *setaside.Coordinator) Handler {
	return func(_ context.Context, _ json.RawMessage) (interface{}, error) {
		if !coord.Ready() {
			return nil, setaside.ErrNotReady
		}
		return coord.Collections(), nil
	}
}

// createParams represents the parameters for setaside_create.
type createParams struct {
	Tabs []setaside.Tab `json:"tabs"`
}

func makeCreateHandler(coord *setaside.Coordinator) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		var params createParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		if len(params.Tabs) == 0 {
			return nil, fmt.Errorf("tabs is required")
		}
		return coord.SetAside(ctx, params.Tabs)
	}
}

// restoreParams represents the parameters for setaside_restore.
type restoreParams struct {
	CollectionID string `json:"collection_id"`
	ItemID       string `json:"item_id"`
	Destination  string `json:"destination"`
}

type restoreResult struct {
	Restored int `json:"restored"`
}

func makeRestoreHandler(coord *setaside.Coordinator) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		var params restoreParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		if params.CollectionID == "" {
			return nil, fmt.Errorf("collection_id is required")
		}

		col, ok := coord.Collection(params.CollectionID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", setaside.ErrNotFound, params.CollectionID)
		}
		if params.ItemID != "" {
			if _, ok := col.Item(params.ItemID); !ok {
				return nil, fmt.Errorf("%w: item %s", setaside.ErrNotFound, params.ItemID)
			}
			if err := coord.RestoreItem(ctx, col.ID, params.ItemID, params.Destination); err != nil {
				return nil, err
			}
			return restoreResult{Restored: 1}, nil
		}
		if err := coord.RestoreCollection(ctx, col.ID, params.Destination); err != nil {
			return nil, err
		}
		return restoreResult{Restored: len(col.Items)}, nil
	}
}
