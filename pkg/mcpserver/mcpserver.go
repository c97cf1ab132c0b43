// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes the conversation API as MCP tools over
// streamable HTTP. It is mounted behind the request gate; by the time a
// tool call reaches a handler here, the caller's identity has been
// verified and placed in the request context.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/coworkhq/cowork-connector/pkg/auth"
	"github.com/coworkhq/cowork-connector/pkg/cowork"
)

const serverName = "cowork-connector"

// ConversationAPI is the slice of the cowork client the tools need.
type ConversationAPI interface {
	List(ctx context.Context, opts cowork.ListOptions) (*cowork.Page, error)
	Search(ctx context.Context, query string, opts cowork.ListOptions) (*cowork.Page, error)
	Get(ctx context.Context, id string) (*cowork.Conversation, error)
}

// Server wires the conversation tools into an MCP server.
type Server struct {
	api     ConversationAPI
	version string
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// New creates a Server dispatching tool calls to api.
func New(api ConversationAPI, opts ...Option) *Server {
	s := &Server{
		api:     api,
		version: "dev",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the streamable HTTP handler serving the MCP endpoint.
// endpointPath is the path the handler is mounted at, normally "/mcp".
func (s *Server) Handler(endpointPath string) http.Handler {
	mcpServer := server.NewMCPServer(
		serverName,
		s.version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	mcpServer.AddTool(mcp.Tool{
		Name:        "list_conversations",
		Description: "List conversations, newest first. Returns a page and an optional cursor for the next one.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"cursor": map[string]interface{}{
					"type":        "string",
					"description": "Opaque cursor from a previous page",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of conversations to return",
				},
			},
		},
	}, s.listConversations)

	mcpServer.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Get a single conversation with its full message history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation ID",
				},
			},
			Required: []string{"id"},
		},
	}, s.getConversation)

	mcpServer.AddTool(mcp.Tool{
		Name:        "search_conversations",
		Description: "Search conversations by free-text query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"cursor": map[string]interface{}{
					"type":        "string",
					"description": "Opaque cursor from a previous page",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of conversations to return",
				},
			},
			Required: []string{"query"},
		},
	}, s.searchConversations)

	return server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(endpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			// Carry the gate's verified credential into tool handlers.
			if cred, ok := auth.CredentialFromContext(r.Context()); ok {
				ctx = auth.WithCredential(ctx, cred)
			}
			return ctx
		}),
	)
}

// callerIdentity returns the gate-verified identity for log lines, or
// "unknown" when the server runs without the gate (tests, local use).
func callerIdentity(ctx context.Context) string {
	if cred, ok := auth.CredentialFromContext(ctx); ok {
		return cred.Identity
	}
	return "unknown"
}

type pageArgs struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) listConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := &pageArgs{}
	if err := request.BindArguments(args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	page, err := s.api.List(ctx, cowork.ListOptions{Cursor: args.Cursor, Limit: args.Limit})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list conversations: %v", err)), nil
	}

	s.logger.Info("tool call", "tool", "list_conversations", "identity", callerIdentity(ctx),
		"count", len(page.Conversations))
	return jsonResult(page)
}

type getArgs struct {
	ID string `json:"id"`
}

func (s *Server) getConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := &getArgs{}
	if err := request.BindArguments(args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}
	if args.ID == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	conv, err := s.api.Get(ctx, args.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get conversation: %v", err)), nil
	}

	s.logger.Info("tool call", "tool", "get_conversation", "identity", callerIdentity(ctx),
		"conversation", args.ID)
	return jsonResult(conv)
}

type searchArgs struct {
	Query  string `json:"query"`
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) searchConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := &searchArgs{}
	if err := request.BindArguments(args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}
	if args.Query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	page, err := s.api.Search(ctx, args.Query, cowork.ListOptions{Cursor: args.Cursor, Limit: args.Limit})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search conversations: %v", err)), nil
	}

	s.logger.Info("tool call", "tool", "search_conversations", "identity", callerIdentity(ctx),
		"count", len(page.Conversations))
	return jsonResult(page)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
