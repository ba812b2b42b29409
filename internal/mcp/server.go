// Package mcp exposes the Knowledge Vault to MCP clients (e.g. an IDE
// assistant) as a small read-only tool surface, separate from the
// consensus-routed `ask` path.
package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SuperInstance/tripartite/internal/knowledge"
)

const maxQueryLen = 10_000

// Version is set by the caller before calling Serve.
var Version = "dev"

var vault *knowledge.Vault

// Serve starts the MCP server on stdio, backed by vault.
func Serve(v *knowledge.Vault) error {
	vault = v

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tripartite",
		Version: Version,
	}, nil)

	registerTools(server)

	return server.Run(context.Background(), &mcp.StdioTransport{})
}

func registerTools(server *mcp.Server) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "knowledge_search",
		Description: "Search the local Knowledge Vault for relevant document chunks.\n\nArgs:\n  query: Natural language search query\n  top_k: Number of results (default 5, max 50)\n\nReturns ranked chunks with document id, chunk index, and similarity score.",
		Annotations: readOnly,
	}, handleKnowledgeSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "knowledge_stats",
		Description: "Report document_count, chunk_count, and byte_size for the vault.",
		Annotations: readOnly,
	}, handleKnowledgeStats)
}

type searchInput struct {
	Query string `json:"query" jsonschema:"Natural language search query"`
	TopK  int    `json:"top_k" jsonschema:"Number of results (default 5, max 50)"`
}

type emptyInput struct{}

func handleKnowledgeSearch(ctx context.Context, req *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Query) == "" {
		return textResult("Error: query is required."), nil, nil
	}
	if len(input.Query) > maxQueryLen {
		return textResult("Error: query too long (max 10,000 characters)."), nil, nil
	}
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}
	if topK > 50 {
		topK = 50
	}

	results, err := vault.Search(input.Query, topK)
	if err != nil {
		return textResult("Search error: " + err.Error()), nil, nil
	}
	if len(results) == 0 {
		return textResult("No results found."), nil, nil
	}

	data, _ := json.MarshalIndent(results, "", "  ")
	return textResult(string(data)), nil, nil
}

func handleKnowledgeStats(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	stats, err := vault.Stats()
	if err != nil {
		return textResult("Stats error: " + err.Error()), nil, nil
	}
	data, _ := json.MarshalIndent(stats, "", "  ")
	return textResult(string(data)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
