// Package mcp exposes the card graph engine as Model Context Protocol tools.
package mcp

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/cardgraph/pkg/engine"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewMCPServer registers the graph tools on a new MCP server.
func NewMCPServer(eng *engine.Engine, logger *slog.Logger) *mcp.Server {
	service := NewService(eng, logger)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "cardgraph",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "build_graph",
		Description: "Build the similarity graph of a flashcard deck. Cards and embeddings are read from JSON files or passed inline.",
	}, service.BuildGraph)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "graph_structure",
		Description: "Describe the structure of the last built graph: bridges, cut vertices, components and the most central cards.",
	}, service.Structure)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "split_graph",
		Description: "Split the last built graph in two around a bridge (bridge_a, bridge_b) or a cut vertex (vertex).",
	}, service.SplitGraph)

	return s
}
