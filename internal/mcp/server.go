package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/distill/internal/provenance"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes distilled concepts and their
// provenance.
type Server struct {
	store   *store.Store
	tracker *state.Tracker
	index   vectordb.VectorStore
	graph   *provenance.Graph
	mcp     *server.MCPServer
}

// NewServer creates a new MCP server. index may be nil, in which case
// search reports that nothing is indexed.
func NewServer(st *store.Store, tracker *state.Tracker, index vectordb.VectorStore) *Server {
	s := &Server{
		store:   st,
		tracker: tracker,
		index:   index,
		graph:   provenance.New(st),
	}

	s.mcp = server.NewMCPServer(
		"distill",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchConceptsTool, s.handleSearchConcepts)
	s.mcp.AddTool(getConceptTool, s.handleGetConcept)
	s.mcp.AddTool(traceProvenanceTool, s.handleTraceProvenance)
	s.mcp.AddTool(documentConceptsTool, s.handleDocumentConcepts)
	s.mcp.AddTool(pipelineStatusTool, s.handlePipelineStatus)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
