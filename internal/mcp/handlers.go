package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/pipeline"
	"github.com/ziadkadry99/distill/internal/provenance"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

const notIndexed = "No results found. The collection may not be distilled yet. Run `distill run` to build it."

// handleSearchConcepts runs a semantic search over the concept or note index.
func (s *Server) handleSearchConcepts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	kind := vectordb.Kind(request.GetString("kind", string(vectordb.KindConcept)))
	if kind != vectordb.KindConcept && kind != vectordb.KindNote {
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q", kind)), nil
	}

	var filter *vectordb.SearchFilter
	if strategy := request.GetString("strategy", ""); strategy != "" && kind == vectordb.KindConcept {
		filter = &vectordb.SearchFilter{Strategy: &strategy}
	}

	if s.index == nil {
		return mcp.NewToolResultText(notIndexed), nil
	}
	results, err := s.index.Search(ctx, kind, query, limit, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText(notIndexed), nil
	}

	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

// handleGetConcept returns one concept as JSON.
func (s *Server) handleGetConcept(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	c, err := s.store.GetConcept(ctx, id)
	if err != nil {
		return lookupError("concept", id, err), nil
	}
	return jsonResult(c)
}

// handleTraceProvenance renders the provenance chain of a concept.
func (s *Server) handleTraceProvenance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("concept_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: concept_id"), nil
	}

	tr, err := s.graph.Trace(ctx, id)
	if err != nil {
		return lookupError("concept", id, err), nil
	}
	return mcp.NewToolResultText(provenance.Format(tr)), nil
}

// handleDocumentConcepts lists the concepts citing a document.
func (s *Server) handleDocumentConcepts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}

	concepts, err := s.graph.ConceptsForDocument(ctx, docID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load concepts: %v", err)), nil
	}
	if len(concepts) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No concepts cite %s.", docID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d concept(s) cite %s:\n", len(concepts), docID)
	for _, c := range concepts {
		state := ""
		if !c.Active() {
			state = " (superseded)"
		}
		fmt.Fprintf(&sb, "\n- %s%s: %s\n", c.ID, state, c.Theme)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handlePipelineStatus reports store counts and stage progress as JSON.
func (s *Server) handlePipelineStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := pipeline.ReadStatus(ctx, s.store, s.tracker)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read status: %v", err)), nil
	}
	return jsonResult(st)
}

func lookupError(kind, id string, err error) *mcp.CallToolResult {
	if errors.Is(err, model.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("No %s with id %q.", kind, id))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to load %s: %v", kind, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
