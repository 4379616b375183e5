package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchConceptsTool defines the search_concepts MCP tool.
var searchConceptsTool = mcp.NewTool("search_concepts",
	mcp.WithDescription("Search distilled concepts, or the atomic notes behind them, by meaning."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
	mcp.WithString("kind",
		mcp.Description("What to search (default concepts)"),
		mcp.Enum("concepts", "notes"),
	),
	mcp.WithString("strategy",
		mcp.Description("Only return concepts produced by this strategy"),
		mcp.Enum("group", "cluster"),
	),
)

// getConceptTool defines the get_concept MCP tool.
var getConceptTool = mcp.NewTool("get_concept",
	mcp.WithDescription("Get one distilled concept as JSON, including its perspectives, contradictions and source note references."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Concept id"),
	),
)

// traceProvenanceTool defines the trace_provenance MCP tool.
var traceProvenanceTool = mcp.NewTool("trace_provenance",
	mcp.WithDescription("Trace a concept back to the exact note and document versions it was distilled from."),
	mcp.WithString("concept_id",
		mcp.Required(),
		mcp.Description("Concept id"),
	),
)

// documentConceptsTool defines the document_concepts MCP tool.
var documentConceptsTool = mcp.NewTool("document_concepts",
	mcp.WithDescription("List the concepts that cite notes of a document."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("Document id, the path relative to the source root"),
	),
)

// pipelineStatusTool defines the pipeline_status MCP tool.
var pipelineStatusTool = mcp.NewTool("pipeline_status",
	mcp.WithDescription("Get counts of documents, notes and concepts, per-stage progress, open errors and the last run."),
)
