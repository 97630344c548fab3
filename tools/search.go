package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/embedsearch-mcp/backend"
)

// MaxSearchResults is the largest k a caller may ask for.
const MaxSearchResults = 100

// SearchArgs defines the input parameters for the search_code tool.
type SearchArgs struct {
	Query       string `json:"query" jsonschema:"Natural language search query (e.g. database connection handling or error retry logic)"`
	Project     string `json:"project,omitempty" jsonschema:"Project name to search in. Omit to use the configured default project or search all projects"`
	K           int    `json:"k,omitempty" jsonschema:"Number of results to return (1-100). Omit for the backend default"`
	FilePattern string `json:"file_pattern,omitempty" jsonschema:"Optional glob to filter files (e.g. *.go or internal/**/*.py)"`
	ChunkType   string `json:"chunk_type,omitempty" jsonschema:"Optional filter: code or text"`
}

// SearchOutput is the structured payload of a successful search_code call.
type SearchOutput struct {
	Project string          `json:"project,omitempty"`
	Query   string          `json:"query"`
	Matches []backend.Match `json:"matches"`
}

// SearchHandler holds the dependencies for the search tool.
type SearchHandler struct {
	Backend        Backend
	DefaultProject string
	Logger         *slog.Logger
}

// Handle processes a search_code request.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	searchReq, err := h.validate(args)
	if err != nil {
		h.Logger.Warn("search_code rejected", "error", err)
		return errorResult(err), nil, nil
	}

	matches, err := h.Backend.Search(ctx, searchReq)
	if err != nil {
		h.Logger.Error("search_code failed",
			"project", searchReq.Project,
			"query", searchReq.Query,
			"error", err,
		)
		return errorResult(err), nil, nil
	}

	h.Logger.Info("search_code",
		"project", searchReq.Project,
		"query", searchReq.Query,
		"results", len(matches),
		"elapsed", time.Since(start),
	)

	if matches == nil {
		matches = []backend.Match{}
	}
	out := SearchOutput{Project: searchReq.Project, Query: searchReq.Query, Matches: matches}
	return successResult(FormatSearchResults(searchReq.Query, searchReq.Project, matches), out), nil, nil
}

// validate checks the arguments and builds the backend request.
func (h *SearchHandler) validate(args SearchArgs) (backend.SearchRequest, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return backend.SearchRequest{}, invalid("query", "parameter is required and must not be blank")
	}
	if args.K < 0 || args.K > MaxSearchResults {
		return backend.SearchRequest{}, invalid("k", "must be between 1 and %d, got %d", MaxSearchResults, args.K)
	}

	filePattern := strings.TrimSpace(args.FilePattern)
	if filePattern != "" && !doublestar.ValidatePattern(filePattern) {
		return backend.SearchRequest{}, invalid("file_pattern", "invalid glob %q", filePattern)
	}

	chunkType := strings.ToLower(strings.TrimSpace(args.ChunkType))
	if chunkType != "" && chunkType != "code" && chunkType != "text" {
		return backend.SearchRequest{}, invalid("chunk_type", "must be \"code\" or \"text\", got %q", args.ChunkType)
	}

	project := strings.TrimSpace(args.Project)
	if project == "" {
		project = h.DefaultProject
	}

	return backend.SearchRequest{
		Project:     project,
		Query:       query,
		K:           args.K,
		FilePattern: filePattern,
		ChunkType:   chunkType,
	}, nil
}
