package tools

import (
	"context"
	"encoding/json"

	"github.com/lexandro/embedsearch-mcp/backend"
)

// Backend is the subset of the embed-server client the handlers need.
// *backend.Client implements it.
type Backend interface {
	Search(ctx context.Context, req backend.SearchRequest) ([]backend.Match, error)
	IndexFiles(ctx context.Context, project string, files []backend.File, appendMode bool) (*backend.IndexResponse, error)
	ListProjects(ctx context.Context) ([]backend.Project, error)
	ProjectInfo(ctx context.Context, project string) (json.RawMessage, error)
	CacheStats(ctx context.Context) (json.RawMessage, error)
}

var _ Backend = (*backend.Client)(nil)
