package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CacheStatsArgs defines the input parameters for the cache_stats tool (none required).
type CacheStatsArgs struct{}

// CacheStatsHandler holds the dependencies for the cache_stats tool.
type CacheStatsHandler struct {
	Backend Backend
	Logger  *slog.Logger
}

// Handle processes a cache_stats request. Statistics are computed by the
// backend and passed through unmodified.
func (h *CacheStatsHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args CacheStatsArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	stats, err := h.Backend.CacheStats(ctx)
	if err != nil {
		h.Logger.Error("cache_stats failed", "error", err)
		return errorResult(err), nil, nil
	}

	h.Logger.Info("cache_stats", "elapsed", time.Since(start))

	return successResult(FormatRecord("Cache Statistics", stats), stats), nil, nil
}
