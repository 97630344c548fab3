package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/embedsearch-mcp/backend"
)

// ProjectsArgs defines the input parameters for the list_projects tool (none required).
type ProjectsArgs struct{}

// ProjectsOutput is the structured payload of list_projects, in backend order.
type ProjectsOutput struct {
	Projects []backend.Project `json:"projects"`
}

// ProjectsHandler holds the dependencies for the list_projects tool.
type ProjectsHandler struct {
	Backend Backend
	Logger  *slog.Logger
}

// Handle processes a list_projects request.
func (h *ProjectsHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ProjectsArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	projects, err := h.Backend.ListProjects(ctx)
	if err != nil {
		h.Logger.Error("list_projects failed", "error", err)
		return errorResult(err), nil, nil
	}

	h.Logger.Info("list_projects", "projects", len(projects), "elapsed", time.Since(start))

	if projects == nil {
		projects = []backend.Project{}
	}
	return successResult(FormatProjects(projects), ProjectsOutput{Projects: projects}), nil, nil
}
