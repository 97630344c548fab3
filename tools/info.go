package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProjectInfoArgs defines the input parameters for the project_info tool.
type ProjectInfoArgs struct {
	Project string `json:"project" jsonschema:"Project name"`
}

// ProjectInfoHandler holds the dependencies for the project_info tool.
type ProjectInfoHandler struct {
	Backend Backend
	Logger  *slog.Logger
}

// Handle processes a project_info request. The backend record is returned
// as structured content without modification.
func (h *ProjectInfoHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ProjectInfoArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	project := strings.TrimSpace(args.Project)
	if project == "" {
		err := invalid("project", "parameter is required")
		h.Logger.Warn("project_info rejected", "error", err)
		return errorResult(err), nil, nil
	}

	record, err := h.Backend.ProjectInfo(ctx, project)
	if err != nil {
		h.Logger.Error("project_info failed", "project", project, "error", err)
		return errorResult(err), nil, nil
	}

	h.Logger.Info("project_info", "project", project, "elapsed", time.Since(start))

	return successResult(FormatRecord("Project: "+project, record), record), nil, nil
}
