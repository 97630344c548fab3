package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/embedsearch-mcp/backend"
	"github.com/lexandro/embedsearch-mcp/config"
	"github.com/lexandro/embedsearch-mcp/scan"
)

// IndexArgs defines the input parameters for the index_project tool.
type IndexArgs struct {
	Path       string `json:"path" jsonschema:"Absolute path to the project directory to index"`
	Project    string `json:"project,omitempty" jsonschema:"Project name (created if new). Defaults to the directory name"`
	Extensions string `json:"extensions,omitempty" jsonschema:"Comma-separated file extensions or globs to index (default .go,.py,.js,.ts,.md)"`
}

// IndexOutput is the structured payload of a successful index_project call.
type IndexOutput struct {
	Project      string   `json:"project"`
	Directory    string   `json:"directory"`
	Filters      []string `json:"filters"`
	FilesIndexed int      `json:"files_indexed"`
	FilesSkipped int      `json:"files_skipped"`
	Bytes        int64    `json:"bytes"`
	Chunks       int64    `json:"chunks"`
	Requests     int      `json:"requests"`
}

// IndexTarget is a resolved, validated indexing job.
type IndexTarget struct {
	Project   string
	Directory string
	Filters   []string
}

// ProjectWatcher is notified after a project was indexed successfully.
type ProjectWatcher interface {
	Watch(target IndexTarget) error
}

// IndexOptions mirrors config.IndexConfig.
type IndexOptions struct {
	Extensions       []string
	BatchSize        int // 0 = every file in one request
	MaxFileSizeBytes int64
	Workers          int
	Exclude          []string
}

// IndexOptionsFrom converts the index section of the configuration.
func IndexOptionsFrom(cfg config.IndexConfig) IndexOptions {
	return IndexOptions{
		Extensions:       cfg.Extensions,
		BatchSize:        cfg.BatchSize,
		MaxFileSizeBytes: cfg.MaxFileSizeBytes,
		Workers:          cfg.Workers,
		Exclude:          cfg.Exclude,
	}
}

// IndexHandler holds the dependencies for the index tool.
type IndexHandler struct {
	Backend Backend
	Options IndexOptions
	Watcher ProjectWatcher // optional
	Logger  *slog.Logger
}

// Handle processes an index_project request.
func (h *IndexHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
	target, err := h.Resolve(args)
	if err != nil {
		h.Logger.Warn("index_project rejected", "path", args.Path, "error", err)
		return errorResult(err), nil, nil
	}

	out, err := h.Run(ctx, target)
	if err != nil {
		return errorResult(err), nil, nil
	}

	if h.Watcher != nil && out.FilesIndexed > 0 {
		if err := h.Watcher.Watch(target); err != nil {
			h.Logger.Warn("failed to watch project", "project", target.Project, "error", err)
		}
	}

	return successResult(FormatIndexSummary(*out), out), nil, nil
}

// Resolve validates the arguments and resolves the directory. The directory
// must exist, be a directory and be readable.
func (h *IndexHandler) Resolve(args IndexArgs) (IndexTarget, error) {
	rawPath := strings.TrimSpace(args.Path)
	if rawPath == "" {
		return IndexTarget{}, invalid("path", "parameter is required")
	}

	dir, err := expandPath(rawPath)
	if err != nil {
		return IndexTarget{}, invalid("path", "cannot resolve %q: %v", rawPath, err)
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return IndexTarget{}, invalid("path", "directory %q does not exist (resolved to %q)", rawPath, dir)
	case err != nil:
		return IndexTarget{}, invalid("path", "cannot access %q: %v", dir, err)
	case !info.IsDir():
		return IndexTarget{}, invalid("path", "%q is not a directory", dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return IndexTarget{}, invalid("path", "directory %q is not readable: %v", dir, err)
	}

	filters := h.Options.Extensions
	if args.Extensions != "" {
		filters = config.SplitList(args.Extensions)
		if len(filters) == 0 {
			return IndexTarget{}, invalid("extensions", "must name at least one extension")
		}
	}
	if err := scan.ValidateFilters(filters); err != nil {
		return IndexTarget{}, invalid("extensions", "%v", err)
	}

	project := strings.TrimSpace(args.Project)
	if project == "" {
		project = filepath.Base(dir)
	}

	return IndexTarget{Project: project, Directory: dir, Filters: filters}, nil
}

// Run scans target and uploads its files. It is shared by the tool handler
// and the watcher's re-index path.
func (h *IndexHandler) Run(ctx context.Context, target IndexTarget) (*IndexOutput, error) {
	start := time.Now()

	result, err := scan.Directory(ctx, target.Directory, scan.Options{
		Filters:          target.Filters,
		Exclude:          h.Options.Exclude,
		MaxFileSizeBytes: h.Options.MaxFileSizeBytes,
		Workers:          h.Options.Workers,
	})
	if err != nil {
		h.Logger.Error("index_project scan failed", "project", target.Project, "dir", target.Directory, "error", err)
		return nil, fmt.Errorf("scanning %s: %w", target.Directory, err)
	}

	out := &IndexOutput{
		Project:      target.Project,
		Directory:    target.Directory,
		Filters:      target.Filters,
		FilesIndexed: len(result.Files),
		FilesSkipped: result.Skipped,
		Bytes:        result.TotalBytes,
	}
	if len(result.Files) == 0 {
		h.Logger.Info("index_project found no files", "project", target.Project, "dir", target.Directory, "skipped", result.Skipped)
		return out, nil
	}

	files := make([]backend.File, len(result.Files))
	for i, f := range result.Files {
		files[i] = backend.File{Path: f.RelativePath, Content: f.Content}
	}

	batches := splitBatches(files, h.Options.BatchSize)
	for i, batch := range batches {
		if len(batches) > 1 {
			h.Logger.Info("indexing batch", "project", target.Project, "batch", i+1, "of", len(batches), "files", len(batch))
		}
		// The first request replaces the project; later ones append to it.
		resp, err := h.Backend.IndexFiles(ctx, target.Project, batch, i > 0)
		out.Requests++
		if err != nil {
			h.Logger.Error("index_project failed",
				"project", target.Project,
				"batch", i+1,
				"error", err,
			)
			return nil, err
		}
		if resp.HasTotal {
			out.Chunks = resp.TotalChunks
		} else {
			out.Chunks += resp.ChunksCount
		}
	}

	h.Logger.Info("index_project",
		"project", target.Project,
		"dir", target.Directory,
		"files", out.FilesIndexed,
		"skipped", out.FilesSkipped,
		"chunks", out.Chunks,
		"requests", out.Requests,
		"elapsed", time.Since(start),
	)
	return out, nil
}

// splitBatches cuts files into batches of size n; n <= 0 means one batch.
func splitBatches(files []backend.File, n int) [][]backend.File {
	if n <= 0 || n >= len(files) {
		return [][]backend.File{files}
	}
	batches := make([][]backend.File, 0, (len(files)+n-1)/n)
	for start := 0; start < len(files); start += n {
		end := start + n
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}

// expandPath resolves a leading ~ and makes the path absolute and clean.
func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[1:])
	}
	return filepath.Abs(p)
}
