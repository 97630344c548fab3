package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/lexandro/embedsearch-mcp/tools"
)

const (
	Name    = "embedsearch-mcp"
	Version = "0.1.0"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take to drain.
const shutdownTimeout = 10 * time.Second

// Handlers bundles one handler per tool kind.
type Handlers struct {
	Search   *tools.SearchHandler
	Index    *tools.IndexHandler
	Projects *tools.ProjectsHandler
	Info     *tools.ProjectInfoHandler
	Stats    *tools.CacheStatsHandler
}

// Setup creates the MCP server and registers exactly one tool per tools.Kind.
func Setup(h Handlers) *mcp.Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    Name,
			Version: Version,
		},
		&mcp.ServerOptions{
			Instructions: `This server provides semantic code search backed by an embedding server. Searches match by meaning, not by exact text.

Typical workflow:
- Use index_project once per project to upload its source files
- Use search_code with a natural language query to find relevant code
- Use list_projects to see which projects are indexed, and project_info for details on one
- Use cache_stats to inspect the embedding cache of the backend`,
		},
	)

	for _, kind := range tools.Kinds() {
		switch kind {
		case tools.KindSearchCode:
			addTool(mcpServer, &mcp.Tool{
				Name: kind.Name(),
				Description: `Semantic search over indexed code. Finds code by meaning (e.g. "where are database connections opened").

Parameters:
  - query: natural language description of what you are looking for
  - project: project to search. Omit to search the default project or all projects
  - k: number of results (1-100)
  - file_pattern: glob to restrict files (e.g. "**/*.go")
  - chunk_type: "code" or "text"`,
			}, h.Search.Handle)

		case tools.KindIndexProject:
			addTool(mcpServer, &mcp.Tool{
				Name: kind.Name(),
				Description: `Index a local directory so it can be searched. Respects .gitignore and .embedignore, skips binary and oversized files. Re-indexing replaces the project's previous contents.

Parameters:
  - path: absolute path of the project directory
  - project: project name (defaults to the directory name)
  - extensions: comma-separated extensions or globs (e.g. ".go,.md" or "src/**/*.ts")`,
			}, h.Index.Handle)

		case tools.KindListProjects:
			addTool(mcpServer, &mcp.Tool{
				Name:        kind.Name(),
				Description: "List all indexed projects with their chunk counts.",
			}, h.Projects.Handle)

		case tools.KindProjectInfo:
			addTool(mcpServer, &mcp.Tool{
				Name:        kind.Name(),
				Description: "Show details of one indexed project as reported by the embedding server.",
			}, h.Info.Handle)

		case tools.KindCacheStats:
			addTool(mcpServer, &mcp.Tool{
				Name:        kind.Name(),
				Description: "Show embedding cache statistics of the backend (entries, size, hit rate).",
			}, h.Stats.Handle)

		default:
			panic(fmt.Sprintf("server: no registration for tool kind %d", kind))
		}
	}

	return mcpServer
}

// addTool registers a typed handler through tools.Bind, so argument decoding
// failures become tool results rather than JSON-RPC errors.
func addTool[In any](mcpServer *mcp.Server, tool *mcp.Tool, handle tools.HandlerFunc[In]) {
	schema, err := tools.InputSchema[In]()
	if err != nil {
		panic(fmt.Sprintf("server: input schema for %s: %v", tool.Name, err))
	}
	tool.InputSchema = schema
	mcpServer.AddTool(tool, tools.Bind(handle))
}

// HTTPHandler serves mcpServer over the streamable HTTP transport. CORS is
// open so browser-based clients can connect; the session header is exposed.
func HTTPHandler(mcpServer *mcp.Server) http.Handler {
	streamHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, &mcp.StreamableHTTPOptions{})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}).Handler(streamHandler)
}

// ListenAndServe runs an HTTP server on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("MCP server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
