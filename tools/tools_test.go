package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/embedsearch-mcp/backend"
)

const testTimeout = 5 * time.Second

// --- search_code ---

func TestSearchHandler_ReturnsBackendMatches(t *testing.T) {
	client, mock := newMockBackend(t, testTimeout,
		respond(http.StatusOK, `[{"path": "cfg.py", "snippet": "...", "score": 0.92}]`))
	h := &SearchHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "parse configuration file", Project: "demo"})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	out, ok := result.StructuredContent.(SearchOutput)
	require.True(t, ok, "structured content is %T", result.StructuredContent)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, "cfg.py", out.Matches[0].Path)
	assert.Equal(t, 0.92, out.Matches[0].Score)
	assert.Equal(t, "...", out.Matches[0].Snippet)

	assert.Equal(t, 1, mock.Calls())
	req := mock.Requests()[0]
	assert.Equal(t, "/projects/demo/search", req.Path)
	assert.JSONEq(t, `{"query": "parse configuration file"}`, req.Body)
	assert.Contains(t, resultText(t, result), "cfg.py (score: 0.920)")
}

func TestSearchHandler_ForwardsOptionalFilters(t *testing.T) {
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{"results": []}`))
	h := &SearchHandler{Backend: client, DefaultProject: "core", Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{
		Query:       "  retry logic ",
		K:           3,
		FilePattern: "internal/**/*.go",
		ChunkType:   "Code",
	})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	req := mock.Requests()[0]
	assert.Equal(t, "/projects/core/search", req.Path, "default project is used")
	assert.JSONEq(t, `{"query": "retry logic", "k": 3, "file_pattern": "internal/**/*.go", "chunk_type": "code"}`, req.Body)
	assert.Contains(t, resultText(t, result), "No results found")

	out := result.StructuredContent.(SearchOutput)
	assert.NotNil(t, out.Matches)
	assert.Empty(t, out.Matches)
}

func TestSearchHandler_ValidationErrorsMakeNoCalls(t *testing.T) {
	tests := []struct {
		name string
		args SearchArgs
		want string
	}{
		{"missing query", SearchArgs{}, "query"},
		{"blank query", SearchArgs{Query: " \t\n"}, "query"},
		{"negative k", SearchArgs{Query: "q", K: -1}, "k"},
		{"k too large", SearchArgs{Query: "q", K: MaxSearchResults + 1}, "k"},
		{"bad glob", SearchArgs{Query: "q", FilePattern: "src/[a-"}, "file_pattern"},
		{"bad chunk type", SearchArgs{Query: "q", ChunkType: "binary"}, "chunk_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `[]`))
			h := &SearchHandler{Backend: client, Logger: testLogger()}

			result, _, err := h.Handle(context.Background(), nil, tt.args)
			require.NoError(t, err)
			assert.True(t, result.IsError)

			text := resultText(t, result)
			assert.True(t, strings.HasPrefix(text, "Validation error: "), text)
			assert.Contains(t, text, tt.want)
			assert.Zero(t, mock.Calls())
		})
	}
}

func TestSearchHandler_ContractError(t *testing.T) {
	client, _ := newMockBackend(t, testTimeout, respond(http.StatusOK, `[{"path": "a.go", "score": "high"}]`))
	h := &SearchHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "q", Project: "p"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, result), "Backend contract error: "), resultText(t, result))
}

func TestSearchHandler_UnexpectedObjectIsContractError(t *testing.T) {
	client, _ := newMockBackend(t, testTimeout, respond(http.StatusOK, `{"error": "index corrupted"}`))
	h := &SearchHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "q", Project: "p"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Backend contract error: "), text)
	assert.NotContains(t, text, "No results found")
}

// --- index_project ---

func newProjectDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "demo")
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func defaultIndexOptions() IndexOptions {
	return IndexOptions{
		Extensions:       []string{".go", ".py", ".js", ".ts", ".md"},
		MaxFileSizeBytes: 1024 * 1024,
		Workers:          4,
	}
}

type recordingWatcher struct {
	targets []IndexTarget
}

func (w *recordingWatcher) Watch(target IndexTarget) error {
	w.targets = append(w.targets, target)
	return nil
}

func TestIndexHandler_SingleRequest(t *testing.T) {
	dir := newProjectDir(t, map[string]string{
		"main.go":               "package main\n",
		"pkg/util.py":           "def util():\n    pass\n",
		"notes.txt":             "not indexed\n",
		"node_modules/dep/x.js": "ignored\n",
		".gitignore":            "gen/\n",
		"gen/generated.go":      "package gen\n",
	})
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{"chunks_count": 7, "total_chunks": 7}`))
	watcher := &recordingWatcher{}
	h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Watcher: watcher, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, IndexArgs{Path: dir})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	out, ok := result.StructuredContent.(*IndexOutput)
	require.True(t, ok, "structured content is %T", result.StructuredContent)
	assert.Equal(t, "demo", out.Project, "project defaults to the directory name")
	assert.Equal(t, 2, out.FilesIndexed)
	assert.EqualValues(t, 7, out.Chunks)
	assert.Equal(t, 1, out.Requests)

	require.Equal(t, 1, mock.Calls())
	req := mock.Requests()[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/projects/demo/index-files", req.Path)
	assert.Equal(t, "append=false", req.Query)

	var body struct {
		Files []backend.File `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	require.Len(t, body.Files, 2)
	assert.Equal(t, "main.go", body.Files[0].Path)
	assert.Equal(t, "pkg/util.py", body.Files[1].Path)

	require.Len(t, watcher.targets, 1)
	assert.Equal(t, dir, watcher.targets[0].Directory)
}

func TestIndexHandler_Batches(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 25; i++ {
		files[fmt.Sprintf("f%02d.go", i)] = "package f\n"
	}
	dir := newProjectDir(t, files)

	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{"chunks_count": 2}`))
	options := defaultIndexOptions()
	options.BatchSize = 10
	h := &IndexHandler{Backend: client, Options: options, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, IndexArgs{Path: dir, Project: "batched"})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	requests := mock.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, "append=false", requests[0].Query)
	assert.Equal(t, "append=true", requests[1].Query)
	assert.Equal(t, "append=true", requests[2].Query)

	out := result.StructuredContent.(*IndexOutput)
	assert.EqualValues(t, 6, out.Chunks, "chunks are summed when no total is reported")
	assert.Equal(t, 25, out.FilesIndexed)
}

func TestIndexHandler_MissingDirectory(t *testing.T) {
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{}`))
	h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Logger: testLogger()}

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	result, _, err := h.Handle(context.Background(), nil, IndexArgs{Path: missing})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, result), "Validation error: "), resultText(t, result))
	assert.Contains(t, resultText(t, result), "does not exist")
	assert.Zero(t, mock.Calls())
}

func TestIndexHandler_ValidationErrorsMakeNoCalls(t *testing.T) {
	dir := newProjectDir(t, map[string]string{"main.go": "package main\n"})
	file := filepath.Join(dir, "main.go")

	tests := []struct {
		name string
		args IndexArgs
	}{
		{"missing path", IndexArgs{}},
		{"path is a file", IndexArgs{Path: file}},
		{"bad extension glob", IndexArgs{Path: dir, Extensions: "src/[a-"}},
		{"empty extension list", IndexArgs{Path: dir, Extensions: " , "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{}`))
			h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Logger: testLogger()}

			result, _, err := h.Handle(context.Background(), nil, tt.args)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.True(t, strings.HasPrefix(resultText(t, result), "Validation error: "), resultText(t, result))
			assert.Zero(t, mock.Calls())
		})
	}
}

func TestIndexHandler_NoMatchingFiles(t *testing.T) {
	dir := newProjectDir(t, map[string]string{"notes.txt": "hello\n"})
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{}`))
	watcher := &recordingWatcher{}
	h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Watcher: watcher, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, IndexArgs{Path: dir})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No files found")
	assert.Zero(t, mock.Calls())
	assert.Empty(t, watcher.targets)
}

func TestIndexHandler_BackendRejects(t *testing.T) {
	dir := newProjectDir(t, map[string]string{"main.go": "package main\n"})
	client, _ := newMockBackend(t, testTimeout, respond(http.StatusUnprocessableEntity, `{"detail": "invalid project name"}`))
	h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, IndexArgs{Path: dir, Project: "bad name"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Backend unavailable: "), text)
	assert.Contains(t, text, "invalid project name")
}

func TestIndexHandler_CustomExtensions(t *testing.T) {
	dir := newProjectDir(t, map[string]string{
		"main.go":     "package main\n",
		"lib/core.rs": "fn core() {}\n",
	})
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{"chunks_count": 1}`))
	h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, IndexArgs{Path: dir, Extensions: ".rs"})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var body struct {
		Files []backend.File `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(mock.Requests()[0].Body), &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "lib/core.rs", body.Files[0].Path)
}

// --- list_projects ---

func TestProjectsHandler_KeepsBackendOrder(t *testing.T) {
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `["repoA", "repoB"]`))
	h := &ProjectsHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ProjectsArgs{})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	out := result.StructuredContent.(ProjectsOutput)
	names := make([]string, 0, len(out.Projects))
	for _, p := range out.Projects {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"repoA", "repoB"}, names)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, "/projects", mock.Requests()[0].Path)
}

func TestProjectsHandler_NoProjects(t *testing.T) {
	client, _ := newMockBackend(t, testTimeout, respond(http.StatusOK, `{"projects": []}`))
	h := &ProjectsHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ProjectsArgs{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "No projects indexed yet.", resultText(t, result))
	assert.NotNil(t, result.StructuredContent.(ProjectsOutput).Projects)
}

// --- project_info ---

func TestProjectInfoHandler_PassesRecordThrough(t *testing.T) {
	const record = `{"name": "demo", "chunks_count": 120, "status": "ready", "files": 14}`
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, record))
	h := &ProjectInfoHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ProjectInfoArgs{Project: "demo"})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	raw, ok := result.StructuredContent.(json.RawMessage)
	require.True(t, ok, "structured content is %T", result.StructuredContent)
	assert.JSONEq(t, record, string(raw))
	assert.Equal(t, "/projects/demo", mock.Requests()[0].Path)
	assert.Contains(t, resultText(t, result), "- **status**: ready")
}

func TestProjectInfoHandler_NotFoundIsDistinct(t *testing.T) {
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusNotFound, `{"detail": "Project not found"}`))
	h := &ProjectInfoHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ProjectInfoArgs{Project: "ghost"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, 1, mock.Calls())

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Not found: "), text)
	assert.NotContains(t, text, "Validation error")
}

func TestProjectInfoHandler_MissingProject(t *testing.T) {
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, `{}`))
	h := &ProjectInfoHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ProjectInfoArgs{Project: "   "})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, result), "Validation error: "))
	assert.Zero(t, mock.Calls())
}

// --- cache_stats ---

func TestCacheStatsHandler_PassesStatsThrough(t *testing.T) {
	const stats = `{"entries": 5120, "size_bytes": 20971520, "hit_rate": 0.87}`
	client, mock := newMockBackend(t, testTimeout, respond(http.StatusOK, stats))
	h := &CacheStatsHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, CacheStatsArgs{})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	assert.JSONEq(t, stats, string(result.StructuredContent.(json.RawMessage)))
	assert.Equal(t, "/cache/stats", mock.Requests()[0].Path)
	assert.Contains(t, resultText(t, result), "## Cache Statistics")
}

func TestCacheStatsHandler_BackendDown(t *testing.T) {
	client, _ := newMockBackend(t, testTimeout, respond(http.StatusBadGateway, "upstream exploded"))
	h := &CacheStatsHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, CacheStatsArgs{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Backend unavailable: "), text)
	assert.Contains(t, text, "upstream exploded")
}

// --- timeouts ---

func TestTimeout_ThenRecovers(t *testing.T) {
	var slow atomic.Bool
	slow.Store(true)
	client, mock := newMockBackend(t, 100*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		respond(http.StatusOK, `["repoA"]`)(w, r)
	})
	h := &ProjectsHandler{Backend: client, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ProjectsArgs{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, result), "Backend unavailable: "), resultText(t, result))

	slow.Store(false)
	result, _, err = h.Handle(context.Background(), nil, ProjectsArgs{})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, "repoA", result.StructuredContent.(ProjectsOutput).Projects[0].Name)
	assert.Equal(t, 2, mock.Calls())
}

func TestEveryToolTimesOutAsUnavailable(t *testing.T) {
	dir := newProjectDir(t, map[string]string{"main.go": "package main\n"})
	client, _ := newMockBackend(t, 50*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	logger := testLogger()
	ctx := context.Background()

	calls := map[Kind]func() (*mcp.CallToolResult, any, error){
		KindSearchCode: func() (*mcp.CallToolResult, any, error) {
			return (&SearchHandler{Backend: client, Logger: logger}).Handle(ctx, nil, SearchArgs{Query: "q"})
		},
		KindIndexProject: func() (*mcp.CallToolResult, any, error) {
			h := &IndexHandler{Backend: client, Options: defaultIndexOptions(), Logger: logger}
			return h.Handle(ctx, nil, IndexArgs{Path: dir})
		},
		KindListProjects: func() (*mcp.CallToolResult, any, error) {
			return (&ProjectsHandler{Backend: client, Logger: logger}).Handle(ctx, nil, ProjectsArgs{})
		},
		KindProjectInfo: func() (*mcp.CallToolResult, any, error) {
			return (&ProjectInfoHandler{Backend: client, Logger: logger}).Handle(ctx, nil, ProjectInfoArgs{Project: "p"})
		},
		KindCacheStats: func() (*mcp.CallToolResult, any, error) {
			return (&CacheStatsHandler{Backend: client, Logger: logger}).Handle(ctx, nil, CacheStatsArgs{})
		},
	}
	require.Len(t, calls, len(Kinds()))

	for _, kind := range Kinds() {
		t.Run(kind.Name(), func(t *testing.T) {
			result, _, err := calls[kind]()
			require.NoError(t, err)
			assert.True(t, result.IsError)
			text := resultText(t, result)
			assert.True(t, strings.HasPrefix(text, "Backend unavailable: "), text)
		})
	}
}
