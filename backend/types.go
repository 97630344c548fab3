package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SearchRequest is the body of a semantic search call.
type SearchRequest struct {
	Project     string `json:"-"`
	Query       string `json:"query"`
	K           int    `json:"k,omitempty"`
	FilePattern string `json:"file_pattern,omitempty"`
	ChunkType   string `json:"chunk_type,omitempty"`
}

// Match is one search hit, most relevant first.
type Match struct {
	Path      string  `json:"path"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	ChunkType string  `json:"chunk_type,omitempty"`
}

// File is one source file sent for indexing.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// IndexResponse is the backend's answer to an index-files call.
type IndexResponse struct {
	ChunksCount int64 // chunks created by this request
	TotalChunks int64 // chunks in the project after this request, when reported
	HasTotal    bool
}

// Project is one entry of the project listing.
type Project struct {
	Name        string `json:"name"`
	ChunksCount *int64 `json:"chunks_count,omitempty"`
}

// decodeMatches accepts either {"results": [...]} or a bare array.
// Field aliases: path/file_path and snippet/content.
func decodeMatches(op string, body []byte) ([]Match, error) {
	items, err := unwrapArray(op, body, "results")
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("result %d is not an object", i)}
		}

		var m Match
		path, ok, err := stringField(fields, "path", "file_path")
		if err != nil || !ok || path == "" {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("result %d has no file path", i), Err: err}
		}
		m.Path = path

		snippet, _, err := stringField(fields, "snippet", "content")
		if err != nil {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("result %d has a malformed snippet", i), Err: err}
		}
		m.Snippet = snippet

		rawScore, ok := fields["score"]
		if !ok {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("result %d has no score", i)}
		}
		if err := json.Unmarshal(rawScore, &m.Score); err != nil {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("result %d has a non-numeric score", i), Err: err}
		}

		chunkType, _, err := stringField(fields, "chunk_type")
		if err != nil {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("result %d has a malformed chunk_type", i), Err: err}
		}
		m.ChunkType = chunkType

		matches = append(matches, m)
	}
	return matches, nil
}

// decodeProjects accepts ["a", ...], [{"name": ...}, ...] or {"projects": [...]}.
func decodeProjects(op string, body []byte) ([]Project, error) {
	items, err := unwrapArray(op, body, "projects")
	if err != nil {
		return nil, err
	}

	projects := make([]Project, 0, len(items))
	for i, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			if name == "" {
				return nil, &ContractError{Op: op, Detail: fmt.Sprintf("project %d has an empty name", i)}
			}
			projects = append(projects, Project{Name: name})
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("project %d is neither a name nor an object", i)}
		}
		name, ok, err := stringField(fields, "name")
		if err != nil || !ok || name == "" {
			return nil, &ContractError{Op: op, Detail: fmt.Sprintf("project %d has no name", i), Err: err}
		}
		p := Project{Name: name}
		if raw, ok := fields["chunks_count"]; ok && !isNull(raw) {
			var count int64
			if err := json.Unmarshal(raw, &count); err != nil {
				return nil, &ContractError{Op: op, Detail: fmt.Sprintf("project %d has a non-integer chunks_count", i), Err: err}
			}
			p.ChunksCount = &count
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// decodeIndexResponse reads chunks_count and total_chunks; both are optional.
func decodeIndexResponse(op string, body []byte) (*IndexResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, &ContractError{Op: op, Detail: "body is not a JSON object", Err: err}
	}

	resp := &IndexResponse{}
	if raw, ok := fields["chunks_count"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &resp.ChunksCount); err != nil {
			return nil, &ContractError{Op: op, Detail: "chunks_count is not an integer", Err: err}
		}
	}
	if raw, ok := fields["total_chunks"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &resp.TotalChunks); err != nil {
			return nil, &ContractError{Op: op, Detail: "total_chunks is not an integer", Err: err}
		}
		resp.HasTotal = true
	}
	return resp, nil
}

// decodeObject checks that body is a JSON object and returns it unmodified.
func decodeObject(op string, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return nil, &ContractError{Op: op, Detail: "body is not a JSON object", Err: err}
	}
	return json.RawMessage(trimmed), nil
}

// unwrapArray returns the elements of a bare JSON array, or of the array held
// under key when the body is an object. An object without key is a contract
// error; only null or [] under key mean an empty listing.
func unwrapArray(op string, body []byte, key string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ContractError{Op: op, Detail: "empty body"}
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, &ContractError{Op: op, Detail: "malformed JSON", Err: err}
		}
		raw, ok := fields[key]
		if !ok {
			return nil, &ContractError{Op: op, Detail: key + " missing"}
		}
		if isNull(raw) {
			return nil, nil
		}
		trimmed = raw
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &ContractError{Op: op, Detail: fmt.Sprintf("%s is not an array", key), Err: err}
	}
	return items, nil
}

// stringField returns the first present key among names. A present key whose
// value is not a string is an error; null counts as absent.
func stringField(fields map[string]json.RawMessage, names ...string) (string, bool, error) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", false, fmt.Errorf("field %q: %w", name, err)
		}
		return value, true, nil
	}
	return "", false, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
