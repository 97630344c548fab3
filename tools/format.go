package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lexandro/embedsearch-mcp/backend"
)

// maxSnippetChars bounds each snippet in the Markdown rendering. The
// structured payload always carries the full snippet.
const maxSnippetChars = 500

// FormatSearchResults renders matches in backend order as Markdown.
func FormatSearchResults(query string, project string, matches []backend.Match) string {
	scope := project
	if scope == "" {
		scope = "all projects"
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No results found for '%s' in %s.", query, scope)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## Search: '%s' in %s (%d results)\n\n", query, scope, len(matches)))

	for i, match := range matches {
		builder.WriteString(fmt.Sprintf("### %d. %s (score: %.3f)\n", i+1, match.Path, match.Score))
		builder.WriteString("```\n")
		builder.WriteString(previewSnippet(match.Snippet))
		builder.WriteString("\n```\n\n")
	}

	return strings.TrimRight(builder.String(), "\n") + "\n"
}

// FormatIndexSummary renders the outcome of index_project.
func FormatIndexSummary(out IndexOutput) string {
	if out.FilesIndexed == 0 {
		return fmt.Sprintf("No files found matching %s in %s. (skipped: %d)",
			strings.Join(out.Filters, ","), out.Directory, out.FilesSkipped)
	}
	return fmt.Sprintf("Indexed project '%s': %d files (%s), %d skipped, %d chunks created in %d request(s).",
		out.Project, out.FilesIndexed, formatFileSize(out.Bytes), out.FilesSkipped, out.Chunks, out.Requests)
}

// FormatProjects renders the project listing in backend order.
func FormatProjects(projects []backend.Project) string {
	if len(projects) == 0 {
		return "No projects indexed yet."
	}

	var builder strings.Builder
	builder.WriteString("## Indexed Projects\n\n")
	for _, p := range projects {
		if p.ChunksCount != nil {
			builder.WriteString(fmt.Sprintf("- **%s**: %d chunks\n", p.Name, *p.ChunksCount))
		} else {
			builder.WriteString(fmt.Sprintf("- **%s**\n", p.Name))
		}
	}
	return builder.String()
}

// FormatRecord renders a backend JSON object as a Markdown bullet list with
// keys in sorted order. Nested values are shown as compact JSON.
func FormatRecord(title string, record json.RawMessage) string {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(record, &fields)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## %s\n\n", title))
	for _, key := range keys {
		builder.WriteString(fmt.Sprintf("- **%s**: %s\n", key, formatValue(fields[key])))
	}
	return builder.String()
}

// formatValue prints strings without quotes and everything else as compact JSON.
func formatValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

// previewSnippet trims a snippet and cuts it at maxSnippetChars runes.
func previewSnippet(snippet string) string {
	snippet = strings.TrimSpace(snippet)
	runes := []rune(snippet)
	if len(runes) <= maxSnippetChars {
		return snippet
	}
	return string(runes[:maxSnippetChars]) + "..."
}

// formatFileSize converts bytes to a human-readable string.
func formatFileSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
