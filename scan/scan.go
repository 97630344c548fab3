// Package scan enumerates the files of a project directory for indexing.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/lexandro/embedsearch-mcp/ignore"
)

// Options controls which files are collected.
type Options struct {
	// Filters are ".ext" suffixes or doublestar globs over the relative path.
	Filters          []string
	Exclude          []string
	MaxFileSizeBytes int64
	Workers          int
}

// File is a collected file with its slash-separated path relative to the root.
type File struct {
	RelativePath string
	Content      string
}

// Result is the outcome of one directory scan.
type Result struct {
	Files      []File // sorted by RelativePath
	Skipped    int    // unreadable, binary, too large or blank
	TotalBytes int64
}

// ValidateFilters rejects malformed glob filters.
func ValidateFilters(filters []string) error {
	for _, filter := range filters {
		if isSuffixFilter(filter) {
			continue
		}
		if !doublestar.ValidatePattern(filter) {
			return fmt.Errorf("invalid file filter %q", filter)
		}
	}
	return nil
}

// Directory walks root and reads every eligible file. Walk errors on
// individual entries are skipped; only context cancellation aborts the scan.
func Directory(ctx context.Context, root string, options Options) (*Result, error) {
	if err := ValidateFilters(options.Filters); err != nil {
		return nil, err
	}
	workers := options.Workers
	if workers <= 0 {
		workers = 8
	}

	matcher := ignore.NewMatcher(ignore.MatcherOptions{
		RootDir:        root,
		CustomPatterns: options.Exclude,
	})

	var (
		mu     sync.Mutex
		result Result
	)
	skip := func() {
		mu.Lock()
		result.Skipped++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := gctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			if path == root {
				return err
			}
			skip()
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && matcher.ShouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Match(relPath, false) || !MatchesFilters(relPath, options.Filters) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skip()
			return nil
		}
		if options.MaxFileSizeBytes > 0 && info.Size() > options.MaxFileSizeBytes {
			skip()
			return nil
		}

		// Blocks while all workers are busy.
		g.Go(func() error {
			content, err := os.ReadFile(path)
			if err != nil || isBinaryContent(content) || strings.TrimSpace(string(content)) == "" {
				skip()
				return nil
			}
			mu.Lock()
			result.Files = append(result.Files, File{RelativePath: relPath, Content: string(content)})
			result.TotalBytes += int64(len(content))
			mu.Unlock()
			return nil
		})
		return nil
	})

	waitErr := g.Wait()
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", root, walkErr)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].RelativePath < result.Files[j].RelativePath
	})
	return &result, nil
}

// MatchesFilters reports whether relPath passes at least one filter.
// An empty filter list accepts everything.
func MatchesFilters(relPath string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	lowerPath := strings.ToLower(relPath)
	for _, filter := range filters {
		if isSuffixFilter(filter) {
			if strings.HasSuffix(lowerPath, strings.ToLower(filter)) {
				return true
			}
			continue
		}
		if matched, err := doublestar.Match(filter, relPath); err == nil && matched {
			return true
		}
	}
	return false
}

// isSuffixFilter reports whether filter is a plain ".ext" suffix rather than a glob.
func isSuffixFilter(filter string) bool {
	return strings.HasPrefix(filter, ".") && !strings.ContainsAny(filter, "*?[{/")
}

// isBinaryContent looks for a NUL byte in the first 512 bytes.
func isBinaryContent(data []byte) bool {
	checkSize := 512
	if len(data) < checkSize {
		checkSize = len(data)
	}
	for i := 0; i < checkSize; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}
