package ignore

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// IgnoreFileNames are the per-project ignore files read from the root.
var IgnoreFileNames = []string{".gitignore", ".embedignore"}

// Matcher decides which paths of one project are left out of indexing.
// It combines the default patterns, the project's .gitignore and .embedignore,
// and configured exclude globs.
// Reload takes the write lock; all match methods take the read lock.
type Matcher struct {
	mu             sync.RWMutex
	rootDir        string
	ignoreFiles    []gitignore.GitIgnore
	customPatterns []string
}

// MatcherOptions configures the ignore matcher.
type MatcherOptions struct {
	RootDir        string
	CustomPatterns []string // doublestar globs against the slash-separated relative path
}

// NewMatcher creates a matcher for the project rooted at options.RootDir.
func NewMatcher(options MatcherOptions) *Matcher {
	matcher := &Matcher{
		rootDir:        options.RootDir,
		customPatterns: options.CustomPatterns,
	}
	matcher.ignoreFiles = loadIgnoreFiles(options.RootDir)
	return matcher
}

// Match reports whether relativePath (slash-separated, relative to the root)
// is excluded. isDir tells gitignore rules like "build/" how to apply.
func (m *Matcher) Match(relativePath string, isDir bool) bool {
	relativePath = filepath.ToSlash(relativePath)
	if relativePath == "." || relativePath == "" {
		return false
	}

	if matchesDefaultPatterns(relativePath) {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, gi := range m.ignoreFiles {
		// Relative() does not require the path to exist on disk.
		if match := gi.Relative(relativePath, isDir); match != nil && match.Ignore() {
			return true
		}
	}

	return m.matchesCustomPatterns(relativePath)
}

// ShouldIgnore is Match for an absolute path; it stats the path to learn
// whether it is a directory.
func (m *Matcher) ShouldIgnore(absolutePath string) bool {
	relativePath, err := filepath.Rel(m.rootDir, absolutePath)
	if err != nil || strings.HasPrefix(relativePath, "..") {
		return true
	}

	isDir := false
	if info, err := os.Stat(absolutePath); err == nil {
		isDir = info.IsDir()
	}
	return m.Match(relativePath, isDir)
}

// ShouldIgnoreDir reports whether a directory should be pruned from traversal.
func (m *Matcher) ShouldIgnoreDir(absolutePath string) bool {
	if skipDirNames[filepath.Base(absolutePath)] {
		return true
	}
	relativePath, err := filepath.Rel(m.rootDir, absolutePath)
	if err != nil || strings.HasPrefix(relativePath, "..") {
		return true
	}
	return m.Match(relativePath, true)
}

// Reload re-reads the project's ignore files.
func (m *Matcher) Reload() {
	files := loadIgnoreFiles(m.rootDir)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignoreFiles = files
}

// IsIgnoreFile reports whether name is one of the per-project ignore files.
func IsIgnoreFile(name string) bool {
	for _, candidate := range IgnoreFileNames {
		if name == candidate {
			return true
		}
	}
	return false
}

// matchesDefaultPatterns checks the built-in patterns, case-insensitively.
func matchesDefaultPatterns(relativePath string) bool {
	lowerPath := strings.ToLower(relativePath)
	parts := strings.Split(lowerPath, "/")
	baseName := parts[len(parts)-1]

	for _, pattern := range DefaultIgnorePatterns {
		pattern = strings.ToLower(pattern)

		if !strings.ContainsAny(pattern, "*?[") {
			for _, part := range parts {
				if part == pattern {
					return true
				}
			}
			continue
		}

		if matched, err := path.Match(pattern, baseName); err == nil && matched {
			return true
		}
	}
	return false
}

// matchesCustomPatterns tries each configured glob against the full relative
// path and against the base name.
func (m *Matcher) matchesCustomPatterns(relativePath string) bool {
	baseName := path.Base(relativePath)
	for _, pattern := range m.customPatterns {
		if matched, err := doublestar.Match(pattern, relativePath); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, baseName); err == nil && matched {
			return true
		}
	}
	return false
}

// loadIgnoreFiles parses every ignore file present at the project root.
func loadIgnoreFiles(rootDir string) []gitignore.GitIgnore {
	var files []gitignore.GitIgnore
	for _, name := range IgnoreFileNames {
		if gi := loadIgnoreFile(filepath.Join(rootDir, name), rootDir); gi != nil {
			files = append(files, gi)
		}
	}
	return files
}

// loadIgnoreFile reads one ignore file through an io.Reader so the handle is
// closed promptly on Windows.
func loadIgnoreFile(filePath string, baseDir string) gitignore.GitIgnore {
	f, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
