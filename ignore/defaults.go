package ignore

// DefaultIgnorePatterns are skipped in every project, before .gitignore is
// consulted. Names without glob characters match any path component.
var DefaultIgnorePatterns = []string{
	// Version control
	".git",
	".svn",
	".hg",

	// Dependencies and virtualenvs
	"node_modules",
	"vendor",
	"bower_components",
	".venv",
	"venv",
	"__pycache__",
	".tox",

	// Build output
	"dist",
	"build",
	"out",
	"target",
	"bin",
	"obj",

	// Editor and OS noise
	".idea",
	".vscode",
	".vs",
	".DS_Store",
	"*.swp",
	"*~",

	// Caches and coverage
	".cache",
	".pytest_cache",
	".mypy_cache",
	".next",
	".nuxt",
	"coverage",
	".nyc_output",

	// Generated or bundled text that only adds noise to embeddings
	"*.min.js",
	"*.min.css",
	"*.map",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"poetry.lock",
	"Cargo.lock",
	"go.sum",
}

// skipDirNames are pruned during traversal without consulting ignore files.
var skipDirNames = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "__pycache__": true, ".venv": true, "venv": true,
	".idea": true, ".vscode": true, ".vs": true,
	".cache": true, ".pytest_cache": true, ".mypy_cache": true, ".tox": true,
	".next": true, ".nuxt": true,
}
