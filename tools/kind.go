package tools

// Kind identifies one of the tools this server exposes. The set is closed:
// adding a tool means adding a constant here, a name below and a case in
// server.Setup.
type Kind int

const (
	KindSearchCode Kind = iota
	KindIndexProject
	KindListProjects
	KindProjectInfo
	KindCacheStats

	kindCount
)

// kindNames is sized by kindCount so a missing name fails to compile.
var kindNames = [kindCount]string{
	KindSearchCode:   "search_code",
	KindIndexProject: "index_project",
	KindListProjects: "list_projects",
	KindProjectInfo:  "project_info",
	KindCacheStats:   "cache_stats",
}

// Name returns the wire name registered with the MCP runtime.
func (k Kind) Name() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

func (k Kind) String() string { return k.Name() }

// Kinds returns every tool kind in registration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
