package pipeline

import (
	"sort"
	"strings"

	"github.com/sells-group/fire-incidents/internal/model"
)

// Filter narrows an incident list. Empty fields match everything.
type Filter struct {
	Type   string
	Level  string
	Search string
}

// Empty reports whether the filter matches every incident.
func (f Filter) Empty() bool {
	return f.Type == "" && f.Level == "" && f.Search == ""
}

// Match reports whether inc passes the filter. Type and Level are exact;
// Search is a case-insensitive substring of the location.
func (f Filter) Match(inc model.Incident) bool {
	if f.Type != "" && inc.Type != f.Type {
		return false
	}
	if f.Level != "" && inc.Level != f.Level {
		return false
	}
	if f.Search != "" {
		return strings.Contains(strings.ToLower(inc.Location), strings.ToLower(f.Search))
	}
	return true
}

// Apply returns the matching incidents in their original order.
func (f Filter) Apply(incidents []model.Incident) []model.Incident {
	if f.Empty() {
		return incidents
	}
	out := make([]model.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if f.Match(inc) {
			out = append(out, inc)
		}
	}
	return out
}

// Facets lists the distinct values available for filtering.
type Facets struct {
	Date   string   `json:"date"`
	Types  []string `json:"types"`
	Levels []string `json:"levels"`
	Total  int      `json:"total"`
}

// BuildFacets collects sorted distinct non-empty types and levels.
func BuildFacets(date string, incidents []model.Incident) Facets {
	types := make(map[string]struct{})
	levels := make(map[string]struct{})
	for _, inc := range incidents {
		if inc.Type != "" {
			types[inc.Type] = struct{}{}
		}
		if inc.Level != "" {
			levels[inc.Level] = struct{}{}
		}
	}
	return Facets{
		Date:   date,
		Types:  sortedKeys(types),
		Levels: sortedKeys(levels),
		Total:  len(incidents),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
