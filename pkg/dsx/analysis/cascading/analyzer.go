// Package cascading implements the cascading impact analyzer (spec
// §4.8): a thin dispatcher over graph.Graph's cascading_impact that
// resolves its seed set differently depending on whether the change
// being analyzed is a column change or a table change.
//
// Grounded on original_source/dependency_graph.py (the BFS engine
// this wraps) composed with column_change_analyzer.py's table/job
// resolution style.
package cascading

import (
	"sort"

	"dsxia/pkg/dsx/graph"
	"dsxia/pkg/dsx/index"
)

// Report is the output shape described in §4.8.
type Report struct {
	DirectJobs          []string            `json:"direct_jobs"`
	CascadingLevels     map[int]graph.Level `json:"cascading_levels"`
	TotalImpactedJobs   int                 `json:"total_impacted_jobs"`
	TotalImpactedTables int                 `json:"total_impacted_tables"`
	MaxLevel            int                 `json:"max_level"`
}

// ForColumnChange resolves direct jobs via column-based search, then
// unions per-level cascading_impact results seeded by every table
// those jobs touch.
func ForColumnChange(g *graph.Graph, idx *index.JobIndex, columnName string, maxLevel int) Report {
	directJobs := map[string]struct{}{}
	seedTables := map[string]struct{}{}

	for _, job := range idx.AllJobs() {
		matched := false
		for table, cols := range job.Columns {
			for _, c := range cols {
				if equalFold(c.Name, columnName) {
					directJobs[job.Name] = struct{}{}
					seedTables[table] = struct{}{}
					matched = true
				}
			}
		}
		if matched {
			for _, ref := range job.AllTables() {
				if ref.FullName != "" {
					seedTables[ref.FullName] = struct{}{}
				}
			}
		}
	}

	return buildReport(g, setKeys(directJobs), setKeys(seedTables), maxLevel)
}

// ForTableChange resolves direct jobs from the graph's own table
// index; level 0 is that direct set.
func ForTableChange(g *graph.Graph, tableName, schema string, maxLevel int) Report {
	direct := g.DirectImpactJobs(tableName, schema)
	return buildReport(g, direct, []string{normalizedFullName(tableName, schema)}, maxLevel)
}

func buildReport(g *graph.Graph, directJobs []string, seedTables []string, maxLevel int) Report {
	merged := map[int]graph.Level{}
	impactedJobs := map[string]struct{}{}
	impactedTables := map[string]struct{}{}
	maxSeen := 0

	for _, table := range seedTables {
		levels := g.CascadingImpact(table, "", maxLevel)
		for level, l := range levels {
			existing := merged[level]
			existing.Jobs = unionSorted(existing.Jobs, l.Jobs)
			existing.Tables = unionSorted(existing.Tables, l.Tables)
			merged[level] = existing
			if level > maxSeen {
				maxSeen = level
			}
			for _, j := range l.Jobs {
				impactedJobs[j] = struct{}{}
			}
			for _, tb := range l.Tables {
				impactedTables[tb] = struct{}{}
			}
		}
	}

	for _, j := range directJobs {
		impactedJobs[j] = struct{}{}
	}

	return Report{
		DirectJobs:          directJobs,
		CascadingLevels:     merged,
		TotalImpactedJobs:   len(impactedJobs),
		TotalImpactedTables: len(impactedTables),
		MaxLevel:            maxSeen,
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func setKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionSorted(a, b []string) []string {
	set := map[string]struct{}{}
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	return setKeys(set)
}

func normalizedFullName(tableName, schema string) string {
	if schema != "" {
		return schema + "." + tableName
	}
	return tableName
}
