// Package graph implements the bipartite Job<->Table dependency graph
// (spec §4.6): four adjacency maps plus the direct/cascading/chain/
// job-dependency/statistics queries built on top of them.
//
// Adapted from original_source/dependency_graph.py's DependencyGraph
// class.
package graph

import (
	"sort"
	"strings"

	"dsxia/pkg/dsx/model"
)

// Graph is the in-memory dependency graph. Not safe for concurrent
// writes; callers rebuild it wholesale from a JobIndex snapshot.
type Graph struct {
	jobToSources map[string]map[string]struct{}
	jobToTargets map[string]map[string]struct{}
	tableToSourceJobs map[string]map[string]struct{}
	tableToTargetJobs map[string]map[string]struct{}
	jobMeta      map[string]*model.Job
}

func New() *Graph {
	return &Graph{
		jobToSources:      map[string]map[string]struct{}{},
		jobToTargets:      map[string]map[string]struct{}{},
		tableToSourceJobs: map[string]map[string]struct{}{},
		tableToTargetJobs: map[string]map[string]struct{}{},
		jobMeta:           map[string]*model.Job{},
	}
}

// AddJob inserts job's source/target tables into the four adjacency
// maps, normalizing names per §4.6 step 1. A job whose source and
// target lists are both empty is not added; AddJob does no role
// classification itself (ClassifyCombined splits a combined list for
// callers that need it).
func (g *Graph) AddJob(job *model.Job) {
	sources := job.SourceTables
	targets := job.TargetTables

	if len(sources) == 0 && len(targets) == 0 {
		return
	}

	sourceNames := map[string]struct{}{}
	targetNames := map[string]struct{}{}

	for _, ref := range sources {
		if n := normalize(ref); n != "" {
			sourceNames[n] = struct{}{}
		}
	}
	for _, ref := range targets {
		if n := normalize(ref); n != "" {
			targetNames[n] = struct{}{}
		}
	}

	g.jobToSources[job.Name] = sourceNames
	g.jobToTargets[job.Name] = targetNames

	for table := range sourceNames {
		addTo(g.tableToSourceJobs, table, job.Name)
	}
	for table := range targetNames {
		addTo(g.tableToTargetJobs, table, job.Name)
	}

	g.jobMeta[job.Name] = job
}

// ClassifyCombined classifies an ambiguous combined table list into
// source/target per §4.6 step 2's priority cues, used by callers that
// feed jobs whose tables weren't pre-split by pkg/dsx/tables (e.g.
// jobs rehydrated from an external metadata format).
func ClassifyCombined(refs []model.TableRef) (sources, targets []model.TableRef) {
	for _, ref := range refs {
		switch classifyOne(ref) {
		case model.RoleSource:
			sources = append(sources, ref)
		case model.RoleTarget:
			targets = append(targets, ref)
		default:
			sources = append(sources, ref)
		}
	}
	return sources, targets
}

func classifyOne(ref model.TableRef) model.Role {
	if ref.Role == model.RoleSource || ref.Role == model.RoleTarget {
		return ref.Role
	}

	stageType := strings.ToUpper(ref.StageType)
	for _, tok := range []string{"INPUT", "SOURCE", "READ", "CUSTOMINPUT"} {
		if strings.Contains(stageType, tok) {
			return model.RoleSource
		}
	}
	for _, tok := range []string{"OUTPUT", "TARGET", "WRITE", "CUSTOMOUTPUT"} {
		if strings.Contains(stageType, tok) {
			return model.RoleTarget
		}
	}

	stageName := strings.ToUpper(ref.StageName)
	if strings.HasPrefix(stageName, "S_") || strings.HasPrefix(stageName, "L_") || strings.Contains(stageName, "SOURCE") {
		return model.RoleSource
	}
	if strings.HasPrefix(stageName, "T_") || strings.HasPrefix(stageName, "W_") || strings.Contains(stageName, "TARGET") {
		return model.RoleTarget
	}

	return model.RoleSource
}

func normalize(ref model.TableRef) string {
	full := ref.FullName
	if full == "" {
		if ref.Schema != "" {
			full = ref.Schema + "." + ref.TableName
		} else {
			full = ref.TableName
		}
	}
	return model.NormalizeTableName(full)
}

func addTo(m map[string]map[string]struct{}, key, value string) {
	if m[key] == nil {
		m[key] = map[string]struct{}{}
	}
	m[key][value] = struct{}{}
}

// DirectImpactJobs returns every job referencing table as source or
// target.
func (g *Graph) DirectImpactJobs(tableName, schema string) []string {
	full := fullUpper(tableName, schema)
	set := map[string]struct{}{}
	for job := range g.tableToSourceJobs[full] {
		set[job] = struct{}{}
	}
	for job := range g.tableToTargetJobs[full] {
		set[job] = struct{}{}
	}
	return sortedKeys(set)
}

// Level is one level of a cascading impact result.
type Level struct {
	Jobs   []string `json:"jobs"`
	Tables []string `json:"tables"`
}

// CascadingImpact performs the level-by-level BFS described in §4.6:
// level 0's frontier is the seed table; each level collects every job
// touching the frontier (as source or target, first-seen-wins), then
// the next frontier is the union of those jobs' target tables not yet
// visited. Terminates when the frontier empties or level == maxLevel.
func (g *Graph) CascadingImpact(tableName, schema string, maxLevel int) map[int]Level {
	full := fullUpper(tableName, schema)

	result := map[int]Level{}
	visitedJobs := map[string]struct{}{}
	visitedTables := map[string]struct{}{full: {}}
	frontier := map[string]struct{}{full: {}}

	for level := 0; level <= maxLevel; level++ {
		levelJobs := map[string]struct{}{}
		levelTables := map[string]struct{}{}

		for table := range frontier {
			jobs := map[string]struct{}{}
			for j := range g.tableToSourceJobs[table] {
				jobs[j] = struct{}{}
			}
			for j := range g.tableToTargetJobs[table] {
				jobs[j] = struct{}{}
			}

			for job := range jobs {
				if _, seen := visitedJobs[job]; seen {
					continue
				}
				levelJobs[job] = struct{}{}
				visitedJobs[job] = struct{}{}

				for target := range g.jobToTargets[job] {
					if _, seen := visitedTables[target]; !seen {
						levelTables[target] = struct{}{}
						visitedTables[target] = struct{}{}
					}
				}
			}
		}

		if len(levelJobs) > 0 || len(levelTables) > 0 {
			result[level] = Level{Jobs: sortedKeys(levelJobs), Tables: sortedKeys(levelTables)}
		}

		frontier = levelTables
		if len(frontier) == 0 {
			break
		}
	}

	return result
}

// DependencyChain enumerates BFS paths [table0, job1, table1, ...]
// from startTable, optionally terminated at endTable, bounded by
// maxDepth, with cycle suppression keyed by (table, job, nextTable).
func (g *Graph) DependencyChain(startTable, endTable string, maxDepth int) [][]string {
	start := strings.ToUpper(startTable)
	end := strings.ToUpper(endTable)

	type queueItem struct {
		table string
		path  []string
		depth int
	}

	var chains [][]string
	queue := []queueItem{{table: start, path: []string{start}, depth: 0}}
	visited := map[string]struct{}{}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth >= maxDepth {
			continue
		}

		for job := range g.tableToSourceJobs[item.table] {
			for next := range g.jobToTargets[job] {
				key := item.table + "->" + job + "->" + next
				if _, seen := visited[key]; seen {
					continue
				}
				visited[key] = struct{}{}

				newPath := append(append([]string{}, item.path...), job, next)

				if end == "" || next == end {
					chains = append(chains, newPath)
				}
				if next != end {
					queue = append(queue, queueItem{table: next, path: newPath, depth: item.depth + 1})
				}
			}
		}
	}

	return chains
}

// JobDependencies reports job's own tables plus prerequisite/dependent
// jobs, excluding job itself.
type JobDependencies struct {
	JobName          string
	SourceTables     []string
	TargetTables     []string
	DependentJobs    []string
	PrerequisiteJobs []string
}

func (g *Graph) JobDependencies(jobName string) JobDependencies {
	sources := sortedKeys(g.jobToSources[jobName])
	targets := sortedKeys(g.jobToTargets[jobName])

	dependents := map[string]struct{}{}
	for _, t := range targets {
		for j := range g.tableToSourceJobs[t] {
			dependents[j] = struct{}{}
		}
	}
	delete(dependents, jobName)

	prerequisites := map[string]struct{}{}
	for _, t := range sources {
		for j := range g.tableToTargetJobs[t] {
			prerequisites[j] = struct{}{}
		}
	}
	delete(prerequisites, jobName)

	return JobDependencies{
		JobName:          jobName,
		SourceTables:     sources,
		TargetTables:     targets,
		DependentJobs:    sortedKeys(dependents),
		PrerequisiteJobs: sortedKeys(prerequisites),
	}
}

// Statistics summarizes the graph's size and shape (§4.6).
type Statistics struct {
	TotalJobs            int
	TotalTables          int
	MostUsedTables       map[string]int
	MostComplexJobs      map[string]int
	AverageTablesPerJob  float64
}

func (g *Graph) Statistics() Statistics {
	tableUsage := map[string]int{}
	allTables := map[string]struct{}{}
	for table, jobs := range g.tableToSourceJobs {
		tableUsage[table] += len(jobs)
		allTables[table] = struct{}{}
	}
	for table, jobs := range g.tableToTargetJobs {
		tableUsage[table] += len(jobs)
		allTables[table] = struct{}{}
	}

	jobTableCount := map[string]int{}
	total := 0
	for job, sources := range g.jobToSources {
		count := len(sources) + len(g.jobToTargets[job])
		jobTableCount[job] = count
		total += count
	}

	avg := 0.0
	if len(g.jobMeta) > 0 {
		avg = float64(total) / float64(len(g.jobMeta))
	}

	return Statistics{
		TotalJobs:           len(g.jobMeta),
		TotalTables:         len(allTables),
		MostUsedTables:      topN(tableUsage, 10),
		MostComplexJobs:     topN(jobTableCount, 10),
		AverageTablesPerJob: avg,
	}
}

// Clear resets the graph to empty.
func (g *Graph) Clear() {
	*g = *New()
}

func fullUpper(tableName, schema string) string {
	full := tableName
	if schema != "" {
		full = schema + "." + tableName
	}
	return strings.ToUpper(full)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func topN(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	pairs := make([]kv, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].v != pairs[j].v {
			return pairs[i].v > pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := map[string]int{}
	for _, p := range pairs {
		out[p.k] = p.v
	}
	return out
}
