// Package columnchange implements the column-change analyzer (spec
// §4.7): given a column and a change kind, it reports every table and
// job affected and produces a human-readable change guide per job.
//
// Adapted from original_source/column_change_analyzer.py's
// ColumnChangeAnalyzer class.
package columnchange

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"dsxia/pkg/dsx/index"
)

type ChangeKind string

const (
	Rename ChangeKind = "rename"
	Delete ChangeKind = "delete"
	Modify ChangeKind = "modify"
	Add    ChangeKind = "add"
)

// ScanThresholds mirror §4.7's scan optimization and are configurable
// (internal/config analysis.column_scan), defaulting to the values the
// original hard-codes.
type ScanThresholds struct {
	SampleThresholdBytes int64
	SkipThresholdBytes   int64
	SampleBytes          int64
}

func DefaultScanThresholds() ScanThresholds {
	return ScanThresholds{
		SampleThresholdBytes: 100 * 1024 * 1024,
		SkipThresholdBytes:   500 * 1024 * 1024,
		SampleBytes:          10 * 1024 * 1024,
	}
}

// Report is the structured output of Analyze.
type Report struct {
	ColumnName   string              `json:"column_name"`
	ChangeKind   ChangeKind          `json:"change_kind"`
	NewName      string              `json:"new_name"`
	TableJobs    map[string][]string `json:"table_jobs"`
	JobTables    map[string][]string `json:"job_tables"`
	ChangeGuides map[string][]string `json:"change_guides"`
	Overall      OverallGuide        `json:"overall_guide"`
}

// OverallGuide is the cross-job summary guide.
type OverallGuide struct {
	Overview      string   `json:"overview"`
	AffectedScope string   `json:"affected_scope"`
	Steps         []string `json:"steps"`
	DetailedSteps []string `json:"detailed_steps"`
}

// Analyze builds the change-impact report for columnName across every
// job cached in idx, plus a broader raw-text scan over the distinct
// DSX files those jobs came from (§4.7 step 2): a file-level match
// attributes the mention to every job cached from that file, since the
// index retains parsed structure, not each job's raw text.
func Analyze(idx *index.JobIndex, columnName string, kind ChangeKind, newName string, thresholds ScanThresholds) Report {
	tableJobs := map[string]map[string]struct{}{}
	jobTables := map[string]map[string]struct{}{}

	columnUpper := strings.ToUpper(columnName)
	jobsByFile := map[string][]string{}

	for _, job := range idx.AllJobs() {
		jobsByFile[job.FilePath] = append(jobsByFile[job.FilePath], job.Name)

		for table, cols := range job.Columns {
			for _, c := range cols {
				if strings.ToUpper(c.Name) != columnUpper {
					continue
				}
				addEdge(tableJobs, table, job.Name)
				addEdge(jobTables, job.Name, table)
			}
		}
	}

	for file, jobNames := range jobsByFile {
		matched, err := scanFileForToken(file, columnName, thresholds)
		if err != nil || !matched {
			continue
		}
		for _, jobName := range jobNames {
			if jobTables[jobName] == nil {
				jobTables[jobName] = map[string]struct{}{}
			}
		}
	}

	report := Report{
		ColumnName:   columnName,
		ChangeKind:   kind,
		NewName:      newName,
		TableJobs:    flatten(tableJobs),
		JobTables:    flatten(jobTables),
		ChangeGuides: map[string][]string{},
	}

	for jobName, tables := range report.JobTables {
		report.ChangeGuides[jobName] = changeActions(columnName, kind, newName, tables)
	}

	report.Overall = overallGuide(columnName, kind, newName, report)
	return report
}

func addEdge(m map[string]map[string]struct{}, key, value string) {
	if m[key] == nil {
		m[key] = map[string]struct{}{}
	}
	m[key][value] = struct{}{}
}

func flatten(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		keys := make([]string, 0, len(set))
		for v := range set {
			keys = append(keys, v)
		}
		sort.Strings(keys)
		out[k] = keys
	}
	return out
}

func changeActions(column string, kind ChangeKind, newName string, tables []string) []string {
	tableList := strings.Join(tables, ", ")
	switch kind {
	case Rename:
		return []string{
			fmt.Sprintf("search %q in DSX job stages touching %s", column, tableList),
			fmt.Sprintf("replace with %q in every matching stage/link", newName),
			"update any derivation expressions referencing the old name",
			"redeploy the affected job",
			"run regression tests covering the affected job",
		}
	case Delete:
		return []string{
			fmt.Sprintf("search %q in DSX job stages touching %s", column, tableList),
			"remove the column from stage/link schemas and derivations",
			"verify no downstream mapping still expects the column",
			"redeploy the affected job",
			"run regression tests covering the affected job",
		}
	case Modify:
		return []string{
			fmt.Sprintf("search %q in DSX job stages touching %s", column, tableList),
			"update type/precision/nullability in stage/link schemas",
			"check derivations for implicit type assumptions",
			"redeploy the affected job",
			"run regression tests covering the affected job",
		}
	case Add:
		return []string{
			fmt.Sprintf("add %q to stage/link schemas touching %s", column, tableList),
			"map the new column from its source or add a derivation",
			"redeploy the affected job",
			"run regression tests covering the affected job",
		}
	default:
		return []string{fmt.Sprintf("review %q usage in %s", column, tableList)}
	}
}

func overallGuide(column string, kind ChangeKind, newName string, report Report) OverallGuide {
	jobCount := len(report.JobTables)
	tableCount := len(report.TableJobs)

	overview := fmt.Sprintf("%s of column %q affects %d table(s) across %d job(s).", kind, column, tableCount, jobCount)

	scope := "no jobs affected"
	if jobCount > 0 {
		names := make([]string, 0, jobCount)
		for name := range report.JobTables {
			names = append(names, name)
		}
		sort.Strings(names)
		scope = strings.Join(names, ", ")
	}

	steps := []string{
		"review the table/job impact list below",
		"apply the per-job change guide to each affected job",
		"redeploy and regression-test in dependency order",
	}

	detailed := make([]string, 0, jobCount)
	for jobName, actions := range report.ChangeGuides {
		detailed = append(detailed, fmt.Sprintf("%s: %s", jobName, strings.Join(actions, " -> ")))
	}
	sort.Strings(detailed)

	return OverallGuide{
		Overview:      overview,
		AffectedScope: scope,
		Steps:         steps,
		DetailedSteps: detailed,
	}
}

// scanFileForToken implements §4.7's scan optimization: files at or
// below SampleThresholdBytes are read whole; larger files are sampled
// (head+tail SampleBytes); if the sample misses and the file exceeds
// SkipThresholdBytes it is reported as not matching without a full
// read.
func scanFileForToken(path, token string, t ScanThresholds) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	if info.Size() <= t.SampleThresholdBytes {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		return strings.Contains(string(data), token), nil
	}

	sample, err := readHeadAndTail(path, info.Size(), t.SampleBytes)
	if err != nil {
		return false, err
	}
	if strings.Contains(sample, token) {
		return true, nil
	}
	if info.Size() > t.SkipThresholdBytes {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return strings.Contains(string(data), token), nil
}

func readHeadAndTail(path string, size, sampleBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if sampleBytes*2 >= size {
		data := make([]byte, size)
		if _, err := f.ReadAt(data, 0); err != nil {
			return "", err
		}
		return string(data), nil
	}

	head := make([]byte, sampleBytes)
	if _, err := f.ReadAt(head, 0); err != nil {
		return "", err
	}
	tail := make([]byte, sampleBytes)
	if _, err := f.ReadAt(tail, size-sampleBytes); err != nil {
		return "", err
	}
	return string(head) + string(tail), nil
}
