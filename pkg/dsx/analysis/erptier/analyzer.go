// Package erptier implements the ERP tier analyzer (spec §4.10): a
// two-tier classification of jobs between an enumerated ERP table set
// and configured OD/FT schema-or-prefix tiers.
//
// Adapted from original_source/erp_impact_analyzer.py's
// ERPImpactAnalyzer class.
package erptier

import (
	"bufio"
	"encoding/csv"
	"os"
	"sort"
	"strings"

	"dsxia/pkg/dsx/index"
	"dsxia/pkg/dsx/model"
	"dsxia/pkg/errors"
)

// TierConfig carries the configured OD/FT schema sets and prefixes
// (§6's erp_impact.* configuration section).
type TierConfig struct {
	ODSchemas  []string
	FTSchemas  []string
	ODPrefixes []string
	FTPrefixes []string
}

// Analyzer classifies tables into ERP/OD/FT tiers and finds tier-1/
// tier-2 jobs for a given column.
type Analyzer struct {
	config          TierConfig
	erpTables       map[string]struct{}
	erpTablesSimple map[string]struct{}
	erpColumnMap    map[string]map[string]struct{}
}

func New(config TierConfig) *Analyzer {
	return &Analyzer{
		config:          config,
		erpTables:       map[string]struct{}{},
		erpTablesSimple: map[string]struct{}{},
		erpColumnMap:    map[string]map[string]struct{}{},
	}
}

// LoadERPTablesFromFile loads the ERP table list from a CSV file of
// `table_full_name[,column_name]` rows (§6). Blank lines and lines
// starting with "#" are ignored.
func (a *Analyzer) LoadERPTablesFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.InputMissing("erptier", "load_erp_tables", err.Error())
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1

	tables := map[string]struct{}{}
	columnMap := map[string]map[string]struct{}{}

	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if len(row) == 0 {
			continue
		}
		entry := strings.TrimSpace(row[0])
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		normalized := normalizeTableName(entry)
		tables[normalized] = struct{}{}

		if len(row) > 1 {
			col := strings.TrimSpace(row[1])
			if col != "" {
				colUpper := strings.ToUpper(col)
				if columnMap[colUpper] == nil {
					columnMap[colUpper] = map[string]struct{}{}
				}
				columnMap[colUpper][normalized] = struct{}{}
			}
		}
	}

	a.erpTables = tables
	a.erpTablesSimple = map[string]struct{}{}
	for t := range tables {
		a.erpTablesSimple[stripSchema(t)] = struct{}{}
	}
	a.erpColumnMap = columnMap
	return nil
}

func normalizeTableName(entry string) string {
	entry = strings.Trim(strings.TrimSpace(entry), `"'`)
	return strings.ToUpper(entry)
}

func stripSchema(full string) string {
	idx := strings.LastIndex(full, ".")
	if idx < 0 {
		return full
	}
	return full[idx+1:]
}

// TableTier classifies one table full name into erp/od/ft/other.
func (a *Analyzer) TableTier(fullName string) string {
	normalized := normalizeTableName(fullName)
	simple := stripSchema(normalized)

	if _, ok := a.erpTables[normalized]; ok {
		return "erp"
	}
	if _, ok := a.erpTablesSimple[simple]; ok {
		return "erp"
	}

	schema := ""
	if idx := strings.LastIndex(normalized, "."); idx >= 0 {
		schema = normalized[:idx]
	}

	if containsUpper(a.config.ODSchemas, schema) || hasAnyPrefix(simple, a.config.ODPrefixes) {
		return "od"
	}
	if containsUpper(a.config.FTSchemas, schema) || hasAnyPrefix(simple, a.config.FTPrefixes) {
		return "ft"
	}
	return "other"
}

func containsUpper(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(value, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// Tier1Job is one job whose source side reaches an allowed ERP table
// and whose target side reaches an OD table.
type Tier1Job struct {
	JobName    string   `json:"job_name"`
	FilePath   string   `json:"file_path"`
	ERPSources []string `json:"erp_sources"`
	ODTargets  []string `json:"od_targets"`
}

// Tier2Job is one job whose source side reaches an OD table that was a
// Tier1 target, and whose target side reaches an FT table.
type Tier2Job struct {
	JobName   string   `json:"job_name"`
	FilePath  string   `json:"file_path"`
	ODSources []string `json:"od_sources"`
	FTTargets []string `json:"ft_targets"`
}

// Report is the output shape described in §4.10.
type Report struct {
	Column              string     `json:"column"`
	ERPTables           []string   `json:"impacted_erp_tables"`
	Tier1Jobs           []Tier1Job `json:"tier1_jobs"`
	Tier2Jobs           []Tier2Job `json:"tier2_jobs"`
	JobsWithColumnCount int        `json:"jobs_with_column_count"`
	CandidateERPTables  int        `json:"candidate_erp_tables"`
}

// AnalyzeColumn runs the two-tier classification for columnName across
// every job in idx.
func (a *Analyzer) AnalyzeColumn(idx *index.JobIndex, columnName string, maxLevel int) (Report, error) {
	if len(a.erpTables) == 0 {
		return Report{}, errors.InputMissing("erptier", "analyze_column", "ERP table list is empty; call LoadERPTablesFromFile first")
	}

	columnUpper := strings.ToUpper(columnName)
	allowed := a.erpTables
	if mapped, ok := a.erpColumnMap[columnUpper]; ok && len(mapped) > 0 {
		allowed = mapped
	}

	jobsWithColumn := idx.JobsByColumn(columnName, "", "")

	tier1Jobs, tier1ODTargets, impactedERP := a.findTier1Jobs(jobsWithColumn, allowed)

	var tier2Jobs []Tier2Job
	if len(tier1ODTargets) > 0 && maxLevel >= 2 {
		tier2Jobs = a.findTier2Jobs(idx, tier1ODTargets)
	}

	erpList := make([]string, 0, len(impactedERP))
	for t := range impactedERP {
		erpList = append(erpList, t)
	}
	sort.Strings(erpList)

	return Report{
		Column:              columnName,
		ERPTables:           erpList,
		Tier1Jobs:           tier1Jobs,
		Tier2Jobs:           tier2Jobs,
		JobsWithColumnCount: len(jobsWithColumn),
		CandidateERPTables:  len(allowed),
	}, nil
}

func (a *Analyzer) findTier1Jobs(jobs []*model.Job, allowed map[string]struct{}) ([]Tier1Job, map[string]struct{}, map[string]struct{}) {
	var tier1 []Tier1Job
	odTargets := map[string]struct{}{}
	impactedERP := map[string]struct{}{}

	for _, job := range jobs {
		erpSources := map[string]struct{}{}
		for _, ref := range job.SourceTables {
			full := normalizeTableName(ref.FullName)
			if a.TableTier(full) != "erp" {
				continue
			}
			if _, ok := allowed[full]; !ok {
				if _, ok := allowed[stripSchema(full)]; !ok {
					continue
				}
			}
			erpSources[full] = struct{}{}
		}

		odT := map[string]struct{}{}
		for _, ref := range job.TargetTables {
			full := normalizeTableName(ref.FullName)
			if a.TableTier(full) == "od" {
				odT[full] = struct{}{}
			}
		}

		if len(erpSources) == 0 || len(odT) == 0 {
			continue
		}

		tier1 = append(tier1, Tier1Job{
			JobName:    job.Name,
			FilePath:   job.FilePath,
			ERPSources: sortedSet(erpSources),
			ODTargets:  sortedSet(odT),
		})
		for t := range odT {
			odTargets[t] = struct{}{}
		}
		for t := range erpSources {
			impactedERP[t] = struct{}{}
		}
	}

	return tier1, odTargets, impactedERP
}

func (a *Analyzer) findTier2Jobs(idx *index.JobIndex, tier1ODTargets map[string]struct{}) []Tier2Job {
	var tier2 []Tier2Job

	for _, job := range idx.AllJobs() {
		odSources := map[string]struct{}{}
		for _, ref := range job.SourceTables {
			full := normalizeTableName(ref.FullName)
			if a.TableTier(full) == "od" {
				odSources[full] = struct{}{}
			}
		}
		if !intersects(odSources, tier1ODTargets) {
			continue
		}

		ftTargets := map[string]struct{}{}
		for _, ref := range job.TargetTables {
			full := normalizeTableName(ref.FullName)
			if a.TableTier(full) == "ft" {
				ftTargets[full] = struct{}{}
			}
		}
		if len(ftTargets) == 0 {
			continue
		}

		tier2 = append(tier2, Tier2Job{
			JobName:   job.Name,
			FilePath:  job.FilePath,
			ODSources: sortedSet(odSources),
			FTTargets: sortedSet(ftTargets),
		})
	}

	return tier2
}

func intersects(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
