// Package pkimpact implements the PK impact analyzer (spec §4.9): for
// a table's primary key, it finds every job using a PK column, runs
// cascading analysis seeded by the table, and reports foreign keys
// referencing it plus a JOIN-likely heuristic hint per job.
//
// No original_source equivalent exists for this analyzer (§4.9 is new
// to the distilled spec); the SchemaProvider collaboration and its
// resilience pattern are grounded on pkg/circuit/breaker.go, adapted
// from the teacher's external-dependency resilience idiom.
package pkimpact

import (
	"sort"
	"strings"

	"dsxia/pkg/circuit"
	"dsxia/pkg/dsx/analysis/cascading"
	"dsxia/pkg/dsx/graph"
	"dsxia/pkg/dsx/index"
	"dsxia/pkg/errors"
)

// ColumnInfo is one column of a table's schema, as returned by a
// SchemaProvider.
type ColumnInfo struct {
	Name  string
	IsPK  bool
}

// ForeignKeyRef is one FK relationship referencing the analyzed table.
type ForeignKeyRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Column string `json:"column"`
}

// SchemaProvider is the external collaborator supplying live schema
// information (§4.9). Implementations reach a database catalog; the
// analyzer never calls one directly without going through a Breaker.
type SchemaProvider interface {
	TableSchema(table, schema string) ([]ColumnInfo, error)
	ForeignKeysReferencing(table, schema string) ([]ForeignKeyRef, error)
}

// Input bundles the analyzer's parameters.
type Input struct {
	Table    string
	Schema   string
	DBType   string
	OldPK    []string
	MaxLevel int
}

// Report is the output shape described in §4.9.
type Report struct {
	PKColumns      []string            `json:"pk_columns"`
	JobsByPKColumn map[string][]string `json:"jobs_by_pk_column"`
	Cascading      cascading.Report    `json:"cascading"`
	ForeignKeys    []ForeignKeyRef     `json:"foreign_keys"`
	JoinLikelyJobs []string            `json:"join_likely_jobs"`
}

// Analyze runs the PK impact analysis for in, using provider (through
// breaker) to resolve the PK when in.OldPK is absent and to fetch FK
// references.
func Analyze(in Input, idx *index.JobIndex, g *graph.Graph, provider SchemaProvider, breaker *circuit.Breaker) (Report, error) {
	pkColumns := in.OldPK
	if len(pkColumns) == 0 {
		var schemaErr error
		err := breaker.Execute(func() error {
			cols, err := provider.TableSchema(in.Table, in.Schema)
			if err != nil {
				schemaErr = err
				return err
			}
			for _, c := range cols {
				if c.IsPK {
					pkColumns = append(pkColumns, c.Name)
				}
			}
			return nil
		})
		if err != nil {
			return Report{}, errors.ExternalUnavailable("pkimpact", "table_schema",
				"schema provider unavailable: "+errMessage(err, schemaErr))
		}
	}

	jobsByColumn := map[string][]string{}
	joinLikely := map[string]struct{}{}

	for _, pkCol := range pkColumns {
		pkUpper := strings.ToUpper(pkCol)
		for _, job := range idx.AllJobs() {
			for _, cols := range job.Columns {
				for _, c := range cols {
					if strings.ToUpper(c.Name) == pkUpper {
						jobsByColumn[pkCol] = appendUnique(jobsByColumn[pkCol], job.Name)
						joinLikely[job.Name] = struct{}{}
					}
				}
			}
		}
	}

	casc := cascading.ForTableChange(g, in.Table, in.Schema, in.MaxLevel)

	var fks []ForeignKeyRef
	var fkErr error
	err := breaker.Execute(func() error {
		refs, err := provider.ForeignKeysReferencing(in.Table, in.Schema)
		if err != nil {
			fkErr = err
			return err
		}
		fks = refs
		return nil
	})
	if err != nil {
		return Report{}, errors.ExternalUnavailable("pkimpact", "foreign_keys_referencing",
			"schema provider unavailable: "+errMessage(err, fkErr))
	}

	joinJobs := make([]string, 0, len(joinLikely))
	for j := range joinLikely {
		joinJobs = append(joinJobs, j)
	}
	sort.Strings(joinJobs)
	for _, jobs := range jobsByColumn {
		sort.Strings(jobs)
	}

	return Report{
		PKColumns:      pkColumns,
		JobsByPKColumn: jobsByColumn,
		Cascading:      casc,
		ForeignKeys:    fks,
		JoinLikelyJobs: joinJobs,
	}, nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func errMessage(breakerErr, causeErr error) string {
	if causeErr != nil {
		return causeErr.Error()
	}
	return breakerErr.Error()
}
