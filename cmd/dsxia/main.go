// Command dsxia is the batch CLI for the DataStage static impact
// analyzer (SPEC_FULL.md §13.1): build-index rebuilds the job cache
// from a DSX export directory; the remaining subcommands answer one
// impact-analysis query against the last rebuilt index.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dsxia/internal/coreapp"
	"dsxia/internal/metrics"
	"dsxia/pkg/circuit"
	"dsxia/pkg/dsx/analysis/cascading"
	"dsxia/pkg/dsx/analysis/columnchange"
	"dsxia/pkg/dsx/analysis/erptier"
	"dsxia/pkg/dsx/analysis/pkimpact"
	"dsxia/pkg/errors"
)

// observeQuery times fn under the named graph-query kind
// (direct|cascading|chain|pk_impact|erp_tier) for GraphQueryDuration.
func observeQuery(kind string, fn func()) {
	start := time.Now()
	fn()
	metrics.GraphQueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

const (
	exitSuccess       = 0
	exitUserError     = 1
	exitInternalError = 2
	exitInterrupted   = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dsxia <build-index|column-change|cascade|pk-impact|erp-tier|stats> [flags]")
		return exitUserError
	}

	subcommand := args[0]
	rest := args[1:]

	global := flag.NewFlagSet(subcommand, flag.ContinueOnError)
	configFile := global.String("config", "", "path to config file")
	outFile := global.String("out", "", "write JSON output to this file instead of stdout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch subcommand {
	case "build-index":
		force := global.Bool("force", false, "re-parse every file regardless of cache state")
		if err := global.Parse(rest); err != nil {
			return exitUserError
		}
		return cmdBuildIndex(ctx, *configFile, *force)

	case "column-change":
		newName := global.String("new-name", "", "new column name, required for rename")
		if err := global.Parse(rest); err != nil {
			return exitUserError
		}
		return cmdColumnChange(ctx, *configFile, *outFile, global.Args(), *newName)

	case "cascade":
		column := global.String("column", "", "analyze cascading impact seeded from this column instead of a table")
		maxLevel := global.Int("max-level", 3, "maximum BFS level to expand")
		if err := global.Parse(rest); err != nil {
			return exitUserError
		}
		return cmdCascade(ctx, *configFile, *outFile, global.Args(), *column, *maxLevel)

	case "pk-impact":
		schema := global.String("schema", "", "table schema")
		oldPK := global.String("old-pk", "", "comma-separated current primary key columns, bypasses SchemaProvider")
		maxLevel := global.Int("max-level", 2, "maximum cascading level to expand")
		if err := global.Parse(rest); err != nil {
			return exitUserError
		}
		return cmdPKImpact(ctx, *configFile, *outFile, global.Args(), *schema, *oldPK, *maxLevel)

	case "erp-tier":
		maxLevel := global.Int("max-level", 2, "1 to stop after tier-1 jobs, 2 to also compute tier-2")
		if err := global.Parse(rest); err != nil {
			return exitUserError
		}
		return cmdERPTier(ctx, *configFile, *outFile, global.Args(), *maxLevel)

	case "stats":
		if err := global.Parse(rest); err != nil {
			return exitUserError
		}
		return cmdStats(ctx, *configFile, *outFile)

	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		return exitUserError
	}
}

// openAndBuild loads the config and rebuilds the index/graph, the
// common first step of every subcommand except build-index itself
// (which reports its own stats instead of dispatching to an analyzer).
func openAndBuild(ctx context.Context, configFile string, force bool) (*coreapp.CoreContext, int) {
	core, err := coreapp.New(configFile)
	if err != nil {
		return nil, reportFatal(err)
	}
	if _, err := core.RebuildIndex(ctx, force); err != nil {
		return nil, reportFatal(err)
	}
	if ctx.Err() != nil {
		return nil, exitInterrupted
	}
	return core, exitSuccess
}

func cmdBuildIndex(ctx context.Context, configFile string, force bool) int {
	core, err := coreapp.New(configFile)
	if err != nil {
		return reportFatal(err)
	}

	stats, err := core.RebuildIndex(ctx, force)
	if err != nil {
		return reportFatal(err)
	}

	if ctx.Err() != nil {
		return exitInterrupted
	}

	writeJSON(os.Stdout, stats)
	core.Logger.WithField("processed_files", stats.ProcessedFiles).Info("index rebuild complete")
	return exitSuccess
}

func cmdColumnChange(ctx context.Context, configFile, outFile string, positional []string, newName string) int {
	if len(positional) < 3 {
		fmt.Fprintln(os.Stderr, "usage: dsxia column-change <table> <column> <rename|delete|modify|add> [--new-name name]")
		return exitUserError
	}

	core, code := openAndBuild(ctx, configFile, false)
	if core == nil {
		return code
	}

	column := positional[1]
	kind, ok := parseChangeKind(positional[2])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown change kind %q: want rename|delete|modify|add\n", positional[2])
		return exitUserError
	}
	if kind == columnchange.Rename && newName == "" {
		fmt.Fprintln(os.Stderr, "rename requires --new-name")
		return exitUserError
	}

	var report columnchange.Report
	observeQuery("direct", func() {
		report = columnchange.Analyze(core.Index, column, kind, newName, columnchange.ScanThresholds{
			SampleThresholdBytes: core.Config.Analysis.ColumnScan.SampleThresholdBytes,
			SkipThresholdBytes:   core.Config.Analysis.ColumnScan.SkipThresholdBytes,
			SampleBytes:          core.Config.Analysis.ColumnScan.SampleBytes,
		})
	})

	return writeReport(outFile, report)
}

func parseChangeKind(s string) (columnchange.ChangeKind, bool) {
	switch strings.ToLower(s) {
	case "rename":
		return columnchange.Rename, true
	case "delete":
		return columnchange.Delete, true
	case "modify":
		return columnchange.Modify, true
	case "add":
		return columnchange.Add, true
	default:
		return "", false
	}
}

func cmdCascade(ctx context.Context, configFile, outFile string, positional []string, column string, maxLevel int) int {
	core, code := openAndBuild(ctx, configFile, false)
	if core == nil {
		return code
	}

	var report cascading.Report
	if column != "" {
		observeQuery("cascading", func() {
			report = cascading.ForColumnChange(core.Graph, core.Index, column, maxLevel)
		})
		return writeReport(outFile, report)
	}

	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: dsxia cascade <table> | --column <name> [--max-level N]")
		return exitUserError
	}

	tableName, schema := splitTableArg(positional[0])
	observeQuery("cascading", func() {
		report = cascading.ForTableChange(core.Graph, tableName, schema, maxLevel)
	})
	return writeReport(outFile, report)
}

func cmdPKImpact(ctx context.Context, configFile, outFile string, positional []string, schema, oldPKFlag string, maxLevel int) int {
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: dsxia pk-impact <table> [--schema s] [--old-pk a,b] [--max-level N]")
		return exitUserError
	}

	core, code := openAndBuild(ctx, configFile, false)
	if core == nil {
		return code
	}

	tableName := positional[0]
	var oldPK []string
	if oldPKFlag != "" {
		oldPK = strings.Split(oldPKFlag, ",")
	}

	breaker := circuit.NewBreaker(circuit.Config{Name: "schema_provider"}, core.Logger)
	var report pkimpact.Report
	var analyzeErr error
	observeQuery("pk_impact", func() {
		report, analyzeErr = pkimpact.Analyze(pkimpact.Input{
			Table:    tableName,
			Schema:   schema,
			OldPK:    oldPK,
			MaxLevel: maxLevel,
		}, core.Index, core.Graph, unavailableProvider{}, breaker)
	})
	if analyzeErr != nil {
		return reportFatal(analyzeErr)
	}

	return writeReport(outFile, report)
}

// unavailableProvider stands in for a real schema connection: the CLI
// has no database catalog wired in (§11.6 leaves SchemaProvider to the
// embedding process). TableSchema always fails, so callers must pass
// --old-pk to supply the primary key directly; ForeignKeysReferencing
// degrades to an empty result instead of failing the whole report,
// since FK references are supplementary to the PK impact analysis.
type unavailableProvider struct{}

func (unavailableProvider) TableSchema(table, schema string) ([]pkimpact.ColumnInfo, error) {
	return nil, errors.ExternalUnavailable("cmd/dsxia", "table_schema", "no SchemaProvider configured; pass --old-pk")
}

func (unavailableProvider) ForeignKeysReferencing(table, schema string) ([]pkimpact.ForeignKeyRef, error) {
	return nil, nil
}

func cmdERPTier(ctx context.Context, configFile, outFile string, positional []string, maxLevel int) int {
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: dsxia erp-tier <column> [--max-level N]")
		return exitUserError
	}

	core, code := openAndBuild(ctx, configFile, false)
	if core == nil {
		return code
	}

	if core.Config.ERPImpact.ERPTableFile == "" {
		fmt.Fprintln(os.Stderr, "erp_impact.erp_table_file is not configured")
		return exitUserError
	}

	analyzer := erptier.New(erptier.TierConfig{
		ODSchemas:  core.Config.ERPImpact.ODSchemas,
		FTSchemas:  core.Config.ERPImpact.FTSchemas,
		ODPrefixes: core.Config.ERPImpact.ODPrefixes,
		FTPrefixes: core.Config.ERPImpact.FTPrefixes,
	})
	if err := analyzer.LoadERPTablesFromFile(core.Config.ERPImpact.ERPTableFile); err != nil {
		return reportFatal(err)
	}

	var report erptier.Report
	var analyzeErr error
	observeQuery("erp_tier", func() {
		report, analyzeErr = analyzer.AnalyzeColumn(core.Index, positional[0], maxLevel)
	})
	if analyzeErr != nil {
		return reportFatal(analyzeErr)
	}

	return writeReport(outFile, report)
}

func cmdStats(ctx context.Context, configFile, outFile string) int {
	core, code := openAndBuild(ctx, configFile, false)
	if core == nil {
		return code
	}

	return writeReport(outFile, core.Index.Stats())
}

func splitTableArg(arg string) (tableName, schema string) {
	if idx := strings.LastIndex(arg, "."); idx >= 0 {
		return arg[idx+1:], arg[:idx]
	}
	return arg, ""
}

func writeReport(outFile string, report interface{}) int {
	if outFile == "" {
		writeJSON(os.Stdout, report)
		return exitSuccess
	}

	f, err := os.Create(outFile)
	if err != nil {
		return reportFatal(errors.InputMissing("cmd/dsxia", "write_report", err.Error()))
	}
	defer f.Close()
	writeJSON(f, report)
	return exitSuccess
}

func writeJSON(w *os.File, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func reportFatal(err error) int {
	fmt.Fprintln(os.Stderr, err.Error())
	if appErr, ok := err.(*errors.AppError); ok {
		switch appErr.Code {
		case errors.CodeInputMissing, errors.CodeMalformedRecord:
			return exitUserError
		case errors.CodeExternalUnavailable:
			return exitUserError
		default:
			return exitInternalError
		}
	}
	return exitInternalError
}
