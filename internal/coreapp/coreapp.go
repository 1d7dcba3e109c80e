// Package coreapp wires the configuration, logging, job index, and
// dependency graph into the one batch pipeline every dsxia subcommand
// drives (SPEC_FULL.md §13.1): build an index from a DSX export
// directory, then answer one of the impact-analysis queries against it.
//
// Adapted from the teacher's internal/app/app.go New()/initializeComponents()
// shape, trimmed from a long-running service with an HTTP server and a
// file-tailing pipeline down to one batch invocation: a CoreContext is
// built once per CLI run rather than kept alive across requests.
package coreapp

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"dsxia/internal/config"
	"dsxia/internal/metrics"
	"dsxia/internal/resourcemonitor"
	"dsxia/internal/watch"
	"dsxia/pkg/dsx/columns"
	"dsxia/pkg/dsx/corpus"
	"dsxia/pkg/dsx/graph"
	"dsxia/pkg/dsx/index"
	"dsxia/pkg/dsx/model"
	"dsxia/pkg/dsx/params"
	"dsxia/pkg/dsx/parser"
	"dsxia/pkg/dsx/tables"
	"dsxia/pkg/errors"
	"dsxia/pkg/workerpool"
)

// CoreContext is the loaded configuration and logger shared by every
// subcommand, plus the index/graph it builds or reloads.
type CoreContext struct {
	Config *config.Config
	Logger *logrus.Logger

	Index *index.JobIndex
	Graph *graph.Graph

	watcher *watch.Watcher
}

// New loads configFile, configures logging, and opens the job index
// store under config.CacheDirectory. It does not rebuild the index or
// start the directory watch; callers that need a fresh index call
// RebuildIndex explicitly.
func New(configFile string) (*CoreContext, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	if level, parseErr := logrus.ParseLevel(cfg.Log.Level); parseErr == nil {
		logger.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	store := index.NewStore(cfg.CacheDirectory, cfg.Index.Compress)
	idx := index.New(store, logger)

	return &CoreContext{
		Config: cfg,
		Logger: logger,
		Index:  idx,
		Graph:  graph.New(),
	}, nil
}

// RebuildIndex discovers every DSX file under cfg.ExportDirectory, parses
// the ones whose (size, mtime) hash changed since the last cached run,
// and rebuilds the in-memory dependency graph from the resulting index
// (spec §4.5/§4.6). force re-parses every file regardless of cache state.
func (c *CoreContext) RebuildIndex(ctx context.Context, force bool) (index.BuildStats, error) {
	start := time.Now()
	defer func() {
		metrics.IndexRebuildDuration.Observe(time.Since(start).Seconds())
	}()

	files, err := corpus.Discover(c.Config.ExportDirectory)
	if err != nil {
		return index.BuildStats{}, errors.InputMissing("coreapp", "rebuild_index", err.Error())
	}

	var monitor *resourcemonitor.Monitor
	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()
	if m, monErr := resourcemonitor.New(resourcemonitor.Config{}, c.Logger); monErr == nil {
		monitor = m
		go monitor.Run(monCtx)
	}

	queueSize := c.Config.WorkerPool.QueueSize
	if queueSize < len(files) {
		queueSize = len(files)
	}
	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{
		MaxWorkers: c.Config.WorkerPool.MaxWorkers,
		QueueSize:  queueSize,
	}, c.Logger)
	if err := pool.Start(); err != nil {
		return index.BuildStats{}, errors.Internal("coreapp", "rebuild_index", err.Error())
	}
	defer pool.Stop()

	stats := index.BuildStats{TotalFiles: len(files)}
	results := make(chan fileOutcome, len(files))

	for _, path := range files {
		path := path
		task := workerpool.Task{
			ID: path,
			Execute: func(ctx context.Context) error {
				results <- processFile(c.Index, path, force)
				return nil
			},
		}
		if err := pool.SubmitTask(task); err != nil {
			results <- fileOutcome{errored: true}
			metrics.ParserErrorsTotal.WithLabelValues("queue_full").Inc()
		}
	}

	cachedHits := 0
	for i := 0; i < len(files); i++ {
		outcome := <-results
		switch {
		case outcome.errored:
			stats.Errors++
		case outcome.skipped:
			stats.SkippedJobs += outcome.jobCount
			stats.CachedJobs += outcome.jobCount
			cachedHits++
		default:
			stats.ProcessedFiles++
			stats.CachedJobs += outcome.jobCount
		}
	}

	if len(files) > 0 {
		metrics.IndexCacheHitRatio.Set(float64(cachedHits) / float64(len(files)))
	}

	c.rebuildGraph()
	return stats, c.Index.Flush()
}

type fileOutcome struct {
	skipped  bool
	errored  bool
	jobCount int
}

// processFile writes every recovered job from path into idx, unless
// force is false and every job previously cached from path is still
// current under its content hash — in which case path is skipped
// without ever being parsed (§4.5's incremental-rebuild contract).
func processFile(idx *index.JobIndex, path string, force bool) fileOutcome {
	contentHash := index.ContentHash(path)

	if !force {
		if cached, count := idx.FileCached(path, contentHash); cached {
			return fileOutcome{skipped: true, jobCount: count}
		}
	}

	parsedJobs, err := parser.ParseFile(path)
	if err != nil {
		metrics.ParserErrorsTotal.WithLabelValues("parse").Inc()
		return fileOutcome{errored: true}
	}
	metrics.ParserFilesTotal.Inc()

	count := 0
	for _, pj := range parsedJobs {
		job := pj.Job

		tableResult := tables.Extract(pj.RawContent)
		job.SourceTables = resolveRefs(tableResult.SourceTables)
		job.TargetTables = resolveRefs(tableResult.TargetTables)
		job.Warnings = append(job.Warnings, tableResult.Warnings...)
		job.ContentHash = contentHash

		job.Columns = columns.Extract(pj.RawContent, job.AllTables())

		idx.Put(job.Name, job.FilePath, job, contentHash, time.Now().UTC().Format(time.RFC3339))
		metrics.ParserJobsTotal.Inc()
		count++
	}

	return fileOutcome{jobCount: count}
}

// resolveRefs runs every extracted ref through params.MapTable, which
// resolves a "#group.$name#.table" parameter expression to a concrete
// (db_type, schema, table) and is a no-op for a plain table name
// (§4.4, mirroring original_source/parameter_mapper.py's map_tables).
func resolveRefs(refs []model.TableRef) []model.TableRef {
	out := make([]model.TableRef, len(refs))
	for i, ref := range refs {
		out[i] = params.MapTable(ref)
	}
	return out
}

// rebuildGraph replaces c.Graph wholesale from the current index
// snapshot (graph.Graph is rebuilt, not incrementally patched).
func (c *CoreContext) rebuildGraph() {
	g := graph.New()
	for _, job := range c.Index.AllJobs() {
		g.AddJob(job)
	}
	c.Graph = g
}

// StartWatch begins incremental cache invalidation over
// config.ExportDirectory if config.Watch.Enabled is set. It is a no-op
// otherwise. Callers must call StopWatch before process exit.
func (c *CoreContext) StartWatch(ctx context.Context) error {
	if !c.Config.Watch.Enabled {
		return nil
	}

	w, err := watch.New(c.Config.ExportDirectory, c.Index, c.Logger)
	if err != nil {
		return errors.ExternalUnavailable("coreapp", "start_watch", err.Error())
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	c.watcher = w
	return nil
}

// StopWatch stops the directory watch started by StartWatch, if any.
func (c *CoreContext) StopWatch() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Stop()
}

// Fatal prints msg to stderr and exits with code, matching the exit-code
// contract in SPEC_FULL.md §13.1 (0 success, 1 user-input error, 2
// internal error, 130 interrupted).
func Fatal(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
