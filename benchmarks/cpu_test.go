package benchmarks

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"testing"

	"dsxia/pkg/dsx/columns"
	"dsxia/pkg/dsx/graph"
	"dsxia/pkg/dsx/index"
	"dsxia/pkg/dsx/model"
	"dsxia/pkg/dsx/parser"
	"dsxia/pkg/dsx/tables"
	"dsxia/pkg/workerpool"

	"github.com/sirupsen/logrus"
)

// TestCPUProfile_SustainedRebuild generates a CPU profile of a rebuild
// over a larger synthetic corpus, for pprof inspection.
func TestCPUProfile_SustainedRebuild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping CPU profiling test in short mode")
	}

	cpuFile, err := os.Create("/tmp/dsxia-cpu.prof")
	if err != nil {
		t.Fatalf("could not create CPU profile: %v", err)
	}
	defer cpuFile.Close()

	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		t.Fatalf("could not start CPU profile: %v", err)
	}
	defer pprof.StopCPUProfile()

	dir := t.TempDir()
	paths, err := writeSyntheticCorpus(dir, 50, 10, 25)
	if err != nil {
		t.Fatalf("failed to write synthetic corpus: %v", err)
	}

	idx := index.New(index.NewStore(t.TempDir(), false), nil)
	for _, path := range paths {
		jobs, err := parser.ParseFile(path)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		for _, pj := range jobs {
			tableResult := tables.Extract(pj.RawContent)
			pj.Job.SourceTables = tableResult.SourceTables
			pj.Job.TargetTables = tableResult.TargetTables
			pj.Job.Columns = columns.Extract(pj.RawContent, pj.Job.AllTables())
			idx.Put(pj.Job.Name, pj.Job.FilePath, pj.Job, index.ContentHash(path), "2026-01-01T00:00:00Z")
		}
	}

	g := graph.New()
	for _, job := range idx.AllJobs() {
		g.AddJob(job)
	}

	t.Logf("profiled rebuild over %d files, %d jobs indexed", len(paths), len(idx.AllJobs()))
	t.Logf("CPU profile: /tmp/dsxia-cpu.prof")
	t.Logf("analyze with: go tool pprof /tmp/dsxia-cpu.prof")
}

// BenchmarkCPU_ParseContent benchmarks raw DSX parsing CPU cost.
func BenchmarkCPU_ParseContent(b *testing.B) {
	content := syntheticFile(5, 20)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := parser.ParseContent(content, "bench.dsx"); err != nil {
			b.Fatalf("parse failed: %v", err)
		}
	}
}

// BenchmarkCPU_TableExtraction benchmarks table extraction cost across
// job bodies of increasing stage counts.
func BenchmarkCPU_TableExtraction(b *testing.B) {
	stageCounts := []int{5, 20, 50, 100}

	for _, n := range stageCounts {
		b.Run(fmt.Sprintf("Stages_%d", n), func(b *testing.B) {
			content := syntheticJob(0, n)

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_ = tables.Extract(content)
			}
		})
	}
}

// BenchmarkCPU_ColumnExtraction benchmarks column extraction cost, the
// most regex-heavy stage of the pipeline (four strategies unioned).
func BenchmarkCPU_ColumnExtraction(b *testing.B) {
	content := syntheticJob(0, 30)
	result := tables.Extract(content)
	refs := append(result.SourceTables, result.TargetTables...)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = columns.Extract(content, refs)
	}
}

// BenchmarkCPU_CascadingImpact benchmarks the cascading impact query at
// different depth limits over a graph built from a moderate synthetic
// corpus.
func BenchmarkCPU_CascadingImpact(b *testing.B) {
	g := buildBenchmarkGraph(200, 10)
	levels := []int{1, 2, 3, 5}

	for _, maxLevel := range levels {
		b.Run(fmt.Sprintf("MaxLevel_%d", maxLevel), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = g.CascadingImpact("SRC_TABLE_0_0", "BIDWADM", maxLevel)
			}
		})
	}
}

func buildBenchmarkGraph(numJobs, numStages int) *graph.Graph {
	g := graph.New()
	for j := 0; j < numJobs; j++ {
		job := &model.Job{Name: fmt.Sprintf("JOB_%d", j)}
		for s := 0; s < numStages; s++ {
			ref := model.TableRef{Schema: "BIDWADM", TableName: fmt.Sprintf("SRC_TABLE_%d_%d", j%20, s), Role: model.RoleSource}
			ref.ComputeFullName()
			job.SourceTables = append(job.SourceTables, ref)

			tref := model.TableRef{Schema: "BIDWADM", TableName: fmt.Sprintf("TGT_TABLE_%d_%d", j, s), Role: model.RoleTarget}
			tref.ComputeFullName()
			job.TargetTables = append(job.TargetTables, tref)
		}
		g.AddJob(job)
	}
	return g
}

// BenchmarkCPU_WorkerPoolConcurrency benchmarks the rebuild pipeline's
// CPU cost under different worker counts, to guide default MaxWorkers
// sizing.
func BenchmarkCPU_WorkerPoolConcurrency(b *testing.B) {
	dir := b.TempDir()
	paths, err := writeSyntheticCorpus(dir, 30, 5, 15)
	if err != nil {
		b.Fatalf("failed to write synthetic corpus: %v", err)
	}

	workerCounts := []int{1, 2, 4, 8, 16}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	for _, workers := range workerCounts {
		b.Run(fmt.Sprintf("Workers_%d", workers), func(b *testing.B) {
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				idx := index.New(index.NewStore(b.TempDir(), false), logger)
				pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{MaxWorkers: workers, QueueSize: len(paths)}, logger)
				if err := pool.Start(); err != nil {
					b.Fatalf("failed to start pool: %v", err)
				}

				done := make(chan struct{}, len(paths))
				for _, path := range paths {
					path := path
					_ = pool.SubmitTask(workerpool.Task{
						ID: path,
						Execute: func(ctx context.Context) error {
							defer func() { done <- struct{}{} }()
							jobs, parseErr := parser.ParseFile(path)
							if parseErr != nil {
								return parseErr
							}
							for _, pj := range jobs {
								tableResult := tables.Extract(pj.RawContent)
								pj.Job.SourceTables = tableResult.SourceTables
								pj.Job.TargetTables = tableResult.TargetTables
								idx.Put(pj.Job.Name, pj.Job.FilePath, pj.Job, "hash", "2026-01-01T00:00:00Z")
							}
							return nil
						},
					})
				}

				for range paths {
					<-done
				}
				pool.Stop()
			}
		})
	}
}
