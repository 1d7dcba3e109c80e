package cascading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dsxia/pkg/dsx/graph"
	"dsxia/pkg/dsx/index"
	"dsxia/pkg/dsx/model"
)

func buildGraph() *graph.Graph {
	g := graph.New()
	g.AddJob(&model.Job{
		Name:         "JOB_1",
		SourceTables: []model.TableRef{{FullName: "T0"}},
		TargetTables: []model.TableRef{{FullName: "T1"}},
	})
	g.AddJob(&model.Job{
		Name:         "JOB_2",
		SourceTables: []model.TableRef{{FullName: "T1"}},
		TargetTables: []model.TableRef{{FullName: "T2"}},
	})
	return g
}

func TestForTableChangeSeedsLevelZeroFromDirectJobs(t *testing.T) {
	g := buildGraph()
	report := ForTableChange(g, "T0", "", 3)

	assert.Equal(t, []string{"JOB_1"}, report.DirectJobs)
	assert.Contains(t, report.CascadingLevels[1].Jobs, "JOB_2")
	assert.Equal(t, 2, report.TotalImpactedJobs)
}

func TestForColumnChangeSeedsFromColumnOwningTables(t *testing.T) {
	g := buildGraph()

	idx := index.New(index.NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_1", "/a.dsx", &model.Job{
		Name: "JOB_1",
		Columns: map[string][]model.Column{
			"T0": {{Name: "ACCP_ID"}},
		},
	}, "h", "t")

	report := ForColumnChange(g, idx, "accp_id", 3)

	assert.Contains(t, report.DirectJobs, "JOB_1")
	assert.Positive(t, report.TotalImpactedJobs)
}
