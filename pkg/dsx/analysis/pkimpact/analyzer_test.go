package pkimpact

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsxia/pkg/circuit"
	"dsxia/pkg/dsx/graph"
	"dsxia/pkg/dsx/index"
	"dsxia/pkg/dsx/model"
)

type fakeProvider struct {
	cols      []ColumnInfo
	fks       []ForeignKeyRef
	schemaErr error
	fkErr     error
}

func (f *fakeProvider) TableSchema(table, schema string) ([]ColumnInfo, error) {
	return f.cols, f.schemaErr
}

func (f *fakeProvider) ForeignKeysReferencing(table, schema string) ([]ForeignKeyRef, error) {
	return f.fks, f.fkErr
}

func newBreaker() *circuit.Breaker {
	return circuit.NewBreaker(circuit.Config{Name: "test", Timeout: time.Second}, nil)
}

func TestAnalyzeDerivesPKFromProviderWhenAbsent(t *testing.T) {
	idx := index.New(index.NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_A", "/a.dsx", &model.Job{
		Name: "JOB_A",
		Columns: map[string][]model.Column{
			"BIDWADM.ACCP": {{Name: "ACCP_ID"}},
		},
	}, "h", "t")

	g := graph.New()
	provider := &fakeProvider{cols: []ColumnInfo{{Name: "ACCP_ID", IsPK: true}, {Name: "NAME"}}}

	report, err := Analyze(Input{Table: "ACCP", Schema: "BIDWADM", MaxLevel: 2}, idx, g, provider, newBreaker())
	require.NoError(t, err)

	assert.Equal(t, []string{"ACCP_ID"}, report.PKColumns)
	assert.Contains(t, report.JobsByPKColumn["ACCP_ID"], "JOB_A")
	assert.Contains(t, report.JoinLikelyJobs, "JOB_A")
}

func TestAnalyzeReturnsExternalUnavailableOnSchemaError(t *testing.T) {
	idx := index.New(index.NewStore(t.TempDir(), false), nil)
	g := graph.New()
	provider := &fakeProvider{schemaErr: errors.New("db down")}

	_, err := Analyze(Input{Table: "ACCP", MaxLevel: 1}, idx, g, provider, newBreaker())
	require.Error(t, err)
}

func TestAnalyzeUsesProvidedOldPKWithoutCallingSchema(t *testing.T) {
	idx := index.New(index.NewStore(t.TempDir(), false), nil)
	g := graph.New()
	provider := &fakeProvider{schemaErr: errors.New("should not be called")}

	report, err := Analyze(Input{Table: "ACCP", OldPK: []string{"ACCP_ID"}, MaxLevel: 1}, idx, g, provider, newBreaker())
	require.NoError(t, err)
	assert.Equal(t, []string{"ACCP_ID"}, report.PKColumns)
}
