package erptier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsxia/pkg/dsx/index"
	"dsxia/pkg/dsx/model"
)

func writeERPFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "erp_tables.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadERPTablesFromFileSkipsBlankAndCommentLines(t *testing.T) {
	a := New(TierConfig{})
	path := writeERPFile(t, "# comment\n\nERP.WM_WRHS_M,WRHS_ID\nERP.WM_ITEM_M\n")
	require.NoError(t, a.LoadERPTablesFromFile(path))

	assert.Equal(t, "erp", a.TableTier("ERP.WM_WRHS_M"))
	assert.Equal(t, "erp", a.TableTier("WM_ITEM_M"))
}

func TestTableTierClassifiesODAndFT(t *testing.T) {
	a := New(TierConfig{
		ODSchemas:  []string{"BIDWADM"},
		FTPrefixes: []string{"FT_"},
	})
	assert.Equal(t, "od", a.TableTier("BIDWADM.T_ACCP"))
	assert.Equal(t, "ft", a.TableTier("BIDWADM2.FT_ACCP_RSLT"))
	assert.Equal(t, "other", a.TableTier("RANDOM.TABLE"))
}

func TestAnalyzeColumnTwoTierClassification(t *testing.T) {
	a := New(TierConfig{ODSchemas: []string{"OD"}, FTPrefixes: []string{"FT_"}})
	path := writeERPFile(t, "ERP.WM_WRHS_M,WRHS_ID\n")
	require.NoError(t, a.LoadERPTablesFromFile(path))

	idx := index.New(index.NewStore(t.TempDir(), false), nil)
	idx.Put("TIER1_JOB", "/a.dsx", &model.Job{
		Name:         "TIER1_JOB",
		FilePath:     "/a.dsx",
		SourceTables: []model.TableRef{{FullName: "ERP.WM_WRHS_M"}},
		TargetTables: []model.TableRef{{FullName: "OD.T_WRHS"}},
		Columns: map[string][]model.Column{
			"ERP.WM_WRHS_M": {{Name: "WRHS_ID"}},
		},
	}, "h", "t")
	idx.Put("TIER2_JOB", "/b.dsx", &model.Job{
		Name:         "TIER2_JOB",
		FilePath:     "/b.dsx",
		SourceTables: []model.TableRef{{FullName: "OD.T_WRHS"}},
		TargetTables: []model.TableRef{{FullName: "BIDWADM.FT_WRHS_RSLT"}},
	}, "h2", "t")

	report, err := a.AnalyzeColumn(idx, "WRHS_ID", 2)
	require.NoError(t, err)

	require.Len(t, report.Tier1Jobs, 1)
	assert.Equal(t, "TIER1_JOB", report.Tier1Jobs[0].JobName)
	require.Len(t, report.Tier2Jobs, 1)
	assert.Equal(t, "TIER2_JOB", report.Tier2Jobs[0].JobName)
}
