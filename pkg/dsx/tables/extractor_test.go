package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsxia/pkg/dsx/model"
)

func stageRecord(id, oleType, xmlProps string) string {
	return `BEGIN DSRECORD
   Identifier "` + id + `"
   Name "` + id + `"
   OLEType "` + oleType + `"
   XMLProperties Value =+=+=+=
` + xmlProps + `
=+=+=+=
END DSSUBRECORD
END DSRECORD
`
}

func TestExtractVerticaParameterSource(t *testing.T) {
	xmlProps := `<Root><Context>1</Context><TableName><![CDATA[#P_DW_VER.$P_DW_VER_OWN_BIDWADM#.FT_AS_ACCP_RSLT]]></TableName></Root>`
	content := stageRecord("STAGE1", "CCustomInput", xmlProps)

	r := Extract(content)
	require.Len(t, r.SourceTables, 1)
	assert.Equal(t, model.RoleSource, r.SourceTables[0].Role)
	assert.Equal(t, "#P_DW_VER.$P_DW_VER_OWN_BIDWADM#.FT_AS_ACCP_RSLT", r.SourceTables[0].TableName)
	assert.Empty(t, r.TargetTables)
}

func TestExtractMSSQLSelectFallback(t *testing.T) {
	xmlProps := `<Root><Context>1</Context><SelectStatement><![CDATA[SELECT * FROM #P_ERP_MS.$P_ERP_MS_OWN_FILA_ERP#.WM_WRHS_M]]></SelectStatement></Root>`
	content := stageRecord("STAGE1", "CCustomInput", xmlProps)

	r := Extract(content)
	require.Len(t, r.SourceTables, 1)
	assert.Equal(t, "#P_ERP_MS.$P_ERP_MS_OWN_FILA_ERP#.WM_WRHS_M", r.SourceTables[0].TableName)
	assert.Empty(t, r.SourceTables[0].Schema)
}

func TestExtractMissingContextGoesToBoth(t *testing.T) {
	xmlProps := `<Root><TableName><![CDATA[SALES.ORDERS]]></TableName></Root>`
	content := stageRecord("STAGE1", "CCustomStage", xmlProps)

	r := Extract(content)
	require.Len(t, r.SourceTables, 1)
	require.Len(t, r.TargetTables, 1)
	assert.Equal(t, model.RoleUnknown, r.SourceTables[0].Role)
	require.Len(t, r.Warnings, 1)
}

func TestExtractDiscardsUnresolvedParameterPlaceholder(t *testing.T) {
	xmlProps := `<Root><Context>1</Context><TableName><![CDATA[#P_DW_VER.$P_DW_VER_OWN_BIDWADM#.]]></TableName></Root>`
	content := stageRecord("STAGE1", "CCustomInput", xmlProps)

	r := Extract(content)
	assert.Empty(t, r.SourceTables)
	assert.Empty(t, r.TargetTables)
}
