// Package benchmarks measures the DSX parse -> table/column extraction
// -> index -> graph pipeline under synthetic load, standing in for a
// real multi-megabyte DSX export without checking one into the repo.
package benchmarks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// syntheticJob renders one BEGIN DSJOB block with numStages alternating
// source/target custom stages, a link between consecutive stages
// carrying a handful of columns, and a header/footer matching the
// shapes pkg/dsx/parser, pkg/dsx/tables and pkg/dsx/columns all expect.
func syntheticJob(jobIndex, numStages int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BEGIN DSJOB\n")
	fmt.Fprintf(&b, "   Identifier \"JOB_%d\"\n", jobIndex)
	fmt.Fprintf(&b, "   DateModified \"2026-01-01\"\n")
	fmt.Fprintf(&b, "   TimeModified \"00:00:00\"\n")
	fmt.Fprintf(&b, "BEGIN DSRECORD\n")
	fmt.Fprintf(&b, "   Identifier \"ROOT\"\n")
	fmt.Fprintf(&b, "   Name \"BENCH_JOB_%d\"\n", jobIndex)
	fmt.Fprintf(&b, "   Description \"synthetic benchmark job\"\n")
	fmt.Fprintf(&b, "   Category \"benchmarks\"\n")
	fmt.Fprintf(&b, "END DSRECORD\n")

	for s := 0; s < numStages; s++ {
		role := "CCustomInput"
		context := 1
		tableName := fmt.Sprintf("SRC_TABLE_%d_%d", jobIndex, s)
		if s%2 == 1 {
			role = "CCustomOutput"
			context = 2
			tableName = fmt.Sprintf("TGT_TABLE_%d_%d", jobIndex, s)
		}

		stageID := fmt.Sprintf("STAGE_%d_%d", jobIndex, s)
		xmlProps := fmt.Sprintf(`<Root><Context>%d</Context><TableName><![CDATA[BIDWADM.%s]]></TableName></Root>`, context, tableName)

		fmt.Fprintf(&b, "BEGIN DSRECORD\n")
		fmt.Fprintf(&b, "   Identifier \"%s\"\n", stageID)
		fmt.Fprintf(&b, "   Name \"S_%s\"\n", stageID)
		fmt.Fprintf(&b, "   OLEType \"%s\"\n", role)
		fmt.Fprintf(&b, "   XMLProperties Value =+=+=+=\n%s\n=+=+=+=\nEND DSSUBRECORD\n", xmlProps)
		fmt.Fprintf(&b, "   Column \"COL_ID_%d\" Type \"INTEGER\"\n", s)
		fmt.Fprintf(&b, "   Column \"COL_NAME_%d\" Type \"VARCHAR\"\n", s)
		fmt.Fprintf(&b, "END DSRECORD\n")

		if s > 0 {
			fmt.Fprintf(&b, "BEGIN DSRECORD\n")
			fmt.Fprintf(&b, "   Identifier \"LINK_%d_%d\"\n", jobIndex, s)
			fmt.Fprintf(&b, "   Name \"lnk_%d_%d\"\n", jobIndex, s)
			fmt.Fprintf(&b, "   OLEType \"CCustomOutputLink\"\n")
			fmt.Fprintf(&b, "   SourceStage \"S_STAGE_%d_%d\"\n", jobIndex, s-1)
			fmt.Fprintf(&b, "   TargetStage \"S_STAGE_%d_%d\"\n", jobIndex, s)
			fmt.Fprintf(&b, "BEGIN DSSUBRECORD\n")
			fmt.Fprintf(&b, "   Name \"LINK_COL_%d\"\n", s)
			fmt.Fprintf(&b, "   SqlType \"TIMESTAMP\"\n")
			fmt.Fprintf(&b, "   Nullable \"1\"\n")
			fmt.Fprintf(&b, "END DSSUBRECORD\n")
			fmt.Fprintf(&b, "END DSRECORD\n")
		}
	}

	fmt.Fprintf(&b, "END DSJOB\n")
	return b.String()
}

// syntheticHeader renders the BEGIN HEADER block ParseContent expects
// ahead of any DSJOB blocks.
func syntheticHeader() string {
	return "BEGIN HEADER\n   ServerName \"bench-server\"\n   ToolInstanceID \"bench-project\"\nEND HEADER\n"
}

// syntheticFile renders numJobs jobs of numStages each, as one DSX file
// body (what a single *.dsx export typically holds).
func syntheticFile(numJobs, numStages int) string {
	var b strings.Builder
	b.WriteString(syntheticHeader())
	for j := 0; j < numJobs; j++ {
		b.WriteString(syntheticJob(j, numStages))
	}
	return b.String()
}

// writeSyntheticCorpus writes numFiles DSX files of numJobs*numStages
// each into dir, returning their paths, for benchmarks that exercise
// pkg/dsx/corpus and pkg/workerpool rather than parsing in-memory.
func writeSyntheticCorpus(dir string, numFiles, numJobs, numStages int) ([]string, error) {
	paths := make([]string, 0, numFiles)
	for i := 0; i < numFiles; i++ {
		path := filepath.Join(dir, fmt.Sprintf("bench_job_%d.dsx", i))
		content := syntheticFile(numJobs, numStages)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
