// Package parser implements the DSX lexer and record parser (spec §4.1):
// it splits a DSX file's text into BEGIN/END delimited blocks and
// recovers one model.Job per DSJOB block, with its nested Stage
// records. Table and column extraction are separate components
// (pkg/dsx/tables, pkg/dsx/columns) that operate on the RawContent
// slice this package hands back per job, matching spec §2's pipeline
// split between the Lexer and the downstream extractors.
//
// Adapted from original_source/dsx_parser.py's DSXParser class —
// Go's regexp (RE2) supports the same non-greedy, DOTALL-style matching
// the original leans on via Python's re.DOTALL, so the block-matching
// approach translates directly.
package parser

import (
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"dsxia/pkg/dsx/model"
	"dsxia/pkg/errors"
)

var (
	headerPattern = regexp.MustCompile(`(?s)BEGIN HEADER\s+(.*?)\s+END HEADER`)
	dsjobPattern  = regexp.MustCompile(`(?s)BEGIN DSJOB\s+(.*?)\s+END DSJOB`)
	rootPattern   = regexp.MustCompile(`(?s)BEGIN DSRECORD\s+Identifier\s+"ROOT"(.*?)END DSRECORD`)
	stagePattern  = regexp.MustCompile(`(?s)BEGIN DSRECORD\s+Identifier\s+"([^"]+)"(.*?)END DSRECORD`)

	multilineEndMarker = "END DSSUBRECORD"
	sentinel           = "=+=+=+="
)

// ParsedJob is one recovered DSJOB block: the Job itself plus the raw
// text slice spanning that block, which tables/columns extractors
// consume to fill in SourceTables/TargetTables/Columns.
type ParsedJob struct {
	Job        *model.Job
	RawContent string
}

// ParseFile reads path and parses every DSJOB block in it.
func ParseFile(path string) ([]ParsedJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InputMissing("parser", "parse_file", err.Error())
	}
	return ParseContent(string(data), path)
}

// ParseContent parses every DSJOB block found in content. filePathLabel
// is stamped onto each Job's FilePath and is otherwise unused.
func ParseContent(content, filePathLabel string) ([]ParsedJob, error) {
	content = sanitizeUTF8(content)

	serverName, project := parseHeader(content)

	dsjobLocs := dsjobPattern.FindAllStringSubmatchIndex(content, -1)
	if len(dsjobLocs) == 0 {
		return nil, nil
	}

	jobs := make([]ParsedJob, 0, len(dsjobLocs))

	for i, loc := range dsjobLocs {
		start := loc[0]
		end := len(content)
		if i+1 < len(dsjobLocs) {
			end = dsjobLocs[i+1][0]
		}
		jobContent := content[start:end]

		dsjobHeader := content[loc[2]:loc[3]]
		identifier, _ := extractValue(dsjobHeader, "Identifier")
		dateModified, _ := extractValue(dsjobHeader, "DateModified")
		timeModified, _ := extractValue(dsjobHeader, "TimeModified")

		name := identifier
		description := ""
		category := ""
		if rootMatch := rootPattern.FindStringSubmatch(jobContent); rootMatch != nil {
			recordContent := rootMatch[1]
			if n, ok := extractValue(recordContent, "Name"); ok && n != "" {
				name = n
			}
			description, _ = extractValue(recordContent, "Description")
			category, _ = extractValue(recordContent, "Category")
		}

		if name == "" {
			continue
		}

		job := &model.Job{
			Name:         name,
			Identifier:   identifier,
			Description:  description,
			Category:     category,
			DateModified: dateModified,
			TimeModified: timeModified,
			ServerName:   serverName,
			Project:      project,
			FilePath:     filePathLabel,
			Stages:       extractStages(jobContent),
		}

		jobs = append(jobs, ParsedJob{Job: job, RawContent: jobContent})
	}

	return jobs, nil
}

func parseHeader(content string) (serverName, project string) {
	m := headerPattern.FindStringSubmatch(content)
	if m == nil {
		return "", ""
	}
	serverName, _ = extractValue(m[1], "ServerName")
	project, _ = extractValue(m[1], "ToolInstanceID")
	return serverName, project
}

// extractStages finds every nested DSRECORD and keeps those whose
// OLEType value contains "Stage" (§4.1 Stage detection).
func extractStages(content string) []model.Stage {
	var stages []model.Stage

	for _, m := range stagePattern.FindAllStringSubmatch(content, -1) {
		identifier := m[1]
		recordContent := m[2]

		oleType, ok := extractValue(recordContent, "OLEType")
		if !ok || !strings.Contains(oleType, "Stage") {
			continue
		}

		name, _ := extractValue(recordContent, "Name")
		if name == "" {
			name = identifier
		}
		description, _ := extractValue(recordContent, "Description")
		stageType, _ := extractValue(recordContent, "StageType")

		stages = append(stages, model.Stage{
			Identifier:  identifier,
			Name:        name,
			OLEType:     oleType,
			StageType:   stageType,
			Description: description,
		})
	}

	return stages
}

// ExtractValue extracts key's value from content: either a plain quoted
// scalar (Key "value") or a multi-line literal bracketed by =+=+=+=
// sentinels and terminated by END DSSUBRECORD (§4.1). Exported for
// pkg/dsx/tables and pkg/dsx/columns, which scan the same DSX record
// text for different keys.
func ExtractValue(content, key string) (string, bool) {
	return extractValue(content, key)
}

func extractValue(content, key string) (string, bool) {
	plain := regexp.MustCompile(regexp.QuoteMeta(key) + `\s+"([^"]+)"`)
	if m := plain.FindStringSubmatch(content); m != nil {
		return m[1], true
	}

	multiline := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(key) + `\s+Value\s+(?:=\+=\+=\+=)?\s*(.*?)\s*(?:=\+=\+=\+=)?\s+` + multilineEndMarker)
	if m := multiline.FindStringSubmatch(content); m != nil {
		value := strings.TrimSpace(m[1])
		value = strings.TrimPrefix(value, sentinel)
		value = strings.TrimSuffix(value, sentinel)
		return strings.TrimSpace(value), true
	}

	return "", false
}

// sanitizeUTF8 replaces illegal UTF-8 byte sequences with U+FFFD,
// matching the original's errors='ignore' decode tolerance (§4.1).
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// LogParseWarning logs a contained per-block parse issue at Debug,
// matching §7's "MalformedRecord ... logged at debug, counted, skipped"
// propagation policy. Callers increment their own error counters;
// this only standardizes the log line shape.
func LogParseWarning(logger *logrus.Logger, filePath, reason string) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"component": "parser",
		"file_path": filePath,
	}).Debug(reason)
}
