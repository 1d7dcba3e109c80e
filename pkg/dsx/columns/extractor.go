// Package columns implements the column extractor (spec §4.3): given one
// DSJOB slice and the table references already recovered by
// pkg/dsx/tables, it assembles a table_full_name -> []Column map by
// running four fallback patterns over every DSRECORD and unioning
// results under a single (table_full_name, column_name) dedup set, so
// a higher-confidence strategy's result is never displaced by a later,
// lower-confidence one.
//
// Generalized from the Column-bearing fragments of
// original_source/dsx_parser.py (which only ever flatly scanned
// `Column "x" Type "y"`), per spec §4.3's "Link Columns subrecords" and
// "Schema record literal" strategies that extend beyond what the
// original implements.
package columns

import (
	"regexp"
	"strings"

	"dsxia/pkg/dedup"
	"dsxia/pkg/dsx/model"
	"dsxia/pkg/dsx/parser"
)

var (
	stagePattern      = regexp.MustCompile(`(?s)BEGIN DSRECORD\s+Identifier\s+"([^"]+)"(.*?)END DSRECORD`)
	columnPattern     = regexp.MustCompile(`Column\s+"([^"]+)"(?:\s+Type\s+"([^"]+)")?`)
	namedSubrecord    = regexp.MustCompile(`(?s)BEGIN DSSUBRECORD\s+Name\s+"([^"]+)"(.*?)END DSSUBRECORD`)
	idSubrecord       = regexp.MustCompile(`(?s)BEGIN DSSUBRECORD\s+Identifier\s+"(src|srcPin|tgt|tgtPin)"(.*?)END DSSUBRECORD`)
	schemaRecordBlock = regexp.MustCompile(`(?s)Name\s+"Schema".*?record\((.*?)\)`)
	schemaFieldPat    = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*:\s*(nullable\s+)?([A-Za-z0-9_]+)\s*$`)
	proximityToken    = regexp.MustCompile(`[A-Z][A-Z0-9_]{1,}`)
)

// Extract returns table_full_name -> []Column for jobContent, given the
// table references already recovered for this job (used to map stage
// names, as recorded in each ref's StageName, to table full names).
func Extract(jobContent string, tableRefs []model.TableRef) map[string][]model.Column {
	columns := map[string][]model.Column{}
	seen := dedup.New()

	add := func(tableFullName string, col model.Column) {
		if tableFullName == "" || col.Name == "" {
			return
		}
		if !seen.Add(tableFullName, col.Name) {
			return
		}
		columns[tableFullName] = append(columns[tableFullName], col)
	}

	stageToTables := indexByStage(tableRefs)

	for _, m := range stagePattern.FindAllStringSubmatch(jobContent, -1) {
		identifier := m[1]
		recordContent := m[2]

		name, _ := parser.ExtractValue(recordContent, "Name")
		if name == "" {
			name = identifier
		}

		// Strategy 1: stage-resident columns, attributed to this
		// stage's own resolved table(s).
		if directTable, ok := parser.ExtractValue(recordContent, "TableName"); ok && directTable != "" {
			for _, col := range scanColumnFields(recordContent) {
				for _, ref := range stageToTables[name] {
					add(ref.FullName, col)
				}
			}
		}

		oleType, _ := parser.ExtractValue(recordContent, "OLEType")
		isLink := strings.Contains(oleType, "Link") || strings.Contains(oleType, "Output") || strings.Contains(oleType, "Input")
		if !isLink {
			continue
		}

		sourceStage, _ := parser.ExtractValue(recordContent, "SourceStage")
		targetStage, _ := parser.ExtractValue(recordContent, "TargetStage")
		if sourceStage == "" || targetStage == "" {
			for _, pm := range idSubrecord.FindAllStringSubmatch(recordContent, -1) {
				partner, _ := parser.ExtractValue(pm[2], "Partner")
				if partner == "" {
					continue
				}
				switch pm[1] {
				case "src", "srcPin":
					if sourceStage == "" {
						sourceStage = partner
					}
				case "tgt", "tgtPin":
					if targetStage == "" {
						targetStage = partner
					}
				}
			}
		}

		endpoints := append([]model.TableRef{}, stageToTables[sourceStage]...)
		endpoints = append(endpoints, stageToTables[targetStage]...)

		// Strategy 2: Link Columns subrecords.
		for _, sm := range namedSubrecord.FindAllStringSubmatch(recordContent, -1) {
			colName := sm[1]
			subContent := sm[2]
			col := model.Column{
				Name:      colName,
				Type:      "Unknown",
				StageName: name,
				StageID:   identifier,
			}
			if sqlType, ok := parser.ExtractValue(subContent, "SqlType"); ok && sqlType != "" {
				col.Type = sqlType
			}
			if nullable, ok := parser.ExtractValue(subContent, "Nullable"); ok {
				v := nullable == "1"
				col.Nullable = &v
			}
			for _, ref := range endpoints {
				add(ref.FullName, col)
			}
		}

		// Strategy 3: schema record literal, attributed to both
		// endpoints of the enclosing link.
		if sm := schemaRecordBlock.FindStringSubmatch(recordContent); sm != nil {
			for _, field := range strings.Split(sm[1], ";") {
				fm := schemaFieldPat.FindStringSubmatch(field)
				if fm == nil {
					continue
				}
				col := model.Column{Name: fm[1], Type: fm[3]}
				for _, ref := range endpoints {
					add(ref.FullName, col)
				}
			}
		}

		// Strategy 4: proximity scan, recall-boosting fallback —
		// tokens occurring inside this same Link as the stage with a
		// known TableName, not the whole job body (spec §9 note 2).
		for _, tok := range proximityToken.FindAllString(recordContent, -1) {
			for _, ref := range endpoints {
				add(ref.FullName, model.Column{Name: tok, Type: "Unknown"})
			}
		}
	}

	return columns
}

func indexByStage(tableRefs []model.TableRef) map[string][]model.TableRef {
	index := map[string][]model.TableRef{}
	for _, ref := range tableRefs {
		index[ref.StageName] = append(index[ref.StageName], ref)
	}
	return index
}

func scanColumnFields(recordContent string) []model.Column {
	var cols []model.Column
	for _, m := range columnPattern.FindAllStringSubmatch(recordContent, -1) {
		colType := m[2]
		if colType == "" {
			colType = "Unknown"
		}
		cols = append(cols, model.Column{Name: m[1], Type: colType})
	}
	return cols
}
