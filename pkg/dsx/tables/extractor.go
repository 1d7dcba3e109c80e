// Package tables implements the table extractor (spec §4.2): for every
// Stage record in a DSJOB slice, it recovers a table reference via three
// fallback strategies (direct field, embedded XML, regex-over-XML) and
// classifies it as source/target/unknown via the XML <Context> element.
//
// Adapted from original_source/dsx_parser.py's _extract_all_tables.
package tables

import (
	"encoding/xml"
	"regexp"
	"strings"

	"dsxia/pkg/dedup"
	"dsxia/pkg/dsx/model"
	"dsxia/pkg/dsx/parser"
)

var (
	stagePattern = regexp.MustCompile(`(?s)BEGIN DSRECORD\s+Identifier\s+"([^"]+)"(.*?)END DSRECORD`)
	fromPattern  = regexp.MustCompile(`(?is)FROM\s+([^\s,;]+(?:\.[^\s,;]+)*)`)
	whitespace   = regexp.MustCompile(`\s+`)

	cdataTableName      = regexp.MustCompile(`(?s)<TableName[^>]*><!\[CDATA\[(.*?)\]\]></TableName>`)
	cdataSchemaName     = regexp.MustCompile(`(?s)<SchemaName[^>]*><!\[CDATA\[(.*?)\]\]></SchemaName>`)
	cdataContext        = regexp.MustCompile(`(?s)<Context[^>]*><!\[CDATA\[(.*?)\]\]></Context>`)
	cdataSelectStmt     = regexp.MustCompile(`(?s)<SelectStatement[^>]*><!\[CDATA\[(.*?)\]\]></SelectStatement>`)
	cdataSQL            = regexp.MustCompile(`(?s)<SQL[^>]*><!\[CDATA\[(.*?)\]\]></SQL>`)
)

// Result is the per-job output of table extraction.
type Result struct {
	SourceTables []model.TableRef
	TargetTables []model.TableRef
	Warnings     []string
}

// Extract scans jobContent (one DSJOB slice) for every Stage record and
// returns its recovered source and target table references (§4.2).
func Extract(jobContent string) Result {
	var result Result
	sourceDedup := dedup.New()
	targetDedup := dedup.New()

	for _, m := range stagePattern.FindAllStringSubmatch(jobContent, -1) {
		identifier := m[1]
		recordContent := m[2]

		oleType, _ := parser.ExtractValue(recordContent, "OLEType")
		stageName, ok := parser.ExtractValue(recordContent, "Name")
		if !ok || stageName == "" {
			stageName = identifier
		}
		stageType, _ := parser.ExtractValue(recordContent, "StageType")

		tableName, _ := parser.ExtractValue(recordContent, "TableName")
		schema, _ := parser.ExtractValue(recordContent, "SchemaName")

		role := model.RoleUnknown

		if xmlProperties, ok := parser.ExtractValue(recordContent, "XMLProperties"); ok && xmlProperties != "" {
			xmlProperties = stripSentinels(xmlProperties)

			tn, sn, ctx, sql, xmlErr := parseXMLProperties(xmlProperties)
			if xmlErr != nil {
				tn, sn, ctx, sql = regexFallback(xmlProperties)
			}

			if ctx == "1" {
				role = model.RoleSource
			} else if ctx == "2" {
				role = model.RoleTarget
			}

			if tableName == "" && tn != "" {
				tableName = tn
			}
			if schema == "" && sn != "" {
				schema = sn
			}

			if tableName == "" && sql != "" {
				if fromMatch := fromPattern.FindStringSubmatch(sql); fromMatch != nil {
					tableRef := whitespace.ReplaceAllString(strings.TrimSpace(fromMatch[1]), "")
					tableName, schema = splitTableRef(tableRef, schema)
				}
			}
		}

		// Strategy C: regex directly over the whole record body.
		if tableName == "" {
			if m := cdataTableName.FindStringSubmatch(recordContent); m != nil {
				tableName = strings.TrimSpace(m[1])
			}
		}

		if tableName == "" {
			continue
		}

		if strings.Contains(tableName, ".") && schema == "" {
			tableName, schema = splitTableRef(tableName, schema)
		}

		if strings.HasSuffix(tableName, "#.") || tableName == "#" {
			continue
		}
		tableName = strings.TrimSpace(tableName)
		if tableName == "" {
			continue
		}

		stageTypeLabel := oleType
		if stageTypeLabel == "" {
			stageTypeLabel = stageType
		}
		if stageTypeLabel == "" {
			stageTypeLabel = "Unknown"
		}

		ref := model.TableRef{
			Schema:    schema,
			TableName: tableName,
			StageName: stageName,
			StageType: stageTypeLabel,
		}
		ref.ComputeFullName()

		switch role {
		case model.RoleSource:
			ref.Role = model.RoleSource
			if sourceDedup.Add(schema, tableName, stageName) {
				result.SourceTables = append(result.SourceTables, ref)
			}
		case model.RoleTarget:
			ref.Role = model.RoleTarget
			if targetDedup.Add(schema, tableName, stageName) {
				result.TargetTables = append(result.TargetTables, ref)
			}
		default:
			ref.Role = model.RoleUnknown
			added := false
			if sourceDedup.Add(schema, tableName, stageName) {
				result.SourceTables = append(result.SourceTables, ref)
				added = true
			}
			if targetDedup.Add(schema, tableName, stageName) {
				result.TargetTables = append(result.TargetTables, ref)
				added = true
			}
			if added {
				result.Warnings = append(result.Warnings,
					"Context was absent, table "+ref.FullName+" classified as both source and target")
			}
		}
	}

	return result
}

// splitTableRef splits tableRef at the last dot into (table, schema)
// unless the left side is a parameter group (starts with "#"), in which
// case the whole expression is kept as the table name for the parameter
// resolver to handle later (§4.2 post-processing).
func splitTableRef(tableRef, existingSchema string) (tableName, schema string) {
	if existingSchema != "" {
		return tableRef, existingSchema
	}
	idx := strings.LastIndex(tableRef, ".")
	if idx < 0 {
		return tableRef, ""
	}
	left, right := tableRef[:idx], tableRef[idx+1:]
	if strings.HasPrefix(left, "#") {
		return tableRef, ""
	}
	return right, left
}

func stripSentinels(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "=+=+=+=")
	v = strings.TrimSuffix(v, "=+=+=+=")
	return strings.TrimSpace(v)
}

// xmlNode is a minimal generic XML tree used to emulate ElementTree's
// ".//Tag" findall semantics without a fixed schema.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

func parseXMLProperties(content string) (tableName, schemaName, context, sqlText string, err error) {
	var root xmlNode
	if err = xml.Unmarshal([]byte(content), &root); err != nil {
		return "", "", "", "", err
	}

	tableName = firstText(&root, "TableName")
	schemaName = firstText(&root, "SchemaName")
	context = firstText(&root, "Context")
	if sqlText = firstText(&root, "SelectStatement"); sqlText == "" {
		sqlText = firstText(&root, "SQL")
	}
	return tableName, schemaName, context, sqlText, nil
}

// firstText performs a depth-first ".//tag" search for the first node
// named tag with non-empty character data.
func firstText(n *xmlNode, tag string) string {
	if n.XMLName.Local == tag && strings.TrimSpace(n.Content) != "" {
		return strings.TrimSpace(n.Content)
	}
	for i := range n.Nodes {
		if v := firstText(&n.Nodes[i], tag); v != "" {
			return v
		}
	}
	return ""
}

// regexFallback recovers the same four values when XML parsing fails,
// via direct CDATA regexes (§4.2's "If XML parsing fails...").
func regexFallback(content string) (tableName, schemaName, context, sqlText string) {
	if m := cdataTableName.FindStringSubmatch(content); m != nil {
		tableName = strings.TrimSpace(m[1])
	}
	if m := cdataSchemaName.FindStringSubmatch(content); m != nil {
		schemaName = strings.TrimSpace(m[1])
	}
	if m := cdataContext.FindStringSubmatch(content); m != nil {
		context = strings.TrimSpace(m[1])
	}
	if m := cdataSelectStmt.FindStringSubmatch(content); m != nil {
		sqlText = strings.TrimSpace(m[1])
	} else if m := cdataSQL.FindStringSubmatch(content); m != nil {
		sqlText = strings.TrimSpace(m[1])
	}
	return tableName, schemaName, context, sqlText
}
