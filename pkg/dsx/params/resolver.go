// Package params resolves DataStage parameter expressions of the form
// #<group>.$<name># into concrete (db_type, schema, table) triples
// (spec §4.4). Adapted from original_source/parameter_mapper.py's
// ParameterMapper; pure and side-effect free, as the original class is.
package params

import (
	"regexp"
	"strings"

	"dsxia/pkg/dsx/model"
)

var schemaFromOwn = regexp.MustCompile(`\$P_[^#]*OWN_([^#]+)`)

// Resolved is the result of resolving a (possibly parameterized) table
// expression.
type Resolved struct {
	DBType      model.DBType
	Schema      string
	TableName   string
	FullName    string
	Original    string
	IsParameter bool
}

// Resolve classifies expr and, if it is a parameter reference
// (#group.$name#.table), extracts db_type and schema per §4.4's
// classification rules. A non-parameter expr passes through unchanged
// with IsParameter=false, DBType=unknown (§12.4).
func Resolve(expr string) Resolved {
	if !strings.HasPrefix(expr, "#") {
		return Resolved{
			DBType:      model.DBUnknown,
			TableName:   expr,
			FullName:    expr,
			Original:    expr,
			IsParameter: false,
		}
	}

	original := expr
	paramPart := expr
	tableName := ""
	if idx := strings.LastIndex(expr, "."); idx >= 0 {
		paramPart = expr[:idx]
		tableName = expr[idx+1:]
	}

	upperParam := strings.ToUpper(paramPart)

	dbType := model.DBUnknown
	schema := ""

	switch {
	case strings.Contains(upperParam, "BIDW"):
		dbType = model.DBVertica
		if m := schemaFromOwn.FindStringSubmatch(paramPart); m != nil {
			schema = m[1]
		}
	case strings.Contains(upperParam, "ERP"):
		dbType = model.DBMSSQL
		schema = "dbo"
	}

	full := tableName
	if schema != "" {
		full = schema + "." + tableName
	}

	return Resolved{
		DBType:      dbType,
		Schema:      schema,
		TableName:   tableName,
		FullName:    full,
		Original:    original,
		IsParameter: true,
	}
}

// MapTable resolves ref.TableName in place when it is a parameter
// expression (starts with "#"), leaving a non-parameter reference
// untouched but stamping IsParameter=false (§12.4).
func MapTable(ref model.TableRef) model.TableRef {
	if !strings.HasPrefix(ref.TableName, "#") {
		ref.IsParameter = false
		if ref.FullName == "" {
			ref.ComputeFullName()
		}
		return ref
	}

	resolved := Resolve(ref.TableName)
	ref.OriginalParameter = resolved.Original
	ref.TableName = resolved.TableName
	ref.Schema = resolved.Schema
	ref.DBType = resolved.DBType
	ref.FullName = resolved.FullName
	ref.IsParameter = true
	return ref
}
