package semtable

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/ghetzel/go-stockutil/sliceutil"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gobwas/glob"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Modifiers names every dataframe modifier alongside a short description.
var Modifiers = map[string]string{
	`iso_date`:        `Convert a date column to ISO 8601 format (YYYY-MM-DD).`,
	`lower_case`:      `Convert all string values in a column to lowercase.`,
	`drop_na`:         `Remove rows with missing values.`,
	`rename_columns`:  `Rename columns according to a given mapping.`,
	`convert_dtypes`:  `Convert column data types according to a given mapping.`,
	`reorder_columns`: `Reorder columns according to a specified order.`,
	`select_columns`:  `Keep only the columns whose names match a glob pattern.`,
	`propagate_type`:  `Propagate an entity annotation to every cell in a column matching its original value.`,
}

// ModifierNames returns the available modifier names in sorted order.
func ModifierNames() []string {
	var names = make([]string, 0, len(Modifiers))

	for name := range Modifiers {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// ModifierArgs carries the arguments the dataframe modifiers take; each
// modifier reads the fields it needs and ignores the rest.
type ModifierArgs struct {
	// The column to operate on (iso_date, lower_case).
	Column string

	// An old-to-new name mapping (rename_columns) or a column-to-type
	// mapping (convert_dtypes).
	Mapping map[string]string

	// The full column order (reorder_columns).
	Order []string

	// A glob pattern naming the columns to keep (select_columns).
	Pattern string
}

// Apply runs the named dataframe modifier.  propagate_type operates on
// annotated tables rather than dataframes; use PropagateType for it.
func Apply(df dataframe.DataFrame, name string, args ModifierArgs) (dataframe.DataFrame, error) {
	switch name {
	case `iso_date`:
		return ISODate(df, args.Column)
	case `lower_case`:
		return LowerCase(df, args.Column)
	case `drop_na`:
		return DropNA(df)
	case `rename_columns`:
		return RenameColumns(df, args.Mapping)
	case `convert_dtypes`:
		return ConvertTypes(df, args.Mapping)
	case `reorder_columns`:
		return ReorderColumns(df, args.Order)
	case `select_columns`:
		return SelectColumns(df, args.Pattern)
	case `propagate_type`:
		return df, fmt.Errorf("modifier %q operates on annotated tables; use PropagateType", name)
	}

	return df, fmt.Errorf("unknown modifier %q; available: %s", name, strings.Join(ModifierNames(), `, `))
}

func requireColumns(df dataframe.DataFrame, columns ...string) error {
	var missing []string

	for _, column := range columns {
		if !sliceutil.ContainsString(df.Names(), column) {
			missing = append(missing, column)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("no such column(s): %s", strings.Join(missing, `, `))
	}

	return nil
}

// ISODate normalizes a date column to ISO 8601 (YYYY-MM-DD) form, parsing
// whatever formats the values happen to use.  A column already in ISO form
// is returned untouched.  Unparseable values are an error naming the
// offending rows.
func ISODate(df dataframe.DataFrame, dateColumn string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, dateColumn); err != nil {
		return df, err
	}

	var values = df.Col(dateColumn).Records()
	var alreadyISO = true

	for _, value := range values {
		if !isoDatePattern.MatchString(value) {
			alreadyISO = false
			break
		}
	}

	if alreadyISO {
		return df, nil
	}

	var converted = make([]string, len(values))
	var invalid []int

	for i, value := range values {
		if parsed, err := dateparse.ParseAny(value); err == nil {
			converted[i] = parsed.Format(`2006-01-02`)
		} else {
			invalid = append(invalid, i)
		}
	}

	if len(invalid) > 0 {
		return df, fmt.Errorf("column %q contains unparseable date values at rows %v", dateColumn, invalid)
	}

	return df.Mutate(series.New(converted, series.String, dateColumn)), nil
}

// LowerCase lowercases every value of a string column.
func LowerCase(df dataframe.DataFrame, column string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, column); err != nil {
		return df, err
	}

	if df.Col(column).Type() != series.String {
		return df, fmt.Errorf("column %q is not a string column", column)
	}

	var lowered = make([]string, 0, df.Nrow())

	for _, value := range df.Col(column).Records() {
		lowered = append(lowered, strings.ToLower(value))
	}

	return df.Mutate(series.New(lowered, series.String, column)), nil
}

// DropNA removes every row containing a missing value.
func DropNA(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	var records = df.Records()

	if len(records) < 2 {
		return df, nil
	}

	var types = make(map[string]series.Type)

	for i, name := range df.Names() {
		types[name] = df.Types()[i]
	}

	var kept = [][]string{records[0]}

	for _, record := range records[1:] {
		var missing bool

		for _, value := range record {
			if value == `` || value == `NaN` || value == `NA` {
				missing = true
				break
			}
		}

		if !missing {
			kept = append(kept, record)
		}
	}

	// dropping every row still yields a frame with the original columns
	if len(kept) == 1 {
		var empty = make([]series.Series, 0, df.Ncol())

		for i, name := range df.Names() {
			empty = append(empty, series.New([]string{}, df.Types()[i], name))
		}

		var out = dataframe.New(empty...)
		return out, out.Err
	}

	var out = dataframe.LoadRecords(kept, dataframe.WithTypes(types))
	return out, out.Err
}

// RenameColumns renames columns according to the given old-to-new mapping.
func RenameColumns(df dataframe.DataFrame, mapping map[string]string) (dataframe.DataFrame, error) {
	var old = make([]string, 0, len(mapping))

	for name := range mapping {
		old = append(old, name)
	}

	sort.Strings(old)

	if err := requireColumns(df, old...); err != nil {
		return df, err
	}

	for _, name := range old {
		df = df.Rename(mapping[name], name)

		if df.Err != nil {
			return df, df.Err
		}
	}

	return df, nil
}

var seriesTypes = map[string]series.Type{
	`string`: series.String,
	`int`:    series.Int,
	`float`:  series.Float,
	`bool`:   series.Bool,
}

// ConvertTypes converts columns to the given target types ("string", "int",
// "float", or "bool").
func ConvertTypes(df dataframe.DataFrame, targets map[string]string) (dataframe.DataFrame, error) {
	for column, target := range targets {
		if err := requireColumns(df, column); err != nil {
			return df, err
		}

		stype, ok := seriesTypes[target]

		if !ok {
			return df, fmt.Errorf("unknown type %q for column %q", target, column)
		}

		var converted = series.New(df.Col(column).Records(), stype, column)

		if converted.Err != nil {
			return df, fmt.Errorf("convert column %q to %s: %v", column, target, converted.Err)
		}

		df = df.Mutate(converted)

		if df.Err != nil {
			return df, df.Err
		}
	}

	return df, nil
}

// ReorderColumns rearranges the dataframe columns into the given order,
// which must name every existing column exactly once.
func ReorderColumns(df dataframe.DataFrame, order []string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, order...); err != nil {
		return df, err
	}

	if len(order) != df.Ncol() {
		return df, fmt.Errorf("column order names %d of %d columns", len(order), df.Ncol())
	}

	var out = df.Select(order)
	return out, out.Err
}

// SelectColumns keeps only the columns whose names match the given glob
// pattern.
func SelectColumns(df dataframe.DataFrame, pattern string) (dataframe.DataFrame, error) {
	matcher, err := glob.Compile(pattern)

	if err != nil {
		return df, fmt.Errorf("pattern: %v", err)
	}

	var matched []string

	for _, name := range df.Names() {
		if matcher.Match(name) {
			matched = append(matched, name)
		}
	}

	if len(matched) == 0 {
		return df, fmt.Errorf("pattern %q matches no columns", pattern)
	}

	var out = df.Select(matched)
	return out, out.Err
}

// TypeAnnotation is an entity annotation to propagate across a column.
type TypeAnnotation struct {
	ID            string     `json:"id"`
	Match         bool       `json:"match"`
	Name          EntityName `json:"name"`
	Score         Score      `json:"score"`
	OriginalValue string     `json:"originalValue"`
}

// PropagateType attaches the given annotation to every cell of a column
// whose label equals the annotation's original value.  An existing metadata
// entry with the same entity ID is re-marked as the match instead of being
// duplicated; competing candidates are unmatched.  Returns the modified
// table, its backend payload, and the number of affected rows.  The input
// table is modified in place.
func PropagateType(table *Table, column string, annotation *TypeAnnotation) (*Table, *BackendPayload, int, error) {
	if annotation == nil || annotation.OriginalValue == `` {
		return nil, nil, 0, fmt.Errorf("an annotation with an originalValue is required")
	}

	if annotation.ID == `` {
		return nil, nil, 0, fmt.Errorf("the annotation must carry an entity ID")
	}

	if _, ok := table.Columns[column]; !ok {
		return nil, nil, 0, fmt.Errorf("column %q not found in table", column)
	}

	var entry = EntityMeta{
		ID:    annotation.ID,
		Match: annotation.Match,
		Name:  annotation.Name,
		Score: annotation.Score,
	}

	var count int

	for _, row := range table.Rows {
		cell, ok := row.Cells[column]

		if !ok || cell.Label != annotation.OriginalValue {
			continue
		}

		var existing = -1

		for i, md := range cell.Metadata {
			if md.ID == annotation.ID {
				existing = i
				break
			}
		}

		if existing >= 0 {
			cell.Metadata[existing].Match = true
		} else {
			cell.Metadata = append(cell.Metadata, entry)
		}

		for i, md := range cell.Metadata {
			if md.ID != annotation.ID {
				md.Match = false
				cell.Metadata[i] = md
			}
		}

		cell.AnnotationMeta = &AnnotationMeta{
			Annotated: true,
			Match:     MatchInfo{Value: true, Reason: `manual`},
		}

		count++
	}

	return table, table.BackendPayload(), count, nil
}
