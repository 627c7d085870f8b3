package semtable

import (
	"testing"

	"github.com/ghetzel/testify/require"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func TestModifierNames(t *testing.T) {
	assert := require.New(t)

	names := ModifierNames()
	assert.Len(names, len(Modifiers))
	assert.Contains(names, `iso_date`)
	assert.Contains(names, `propagate_type`)

	// sorted
	for i := 1; i < len(names); i++ {
		assert.True(names[i-1] < names[i])
	}
}

func TestApply(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`city`, `country`},
		{`BERLIN`, `Germany`},
		{`Paris`, ``},
	})

	out, err := Apply(df, `lower_case`, ModifierArgs{Column: `city`})
	assert.NoError(err)
	assert.Equal([]string{`berlin`, `paris`}, out.Col(`city`).Records())

	out, err = Apply(df, `drop_na`, ModifierArgs{})
	assert.NoError(err)
	assert.Equal(1, out.Nrow())

	out, err = Apply(df, `rename_columns`, ModifierArgs{Mapping: map[string]string{`city`: `town`}})
	assert.NoError(err)
	assert.Contains(out.Names(), `town`)

	out, err = Apply(df, `select_columns`, ModifierArgs{Pattern: `c*`})
	assert.NoError(err)
	assert.Equal([]string{`city`, `country`}, out.Names())

	_, err = Apply(df, `propagate_type`, ModifierArgs{})
	assert.Error(err)
	assert.Contains(err.Error(), `PropagateType`)

	_, err = Apply(df, `nope`, ModifierArgs{})
	assert.Error(err)
	assert.Contains(err.Error(), `unknown modifier`)
}

func TestISODate(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`event`, `date`},
		{`a`, `March 5, 2021`},
		{`b`, `2021-03-06`},
		{`c`, `06/07/2021`},
	})

	out, err := ISODate(df, `date`)
	assert.NoError(err)
	assert.Equal([]string{`2021-03-05`, `2021-03-06`, `2021-06-07`}, out.Col(`date`).Records())

	// a column already in ISO form is returned untouched
	again, err := ISODate(out, `date`)
	assert.NoError(err)
	assert.Equal(out.Col(`date`).Records(), again.Col(`date`).Records())

	_, err = ISODate(df, `nope`)
	assert.Error(err)

	bad := dataframe.LoadRecords([][]string{
		{`date`},
		{`not a date at all`},
	})

	_, err = ISODate(bad, `date`)
	assert.Error(err)
	assert.Contains(err.Error(), `unparseable`)
}

func TestLowerCase(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`city`, `population`},
		{`BERLIN`, `3645000`},
		{`Paris`, `2161000`},
	})

	out, err := LowerCase(df, `city`)
	assert.NoError(err)
	assert.Equal([]string{`berlin`, `paris`}, out.Col(`city`).Records())

	_, err = LowerCase(df, `population`)
	assert.Error(err)
	assert.Contains(err.Error(), `not a string column`)

	_, err = LowerCase(df, `nope`)
	assert.Error(err)
}

func TestDropNA(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`city`, `country`},
		{`Berlin`, `Germany`},
		{`Paris`, ``},
		{`NaN`, `France`},
		{`Rome`, `Italy`},
	})

	out, err := DropNA(df)
	assert.NoError(err)
	assert.Equal(2, out.Nrow())
	assert.Equal([]string{`Berlin`, `Rome`}, out.Col(`city`).Records())
}

func TestDropNAAllRows(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`city`, `country`},
		{`Berlin`, ``},
		{``, `France`},
	})

	out, err := DropNA(df)
	assert.NoError(err)
	assert.Equal(0, out.Nrow())
	assert.Equal([]string{`city`, `country`}, out.Names())
}

func TestRenameColumns(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`a`, `b`},
		{`1`, `2`},
	})

	out, err := RenameColumns(df, map[string]string{`a`: `alpha`, `b`: `beta`})
	assert.NoError(err)
	assert.Equal([]string{`alpha`, `beta`}, out.Names())

	_, err = RenameColumns(df, map[string]string{`nope`: `x`})
	assert.Error(err)
}

func TestConvertTypes(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`city`, `population`},
		{`Berlin`, `3645000`},
	}, dataframe.DetectTypes(false))

	out, err := ConvertTypes(df, map[string]string{`population`: `int`})
	assert.NoError(err)
	assert.Equal(series.Int, out.Col(`population`).Type())

	_, err = ConvertTypes(df, map[string]string{`population`: `decimal`})
	assert.Error(err)

	_, err = ConvertTypes(df, map[string]string{`nope`: `int`})
	assert.Error(err)
}

func TestReorderColumns(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`a`, `b`, `c`},
		{`1`, `2`, `3`},
	})

	out, err := ReorderColumns(df, []string{`c`, `a`, `b`})
	assert.NoError(err)
	assert.Equal([]string{`c`, `a`, `b`}, out.Names())

	// the order must name every column exactly once
	_, err = ReorderColumns(df, []string{`c`, `a`})
	assert.Error(err)

	_, err = ReorderColumns(df, []string{`c`, `a`, `nope`})
	assert.Error(err)
}

func TestSelectColumns(t *testing.T) {
	assert := require.New(t)

	df := dataframe.LoadRecords([][]string{
		{`city`, `country`, `population`},
		{`Berlin`, `Germany`, `3645000`},
	})

	out, err := SelectColumns(df, `c*`)
	assert.NoError(err)
	assert.Equal([]string{`city`, `country`}, out.Names())

	_, err = SelectColumns(df, `z*`)
	assert.Error(err)

	_, err = SelectColumns(df, `[`)
	assert.Error(err)
}

func TestPropagateType(t *testing.T) {
	assert := require.New(t)

	table := cityTable()
	table.Rows[`r0`].Cells[`City`].Metadata = []EntityMeta{
		{ID: `wd:Q60`, Match: true, Score: 0.4},
	}

	// a duplicate Berlin row to propagate across
	table.Rows[`r2`] = &Row{
		ID: `r2`,
		Cells: map[string]*Cell{
			`City`:    {Label: `Berlin`},
			`Country`: {Label: `Germany`},
		},
	}

	annotation := &TypeAnnotation{
		ID:            `wd:Q64`,
		Match:         true,
		Name:          EntityName{Value: `Berlin`, URI: `https://www.wikidata.org/wiki/Q64`},
		Score:         0.98,
		OriginalValue: `Berlin`,
	}

	out, payload, count, err := PropagateType(table, `City`, annotation)
	assert.NoError(err)
	assert.NotNil(payload)
	assert.Equal(2, count)

	// the annotation is appended where absent and competitors are unmatched
	r0 := out.Rows[`r0`].Cells[`City`]
	assert.Len(r0.Metadata, 2)
	assert.False(r0.Metadata[0].Match)
	assert.Equal(`wd:Q64`, r0.Metadata[1].ID)
	assert.True(r0.Metadata[1].Match)
	assert.Equal(`manual`, r0.AnnotationMeta.Match.Reason)

	r2 := out.Rows[`r2`].Cells[`City`]
	assert.Len(r2.Metadata, 1)
	assert.Equal(`wd:Q64`, r2.Metadata[0].ID)

	// non-matching labels are untouched
	assert.Nil(out.Rows[`r1`].Cells[`City`].Metadata)
}

func TestPropagateTypeExisting(t *testing.T) {
	assert := require.New(t)

	table := cityTable()
	table.Rows[`r0`].Cells[`City`].Metadata = []EntityMeta{
		{ID: `wd:Q64`, Match: false, Score: 0.98},
	}

	_, _, count, err := PropagateType(table, `City`, &TypeAnnotation{
		ID:            `wd:Q64`,
		Match:         true,
		OriginalValue: `Berlin`,
	})

	assert.NoError(err)
	assert.Equal(1, count)

	// the existing candidate is re-marked instead of duplicated
	metadata := table.Rows[`r0`].Cells[`City`].Metadata
	assert.Len(metadata, 1)
	assert.True(metadata[0].Match)
}

func TestPropagateTypeValidation(t *testing.T) {
	assert := require.New(t)
	table := cityTable()

	_, _, _, err := PropagateType(table, `City`, nil)
	assert.Error(err)

	_, _, _, err = PropagateType(table, `City`, &TypeAnnotation{ID: `wd:Q64`})
	assert.Error(err)

	_, _, _, err = PropagateType(table, `City`, &TypeAnnotation{OriginalValue: `Berlin`})
	assert.Error(err)

	_, _, _, err = PropagateType(table, `Nope`, &TypeAnnotation{ID: `wd:Q64`, OriginalValue: `Berlin`})
	assert.Error(err)
}
