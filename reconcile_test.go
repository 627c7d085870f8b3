package semtable

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ghetzel/go-stockutil/httputil"
	"github.com/ghetzel/testify/require"
)

func TestReconcileValidation(t *testing.T) {
	assert := require.New(t)
	client := testClient(t, http.NewServeMux())
	table := cityTable()

	_, _, err := client.Reconcile(context.Background(), table, `City`, `notAService`, nil)
	assert.Error(err)
	assert.Contains(err.Error(), `invalid reconciliator`)

	_, _, err = client.Reconcile(context.Background(), table, `Nope`, `wikidata`, nil)
	assert.Error(err)
	assert.Contains(err.Error(), `not found`)
}

func TestReconcile(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	mux.HandleFunc(`/api/reconciliators/wikidata`, func(w http.ResponseWriter, req *http.Request) {
		var payload map[string]interface{}
		assert.NoError(json.NewDecoder(req.Body).Decode(&payload))

		// "wikidata" dispatches to the OpenRefine-compatible service
		assert.Equal(`wikidataOpenRefine`, payload[`serviceId`])
		assert.Len(payload[`items`], 3)
		assert.NotContains(payload, `secondPart`)

		httputil.RespondJSON(w, []map[string]interface{}{
			{
				`id`:       `City`,
				`metadata`: []map[string]interface{}{},
			},
			{
				`id`: `r0$City`,
				`metadata`: []map[string]interface{}{
					{`id`: `wd:Q64`, `name`: `Berlin`, `score`: 0.98, `match`: true},
					{`id`: `wd:Q821244`, `name`: `Berlin, Maryland`, `score`: 0.2, `match`: false},
				},
			},
			{
				`id`:       `r1$City`,
				`metadata`: []map[string]interface{}{},
			},
		})
	})

	client := testClient(t, mux)
	table := cityTable()

	enriched, payload, err := client.Reconcile(context.Background(), table, `City`, `wikidata`, nil)
	assert.NoError(err)
	assert.NotNil(enriched)
	assert.NotNil(payload)

	// the input table is untouched
	assert.Equal(ColumnStatusEmpty, table.Columns[`City`].Status)
	assert.Nil(table.Rows[`r0`].Cells[`City`].Metadata)

	column := enriched.Columns[`City`]
	assert.Equal(ColumnStatusReconciliated, column.Status)
	assert.Empty(column.Kind)
	assert.Equal(2, column.Context[`georss`].Total)
	assert.NotNil(column.AnnotationMeta)
	assert.True(column.AnnotationMeta.Match.Value)
	assert.Equal(`reconciliator`, column.AnnotationMeta.Match.Reason)

	// only the best candidate survives, with a browsable URI
	matched := enriched.Rows[`r0`].Cells[`City`]
	assert.Len(matched.Metadata, 1)
	assert.Equal(`wd:Q64`, matched.Metadata[0].ID)
	assert.Equal(`Berlin`, matched.Metadata[0].Name.Value)
	assert.Equal(`https://www.wikidata.org/wiki/Q64`, matched.Metadata[0].Name.URI)
	assert.True(matched.AnnotationMeta.Annotated)
	assert.True(matched.AnnotationMeta.Match.Value)
	assert.Equal(`reconciliator`, matched.AnnotationMeta.Match.Reason)
	assert.Equal(Score(0.98), matched.AnnotationMeta.HighestScore)

	// candidates the service could not match stay annotated but unmatched
	unmatched := enriched.Rows[`r1`].Cells[`City`]
	assert.Empty(unmatched.Metadata)
	assert.True(unmatched.AnnotationMeta.Annotated)
	assert.False(unmatched.AnnotationMeta.Match.Value)

	assert.Equal(2, payload.TableInstance.NCellsReconciliated)
	assert.Equal(Score(0), payload.TableInstance.MinMetaScore)
	assert.Equal(Score(0.98), payload.TableInstance.MaxMetaScore)
}

func TestReconcileRequestContextColumns(t *testing.T) {
	assert := require.New(t)
	table := cityTable()

	// HERE geocoding takes two positional context parts
	payload := reconcileRequest(table, `City`, `geocodingHere`, []string{`Country`, `Country`})

	second := payload[`secondPart`].(map[string]interface{})
	assert.Equal([]interface{}{`Germany`, []interface{}{}, `Country`}, second[`r0`])
	assert.Equal([]interface{}{`France`, []interface{}{}, `Country`}, second[`r1`])

	// Alligator-style services take a named column map
	payload = reconcileRequest(table, `City`, `wikidataAlligator`, []string{`Country`, `City`})

	additional := payload[`additionalColumns`].(map[string]map[string]interface{})
	assert.Len(additional, 2)
	assert.Equal([]interface{}{`Germany`, []interface{}{}, `Country`}, additional[`Country`][`r0`])

	// wikidata sends serviceId and items only
	payload = reconcileRequest(table, `City`, `wikidata`, nil)
	assert.NotContains(payload, `secondPart`)
	assert.NotContains(payload, `additionalColumns`)

	// everything else carries empty parts
	payload = reconcileRequest(table, `City`, `geonames`, nil)
	assert.Contains(payload, `secondPart`)
	assert.Contains(payload, `thirdPart`)
}

func TestReconciliators(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	mux.HandleFunc(`/api/reconciliators/list`, func(w http.ResponseWriter, req *http.Request) {
		httputil.RespondJSON(w, []map[string]interface{}{
			{
				`id`:          `wikidata`,
				`relativeUrl`: `/wikidata`,
				`name`:        `Wikidata`,
				`formParams`: []map[string]interface{}{
					{`id`: `language`, `inputType`: `text`, `description`: `Result language`},
				},
			},
			{
				`id`: `incomplete`,
			},
		})
	})

	client := testClient(t, mux)

	df, err := client.Reconciliators(context.Background())
	assert.NoError(err)

	// descriptors missing an ID or name are dropped
	assert.Equal(1, df.Nrow())
	assert.Equal([]string{`wikidata`}, df.Col(`id`).Records())

	params, err := client.ReconciliatorParameters(context.Background(), `wikidata`)
	assert.NoError(err)
	assert.Len(params.Mandatory, 3)
	assert.Len(params.Optional, 1)
	assert.Equal(`language`, params.Optional[0].Name)

	_, err = client.ReconciliatorParameters(context.Background(), `unlisted`)
	assert.Error(err)
}

func TestReconciliatorParametersOptionalColumns(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	mux.HandleFunc(`/api/reconciliators/list`, func(w http.ResponseWriter, req *http.Request) {
		httputil.RespondJSON(w, []map[string]interface{}{
			{`id`: `geocodingHere`, `relativeUrl`: `/here`, `name`: `HERE`},
		})
	})

	client := testClient(t, mux)

	params, err := client.ReconciliatorParameters(context.Background(), `geocodingHere`)
	assert.NoError(err)

	var names []string

	for _, param := range params.Mandatory {
		names = append(names, param.Name)
	}

	assert.Contains(names, `optionalColumns`)
}

func TestEntityURI(t *testing.T) {
	assert := require.New(t)

	assert.Equal(`https://www.google.com/maps/place/52.52,13.40`, EntityURI(`georss:52.52,13.40`))
	assert.Equal(`https://www.google.com/maps/place/52.52,13.40`, EntityURI(`geoCoord:52.52,13.40`))
	assert.Equal(`https://www.wikidata.org/wiki/Q64`, EntityURI(`wd:Q64`))
	assert.Equal(`https://www.wikidata.org/wiki/Q64`, EntityURI(`wdA:Q64`))
	assert.Empty(EntityURI(`dbpedia:Berlin`))
	assert.Empty(EntityURI(``))
}

func TestRestructureEntityMetadata(t *testing.T) {
	assert := require.New(t)

	table := reconciledCityTable()
	table.Columns[`City`].Metadata = []EntityMeta{
		{ID: `wd:Q515`, Name: EntityName{Value: `city`}, Score: 1, Match: true},
	}
	table.Columns[`City`].Kind = `entity`

	restructureEntityMetadata(table)

	// column metadata gets wrapped in an envelope entity
	column := table.Columns[`City`]
	assert.Len(column.Metadata, 1)
	assert.Equal(`None:`, column.Metadata[0].ID)
	assert.Len(column.Metadata[0].Entity, 1)
	assert.Equal(`https://www.wikidata.org/wiki/Q515`, column.Metadata[0].Entity[0].Name.URI)
	assert.Empty(column.Kind)

	// cell score bounds come from the surviving candidates
	assert.Equal(Score(0.91), column.AnnotationMeta.LowestScore)
	assert.Equal(Score(0.98), column.AnnotationMeta.HighestScore)

	// the unreconciled column is untouched
	assert.Nil(table.Columns[`Country`].AnnotationMeta)

	// the stored envelope carries its zero score explicitly
	encoded, err := json.Marshal(column.Metadata[0])
	assert.NoError(err)
	assert.Contains(string(encoded), `"score":0`)
}
