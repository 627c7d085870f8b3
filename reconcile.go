package semtable

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/sliceutil"
	"github.com/go-gota/gota/dataframe"
	"github.com/montanaflynn/stats"
)

// Reconciliator service IDs the backend accepts.
var ValidReconciliators = []string{
	`geocodingHere`,
	`geocodingGeonames`,
	`geonames`,
	`wikidata`,
	`wikidataAlligator`,
}

// Some reconciliator IDs differ from the service ID the backend dispatches
// on; "wikidata" is implemented by the OpenRefine-compatible endpoint.
var reconciliatorServiceIDs = map[string]string{
	`wikidata`: `wikidataOpenRefine`,
}

// Reconciliators retrieves the reconciliator services the backend offers.
func (self *Client) Reconciliators(ctx context.Context) (dataframe.DataFrame, error) {
	services, err := self.listServices(ctx, `reconciliators/list`)

	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("reconciliators: %v", err)
	}

	return serviceFrame(services), nil
}

// ReconciliatorParameters describes what a reconciliator accepts: the fixed
// parameters every reconciliation request carries, plus the service's own
// form parameters.
func (self *Client) ReconciliatorParameters(ctx context.Context, reconciliatorID string) (*ServiceParameters, error) {
	services, err := self.listServices(ctx, `reconciliators/list`)

	if err != nil {
		return nil, fmt.Errorf("reconciliators: %v", err)
	}

	var mandatory = []ParamInfo{
		{Name: `table`, Type: `json`, Mandatory: true, Description: `The table data in JSON format`},
		{Name: `columnName`, Type: `string`, Mandatory: true, Description: `The name of the column to reconcile`},
		{Name: `idReconciliator`, Type: `string`, Mandatory: true, Description: `The ID of the reconciliator to use`},
	}

	switch reconciliatorID {
	case `geocodingGeonames`, `wikidataAlligator`:
		mandatory = append(mandatory, ParamInfo{
			Name:        `optionalColumns`,
			Type:        `list`,
			Description: `Additional context columns to include (e.g. County, Country)`,
		})
	case `geocodingHere`:
		mandatory = append(mandatory, ParamInfo{
			Name:        `optionalColumns`,
			Type:        `list`,
			Description: `Two additional columns providing geocoding context`,
		})
	}

	return serviceParameters(services, reconciliatorID, mandatory)
}

type reconcileItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// One entry per reconciled item: the bare column name for column-level
// metadata, "row$column" IDs for cells.
type reconcileResult struct {
	ID       string       `json:"id"`
	Metadata []EntityMeta `json:"metadata"`
}

// Reconcile matches the values of a column against a knowledge base and
// returns the enriched table along with its backend payload.  The input
// table is not modified.  Optional columns supply extra context to the
// services that use them (geocodingHere wants exactly two).
func (self *Client) Reconcile(ctx context.Context, table *Table, columnName string, reconciliatorID string, optionalColumns []string) (*Table, *BackendPayload, error) {
	if !sliceutil.ContainsString(ValidReconciliators, reconciliatorID) {
		return nil, nil, fmt.Errorf("invalid reconciliator ID %q; must be one of: %s",
			reconciliatorID, strings.Join(ValidReconciliators, `, `))
	}

	if _, ok := table.Columns[columnName]; !ok {
		return nil, nil, fmt.Errorf("column %q not found in table", columnName)
	}

	var payload = reconcileRequest(table, columnName, reconciliatorID, optionalColumns)
	var results []reconcileResult

	if err := self.postJSON(ctx, `reconciliators/`+reconciliatorID, payload, &results); err != nil {
		return nil, nil, fmt.Errorf("reconcile %q: %v", columnName, err)
	}

	log.Debugf("reconcile %q via %s: %d result items", columnName, reconciliatorID, len(results))

	var enriched = composeReconciledTable(table, results, columnName)
	restructureEntityMetadata(enriched)

	return enriched, enriched.BackendPayload(), nil
}

func reconcileRequest(table *Table, columnName string, reconciliatorID string, optionalColumns []string) map[string]interface{} {
	var serviceID = reconciliatorID

	if mapped, ok := reconciliatorServiceIDs[reconciliatorID]; ok {
		serviceID = mapped
	}

	var items = []reconcileItem{
		{ID: columnName, Label: columnName},
	}

	for _, rowID := range table.RowIDs() {
		if cell, ok := table.Rows[rowID].Cells[columnName]; ok {
			items = append(items, reconcileItem{
				ID:    CellID(rowID, columnName),
				Label: cell.Label,
			})
		}
	}

	var payload = map[string]interface{}{
		`serviceId`: serviceID,
		`items`:     items,
	}

	// context column plumbing differs per service: HERE geocoding takes two
	// positional context parts, the Alligator-style services take a named
	// additionalColumns map, and the rest carry empty parts
	switch reconciliatorID {
	case `geocodingHere`:
		var second = make(map[string]interface{})
		var third = make(map[string]interface{})

		if len(optionalColumns) >= 2 {
			for rowID, row := range table.Rows {
				second[rowID] = contextTriple(row, optionalColumns[0])
				third[rowID] = contextTriple(row, optionalColumns[1])
			}
		}

		payload[`secondPart`] = second
		payload[`thirdPart`] = third

	case `geocodingGeonames`, `wikidataAlligator`:
		if len(optionalColumns) >= 2 {
			var additional = make(map[string]map[string]interface{})

			for _, column := range optionalColumns {
				additional[column] = make(map[string]interface{})

				for rowID, row := range table.Rows {
					additional[column][rowID] = contextTriple(row, column)
				}
			}

			payload[`additionalColumns`] = additional
		}

	case `wikidata`:
		// serviceId and items only

	default:
		payload[`secondPart`] = map[string]interface{}{}
		payload[`thirdPart`] = map[string]interface{}{}
	}

	return payload
}

func contextTriple(row *Row, column string) []interface{} {
	var label string

	if cell, ok := row.Cells[column]; ok {
		label = cell.Label
	}

	return []interface{}{label, []interface{}{}, column}
}

func composeReconciledTable(table *Table, results []reconcileResult, columnName string) *Table {
	var enriched = table.Copy()

	enriched.Touch()

	var column = enriched.Columns[columnName]
	var cellCount = 0

	for _, item := range results {
		if item.ID != columnName {
			cellCount++
		}
	}

	column.Status = ColumnStatusReconciliated
	column.Kind = `entity`
	column.Context = map[string]ColumnContext{
		`georss`: {
			URI:           `http://www.google.com/maps/place/`,
			Total:         cellCount,
			Reconciliated: cellCount,
		},
	}
	column.AnnotationMeta = &AnnotationMeta{
		Annotated:    true,
		Match:        MatchInfo{Value: true},
		LowestScore:  1,
		HighestScore: 1,
	}

	var cellScores []float64
	var reconciled int

	for _, item := range results {
		if item.ID == columnName {
			if len(item.Metadata) > 0 {
				column.Metadata = item.Metadata
			}

			continue
		}

		rowID, cellID, ok := strings.Cut(item.ID, `$`)

		if !ok {
			log.Warningf("reconcile: unexpected item ID format %q", item.ID)
			continue
		}

		row, ok := enriched.Rows[rowID]

		if !ok {
			continue
		}

		cell, ok := row.Cells[cellID]

		if !ok {
			continue
		}

		if len(item.Metadata) > 0 {
			// keep the best candidate only
			var best = item.Metadata[0]

			cell.Metadata = []EntityMeta{best}
			cell.AnnotationMeta = &AnnotationMeta{
				Annotated:    true,
				Match:        MatchInfo{Value: best.Match},
				LowestScore:  best.Score,
				HighestScore: best.Score,
			}

			cellScores = append(cellScores, float64(best.Score))
		} else {
			cell.AnnotationMeta = &AnnotationMeta{
				Annotated: true,
				Match:     MatchInfo{Value: false},
			}

			cellScores = append(cellScores, 0)
		}

		reconciled++
	}

	if len(cellScores) > 0 {
		if min, err := stats.Min(cellScores); err == nil {
			column.AnnotationMeta.LowestScore = Score(min)
		}

		if max, err := stats.Max(cellScores); err == nil {
			column.AnnotationMeta.HighestScore = Score(max)
		}
	}

	enriched.Info.NCellsReconciliated = reconciled

	return enriched
}

// EntityURI maps a prefixed entity identifier onto a browsable URI: georss
// and geoCoord IDs onto Google Maps, Wikidata IDs onto wikidata.org.
func EntityURI(id string) string {
	switch {
	case strings.HasPrefix(id, `georss:`):
		return `https://www.google.com/maps/place/` + strings.TrimPrefix(id, `georss:`)
	case strings.HasPrefix(id, `geoCoord:`):
		return `https://www.google.com/maps/place/` + strings.TrimPrefix(id, `geoCoord:`)
	case strings.HasPrefix(id, `wd:`), strings.HasPrefix(id, `wdA:`):
		var parts = strings.Split(id, `:`)
		return `https://www.wikidata.org/wiki/` + parts[len(parts)-1]
	}

	return ``
}

// Rewrites the metadata of every reconciled column into the shape the
// application stores: column metadata wrapped in an envelope entity list,
// cell metadata carrying value/URI names, match reasons attributed to the
// reconciliator.
func restructureEntityMetadata(table *Table) {
	var reconciledColumns []string

	for name, column := range table.Columns {
		if column.Status == ColumnStatusReconciliated {
			reconciledColumns = append(reconciledColumns, name)
		}
	}

	for _, name := range reconciledColumns {
		var column = table.Columns[name]

		if len(column.Metadata) > 0 {
			var envelope = EntityMeta{
				ID:    `None:`,
				Match: true,
			}

			for _, md := range column.Metadata {
				envelope.Entity = append(envelope.Entity, EntityMeta{
					ID: md.ID,
					Name: EntityName{
						Value: md.Name.Value,
						URI:   EntityURI(md.ID),
					},
					Score:       md.Score,
					Match:       md.Match,
					Type:        md.Type,
					Description: md.Description,
					Features:    md.Features,
				})
			}

			column.Metadata = []EntityMeta{envelope}
		}

		var scores []float64

		for _, row := range table.Rows {
			if cell, ok := row.Cells[name]; ok {
				for _, md := range cell.Metadata {
					scores = append(scores, float64(md.Score))
				}
			}
		}

		column.AnnotationMeta = &AnnotationMeta{
			Annotated: true,
			Match:     MatchInfo{Value: true, Reason: `reconciliator`},
		}

		if len(scores) > 0 {
			if min, err := stats.Min(scores); err == nil {
				column.AnnotationMeta.LowestScore = Score(min)
			}

			if max, err := stats.Max(scores); err == nil {
				column.AnnotationMeta.HighestScore = Score(max)
			}
		}

		column.Kind = ``
	}

	for _, row := range table.Rows {
		for cellKey, cell := range row.Cells {
			if !sliceutil.ContainsString(reconciledColumns, cellKey) {
				continue
			}

			for i, md := range cell.Metadata {
				md.Name = EntityName{
					Value: md.Name.Value,
					URI:   EntityURI(md.ID),
				}
				cell.Metadata[i] = md
			}

			if cell.AnnotationMeta != nil && len(cell.Metadata) > 0 {
				cell.AnnotationMeta.Match = MatchInfo{Value: true, Reason: `reconciliator`}
				cell.AnnotationMeta.LowestScore = cell.Metadata[0].Score
				cell.AnnotationMeta.HighestScore = cell.Metadata[0].Score
			}
		}
	}
}
