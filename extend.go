package semtable

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ghetzel/go-stockutil/log"
	"github.com/go-gota/gota/dataframe"
)

var entityIDPattern = regexp.MustCompile(`^Q\d+$`)

// IsEntityID reports whether the given identifier denotes a Wikidata entity
// (a Q-identifier), in any of the forms the services emit it: "wd:Q123",
// "wdA:Q123", or a full IRI ending in "/Q123".
func IsEntityID(id string) bool {
	if id == `` {
		return false
	}

	if strings.HasPrefix(id, `http://`) || strings.HasPrefix(id, `https://`) {
		var parts = strings.Split(id, `/`)
		id = parts[len(parts)-1]
	}

	if i := strings.Index(id, `:`); i >= 0 {
		id = id[i+1:]
	}

	return entityIDPattern.MatchString(id)
}

func metadataIsEntity(metadata []EntityMeta) bool {
	return len(metadata) > 0 && IsEntityID(metadata[0].ID)
}

// Extenders retrieves the extender services the backend offers.
func (self *Client) Extenders(ctx context.Context) (dataframe.DataFrame, error) {
	services, err := self.listServices(ctx, `extenders/list`)

	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("extenders: %v", err)
	}

	return serviceFrame(services), nil
}

// ExtenderParameters describes the parameters an extender service accepts,
// split into mandatory and optional by the service's own form rules.
func (self *Client) ExtenderParameters(ctx context.Context, extenderID string) (*ServiceParameters, error) {
	services, err := self.listServices(ctx, `extenders/list`)

	if err != nil {
		return nil, fmt.Errorf("extenders: %v", err)
	}

	for _, svc := range services {
		if svc.ID != extenderID {
			continue
		}

		var params = new(ServiceParameters)

		for _, param := range svc.FormParams {
			var info = ParamInfo{
				Name:        param.ID,
				Type:        param.InputType,
				Mandatory:   param.required(),
				Description: param.Description,
				Label:       param.Label,
				InfoText:    param.InfoText,
			}

			if info.Mandatory {
				params.Mandatory = append(params.Mandatory, info)
			} else {
				params.Optional = append(params.Optional, info)
			}
		}

		return params, nil
	}

	return nil, fmt.Errorf("no such extender %q", extenderID)
}

// PropertySuggestion is a knowledge base property ranked by how many of a
// column's reconciled entities carry it.
type PropertySuggestion struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type suggestionEntity struct {
	ID          string       `json:"id"`
	Name        EntityName   `json:"name"`
	Description string       `json:"description"`
	Features    interface{}  `json:"features"`
	Match       bool         `json:"match"`
	Score       Score        `json:"score"`
	Type        []EntityType `json:"type"`
}

// PropertySuggestions asks the backend which Wikidata properties the
// reconciled entities of a column carry, ranked by coverage.  Only the best
// candidate of each cell contributes.
func (self *Client) PropertySuggestions(ctx context.Context, table *Table, columnName string) ([]PropertySuggestion, error) {
	var entities []suggestionEntity

	for _, rowID := range table.RowIDs() {
		cell, ok := table.Rows[rowID].Cells[columnName]

		if !ok || len(cell.Metadata) == 0 {
			continue
		}

		var best = cell.Metadata[0]

		if !strings.HasPrefix(best.ID, `wd:`) && !strings.HasPrefix(best.ID, `wdA:`) {
			continue
		}

		entities = append(entities, suggestionEntity{
			ID:          strings.Replace(best.ID, `wdA:`, `wd:`, 1),
			Name:        best.Name,
			Description: best.Description,
			Features:    best.Features,
			Match:       best.Match,
			Score:       best.Score,
			Type:        best.Type,
		})
	}

	if len(entities) == 0 {
		return nil, fmt.Errorf("column %q has no reconciled entities", columnName)
	}

	var response struct {
		Data []PropertySuggestion `json:"data"`
	}

	if err := self.postJSON(ctx, `suggestion/wikidata`, entities, &response); err != nil {
		return nil, fmt.Errorf("property suggestions: %v", err)
	}

	log.Debugf("suggestions for %q: %d properties from %d entities", columnName, len(response.Data), len(entities))

	return response.Data, nil
}

// ExtendOptions carries the extender-specific settings some services need.
type ExtendOptions struct {
	// The column holding dates for the Open-Meteo weather extender.
	DateColumn string

	// Decimal separator convention for the Open-Meteo extender output.
	DecimalFormat string
}

type extensionCell struct {
	Label    string       `json:"label"`
	Metadata []EntityMeta `json:"metadata,omitempty"`
}

type extensionColumn struct {
	Label    string                   `json:"label"`
	Metadata []EntityMeta             `json:"metadata,omitempty"`
	Cells    map[string]extensionCell `json:"cells"`
}

type extensionResponse struct {
	Meta            map[string]interface{}     `json:"meta,omitempty"`
	Columns         map[string]extensionColumn `json:"columns"`
	OriginalColMeta *struct {
		OriginalColName string `json:"originalColName"`
		Properties      []struct {
			ID   string `json:"id"`
			Name string `json:"name,omitempty"`
		} `json:"properties,omitempty"`
	} `json:"originalColMeta,omitempty"`
}

// ExtendColumn adds new columns derived from a reconciled column using the
// given extender service and returns the extended table plus its backend
// payload.  The input table is not modified.  Properties select what each
// extender fetches: property IDs for reconciledColumnExt and
// wikidataPropertySPARQL, weather parameters for meteoPropertiesOpenMeteo.
func (self *Client) ExtendColumn(ctx context.Context, table *Table, columnName string, extenderID string, properties []string, opts *ExtendOptions) (*Table, *BackendPayload, error) {
	if opts == nil {
		opts = new(ExtendOptions)
	}

	if _, ok := table.Columns[columnName]; !ok {
		return nil, nil, fmt.Errorf("column %q not found in table", columnName)
	}

	var endpoint = `extenders`
	var payload map[string]interface{}

	switch extenderID {
	case `reconciledColumnExt`:
		payload = reconciledColumnRequest(table, columnName, extenderID, properties)

	case `meteoPropertiesOpenMeteo`:
		if opts.DateColumn == `` || opts.DecimalFormat == `` {
			return nil, nil, fmt.Errorf("extender %s requires a date column and a decimal format", extenderID)
		}

		payload = meteoRequest(table, columnName, extenderID, properties, opts)

	case `wikidataPropertySPARQL`:
		if table.Columns[columnName].Status != ColumnStatusReconciliated {
			return nil, nil, fmt.Errorf("column %q must be reconciled before extending with Wikidata properties", columnName)
		}

		if len(properties) == 0 {
			return nil, nil, fmt.Errorf("extender %s requires at least one property ID", extenderID)
		}

		endpoint = `extenders/wikidata/entities`
		payload = map[string]interface{}{
			`serviceId`:  extenderID,
			`items`:      entityItems(table, columnName),
			`properties`: strings.Join(properties, ` `),
		}

	default:
		return nil, nil, fmt.Errorf("unsupported extender %q", extenderID)
	}

	var response extensionResponse

	if err := self.postJSON(ctx, endpoint, payload, &response); err != nil {
		return nil, nil, fmt.Errorf("extend %q: %v", columnName, err)
	}

	log.Debugf("extend %q via %s: %d new columns", columnName, extenderID, len(response.Columns))

	var extended = composeExtendedTable(table, &response)

	return extended, extended.BackendPayload(), nil
}

// The entity ID of each cell's best reconciliation candidate, keyed by row.
func entityItems(table *Table, columnName string) map[string]map[string]string {
	var items = map[string]map[string]string{
		columnName: {},
	}

	for rowID, row := range table.Rows {
		if cell, ok := row.Cells[columnName]; ok && len(cell.Metadata) > 0 {
			if id := cell.Metadata[0].ID; id != `` {
				items[columnName][rowID] = id
			}
		}
	}

	return items
}

func reconciledColumnRequest(table *Table, columnName string, extenderID string, properties []string) map[string]interface{} {
	var column = make(map[string]interface{})

	for rowID, row := range table.Rows {
		if cell, ok := row.Cells[columnName]; ok {
			column[rowID] = []interface{}{cell.Label, cell.Metadata, columnName}
		}
	}

	return map[string]interface{}{
		`serviceId`: extenderID,
		`column`:    column,
		`property`:  properties,
		`items`:     entityItems(table, columnName),
	}
}

func meteoRequest(table *Table, columnName string, extenderID string, properties []string, opts *ExtendOptions) map[string]interface{} {
	var dates = make(map[string]interface{})

	for rowID, row := range table.Rows {
		if cell, ok := row.Cells[opts.DateColumn]; ok {
			dates[rowID] = []interface{}{cell.Label, []interface{}{}, opts.DateColumn}
		}
	}

	return map[string]interface{}{
		`serviceId`:     extenderID,
		`dates`:         dates,
		`decimalFormat`: []string{opts.DecimalFormat},
		`items`:         entityItems(table, columnName),
		`weatherParams`: properties,
	}
}

func composeExtendedTable(table *Table, response *extensionResponse) *Table {
	var extended = table.Copy()

	// header metadata from the extension response overlays the table header
	if len(response.Meta) > 0 {
		if data, err := json.Marshal(response.Meta); err == nil {
			json.Unmarshal(data, &extended.Info)
		}
	}

	// property ID -> new column name, for cross-referencing below
	var propertyColumns = make(map[string]string)

	for name, column := range response.Columns {
		for _, md := range column.Metadata {
			propertyColumns[md.ID] = name
		}
	}

	for name, column := range response.Columns {
		var hasEntities bool

		for _, cell := range column.Cells {
			if metadataIsEntity(cell.Metadata) {
				hasEntities = true
				break
			}
		}

		var newColumn = &Column{
			ID:             name,
			Label:          column.Label,
			Status:         ColumnStatusEmpty,
			Metadata:       column.Metadata,
			AnnotationMeta: &AnnotationMeta{},
		}

		if hasEntities {
			var reconciled int

			for _, cell := range column.Cells {
				if metadataIsEntity(cell.Metadata) {
					reconciled++
				}
			}

			newColumn.Status = ColumnStatusReconciliated
			newColumn.Context = map[string]ColumnContext{
				`wd`: {
					URI:           `https://www.wikidata.org/wiki/`,
					Total:         len(column.Cells),
					Reconciliated: reconciled,
				},
			}
		}

		extended.Columns[name] = newColumn

		for rowID, cell := range column.Cells {
			row, ok := extended.Rows[rowID]

			if !ok {
				continue
			}

			var newCell = &Cell{
				ID:    CellID(rowID, name),
				Label: cell.Label,
			}

			if metadataIsEntity(cell.Metadata) {
				newCell.Metadata = cell.Metadata
				newCell.AnnotationMeta = annotationFromMetadata(cell.Metadata)
			} else {
				// literal value; no entity metadata
				newCell.AnnotationMeta = &AnnotationMeta{
					Annotated: false,
					Match:     MatchInfo{Value: false},
				}
			}

			row.Cells[name] = newCell
		}
	}

	// cross-reference the fetched properties back onto the source column
	if ocm := response.OriginalColMeta; ocm != nil {
		if source, ok := extended.Columns[ocm.OriginalColName]; ok && len(source.Metadata) > 0 {
			source.Kind = `entity`

			for _, property := range ocm.Properties {
				if obj, ok := propertyColumns[property.ID]; ok {
					source.Metadata[0].Property = append(source.Metadata[0].Property, PropertyRef{
						ID:    property.ID,
						Obj:   obj,
						Name:  property.Name,
						Match: true,
						Score: 1,
					})
				}
			}
		}
	}

	extended.Info.NCols = len(extended.Columns)

	var cells int

	for _, row := range extended.Rows {
		cells += len(row.Cells)
	}

	extended.Info.NCells = cells

	return extended
}

func annotationFromMetadata(metadata []EntityMeta) *AnnotationMeta {
	if len(metadata) == 0 {
		return &AnnotationMeta{
			Annotated: false,
			Match:     MatchInfo{Value: false},
		}
	}

	var lowest, highest Score = 100, 100
	var seen bool

	for _, md := range metadata {
		if !seen || md.Score < lowest {
			lowest = md.Score
		}

		if !seen || md.Score > highest {
			highest = md.Score
		}

		seen = true
	}

	return &AnnotationMeta{
		Annotated:    true,
		Match:        MatchInfo{Value: true, Reason: `reconciliator`},
		LowestScore:  lowest,
		HighestScore: highest,
	}
}
