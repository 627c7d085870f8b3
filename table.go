package semtable

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ghetzel/go-stockutil/typeutil"
	"github.com/montanaflynn/stats"
)

// Score is a reconciliation confidence value.  The backend emits scores as
// JSON numbers or as strings depending on the service that produced them;
// both decode into a float64.
type Score float64

func (self *Score) UnmarshalJSON(data []byte) error {
	var raw interface{}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*self = Score(typeutil.V(raw).Float())
	return nil
}

// EntityName is the display name of a knowledge base entity.  Reconciliation
// services emit it as a bare string; enriched tables carry a value/URI pair.
type EntityName struct {
	Value string `json:"value"`
	URI   string `json:"uri"`
}

func (self *EntityName) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &self.Value)
	}

	type entityName EntityName
	var name entityName

	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	*self = EntityName(name)
	return nil
}

type EntityType struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// PropertyRef links a property of a reconciled column to the extended column
// holding that property's values.
type PropertyRef struct {
	ID    string `json:"id"`
	Obj   string `json:"obj"`
	Name  string `json:"name,omitempty"`
	Match bool   `json:"match"`
	Score Score  `json:"score"`
}

// EntityMeta is a candidate knowledge base entity attached to a cell or column.
type EntityMeta struct {
	ID          string        `json:"id"`
	Name        EntityName    `json:"name,omitempty"`
	Score       Score         `json:"score"`
	Match       bool          `json:"match"`
	Type        []EntityType  `json:"type,omitempty"`
	Description string        `json:"description,omitempty"`
	Features    interface{}   `json:"features,omitempty"`
	Feature     interface{}   `json:"feature,omitempty"`
	Entity      []EntityMeta  `json:"entity,omitempty"`
	Property    []PropertyRef `json:"property,omitempty"`
}

type MatchInfo struct {
	Value  bool   `json:"value"`
	Reason string `json:"reason,omitempty"`
}

type AnnotationMeta struct {
	Annotated    bool      `json:"annotated"`
	Match        MatchInfo `json:"match"`
	LowestScore  Score     `json:"lowestScore"`
	HighestScore Score     `json:"highestScore"`
}

// ColumnContext counts how many cells of a column were reconciled against a
// given knowledge base prefix.
type ColumnContext struct {
	URI           string `json:"uri"`
	Total         int    `json:"total"`
	Reconciliated int    `json:"reconciliated"`
}

const (
	ColumnStatusEmpty         = `empty`
	ColumnStatusReconciliated = `reconciliated`
)

type Column struct {
	ID             string                   `json:"id,omitempty"`
	Label          string                   `json:"label"`
	Status         string                   `json:"status,omitempty"`
	Kind           string                   `json:"kind,omitempty"`
	Context        map[string]ColumnContext `json:"context,omitempty"`
	Metadata       []EntityMeta             `json:"metadata,omitempty"`
	AnnotationMeta *AnnotationMeta          `json:"annotationMeta,omitempty"`
}

type Cell struct {
	ID             string          `json:"id,omitempty"`
	Label          string          `json:"label"`
	Metadata       []EntityMeta    `json:"metadata,omitempty"`
	AnnotationMeta *AnnotationMeta `json:"annotationMeta,omitempty"`
}

type Row struct {
	ID    string           `json:"id,omitempty"`
	Cells map[string]*Cell `json:"cells"`
}

// TableInfo is the table header: identity plus cell accounting.
type TableInfo struct {
	ID                  string `json:"id"`
	IDDataset           string `json:"idDataset"`
	Name                string `json:"name"`
	NCols               int    `json:"nCols"`
	NRows               int    `json:"nRows"`
	NCells              int    `json:"nCells"`
	NCellsReconciliated int    `json:"nCellsReconciliated"`
	LastModifiedDate    string `json:"lastModifiedDate"`
	MinMetaScore        Score  `json:"minMetaScore"`
	MaxMetaScore        Score  `json:"maxMetaScore"`
}

// Table is an annotated table as served by the backend: a header, columns
// keyed by name, and rows keyed by row ID.
type Table struct {
	Info    TableInfo          `json:"table"`
	Columns map[string]*Column `json:"columns"`
	Rows    map[string]*Row    `json:"rows"`
}

// Copy returns a deep copy of the table via a JSON round trip.
func (self *Table) Copy() *Table {
	var out Table

	if data, err := json.Marshal(self); err == nil {
		if err := json.Unmarshal(data, &out); err == nil {
			return &out
		}
	}

	return nil
}

func (self *Table) ColumnNames() []string {
	var names = make([]string, 0, len(self.Columns))

	for name := range self.Columns {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

func (self *Table) RowIDs() []string {
	var ids = make([]string, 0, len(self.Rows))

	for id := range self.Rows {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

// Recount updates the header column and cell counts from the table body.
func (self *Table) Recount() {
	self.Info.NCols = len(self.Columns)
	self.Info.NRows = len(self.Rows)

	var cells int

	for _, row := range self.Rows {
		cells += len(row.Cells)
	}

	self.Info.NCells = cells
}

// Touch refreshes the last-modified timestamp on the table header.
func (self *Table) Touch() {
	self.Info.LastModifiedDate = time.Now().UTC().Format(`2006-01-02T15:04:05.000Z`)
}

func (self *Table) annotatedCellStats() (count int, scores []float64) {
	for _, row := range self.Rows {
		for _, cell := range row.Cells {
			if cell.AnnotationMeta == nil || !cell.AnnotationMeta.Annotated {
				continue
			}

			count++
			scores = append(scores, float64(cell.AnnotationMeta.LowestScore))
			scores = append(scores, float64(cell.AnnotationMeta.HighestScore))

			for _, md := range cell.Metadata {
				scores = append(scores, float64(md.Score))
			}
		}
	}

	return
}

type ColumnStore struct {
	ByID   map[string]*Column `json:"byId"`
	AllIDs []string           `json:"allIds"`
}

type RowStore struct {
	ByID   map[string]*Row `json:"byId"`
	AllIDs []string        `json:"allIds"`
}

// BackendPayload is the shape the backend persists: a table instance header
// with normalized column and row stores.
type BackendPayload struct {
	TableInstance TableInfo   `json:"tableInstance"`
	Columns       ColumnStore `json:"columns"`
	Rows          RowStore    `json:"rows"`
}

// BackendPayload converts the table into its persistence shape, recomputing
// the reconciled cell count and the score bounds from cell annotations.
func (self *Table) BackendPayload() *BackendPayload {
	var reconciled, scores = self.annotatedCellStats()
	var instance = self.Info

	instance.NCellsReconciliated = reconciled

	if len(scores) > 0 {
		if min, err := stats.Min(scores); err == nil {
			instance.MinMetaScore = Score(min)
		}

		if max, err := stats.Max(scores); err == nil {
			instance.MaxMetaScore = Score(max)
		}
	} else {
		instance.MinMetaScore = 0
		instance.MaxMetaScore = 1
	}

	return &BackendPayload{
		TableInstance: instance,
		Columns: ColumnStore{
			ByID:   self.Columns,
			AllIDs: self.ColumnNames(),
		},
		Rows: RowStore{
			ByID:   self.Rows,
			AllIDs: self.RowIDs(),
		},
	}
}

// CellID returns the canonical "row$column" cell identifier.
func CellID(rowID string, column string) string {
	return rowID + `$` + column
}
