package semtable

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/typeutil"
	"github.com/go-gota/gota/dataframe"
)

var DefaultUploadTimeout = 30 * time.Second
var MaxUploadTimeout = time.Hour

// Tables retrieves the tables contained in a dataset.
func (self *Client) Tables(ctx context.Context, datasetID string) (dataframe.DataFrame, error) {
	var envelope collectionEnvelope

	if err := self.getJSON(ctx, `dataset/`+datasetID+`/table`, nil, &envelope); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("tables: %v", err)
	}

	if len(envelope.Collection) == 0 {
		log.Debugf("dataset %s has no tables", datasetID)
	}

	return envelope.dataframe(), nil
}

// AddTable uploads a dataframe as a new table in the given dataset and
// returns the ID the backend assigned to it.  The upload timeout scales with
// the encoded size and row count of the data; use AddTableTimeout to override.
func (self *Client) AddTable(ctx context.Context, datasetID string, name string, df dataframe.DataFrame) (string, error) {
	return self.AddTableTimeout(ctx, datasetID, name, df, 0)
}

func (self *Client) AddTableTimeout(ctx context.Context, datasetID string, name string, df dataframe.DataFrame, timeout time.Duration) (string, error) {
	if name == `` {
		return ``, fmt.Errorf("a table name is required")
	}

	var csv = bytes.NewBuffer(nil)

	if err := df.WriteCSV(csv); err != nil {
		return ``, fmt.Errorf("encode table: %v", err)
	}

	if timeout == 0 {
		timeout = uploadTimeout(csv.Len(), df.Nrow())
	}

	var body = bytes.NewBuffer(nil)
	var form = multipart.NewWriter(body)

	if err := form.WriteField(`name`, name); err != nil {
		return ``, err
	}

	if part, err := form.CreateFormFile(`file`, name+`.csv`); err == nil {
		if _, err := part.Write(csv.Bytes()); err != nil {
			return ``, err
		}
	} else {
		return ``, err
	}

	if err := form.Close(); err != nil {
		return ``, err
	}

	log.Infof("uploading table %q: %d rows, %d columns, %v (timeout %v)",
		name, df.Nrow(), df.Ncol(), humanize.Bytes(uint64(csv.Len())), timeout)

	var uploadCtx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := self.newRequest(uploadCtx, http.MethodPost, `dataset/`+datasetID+`/table/`, nil, body)

	if err != nil {
		return ``, err
	}

	request.Header.Set(`Content-Type`, form.FormDataContentType())

	var started = time.Now()
	var uploaded struct {
		Tables []struct {
			ID string `json:"id"`
		} `json:"tables"`
	}

	if err := self.decodeInto(request, &uploaded); err != nil {
		return ``, fmt.Errorf("upload table %q: %v", name, err)
	}

	if len(uploaded.Tables) == 0 || uploaded.Tables[0].ID == `` {
		return ``, fmt.Errorf("upload table %q: no table ID returned", name)
	}

	log.Infof("table %q uploaded: id=%s rows=%d duration=%v",
		name, uploaded.Tables[0].ID, df.Nrow(), time.Since(started).Round(time.Millisecond))

	return uploaded.Tables[0].ID, nil
}

// Timeouts scale with payload size (2s per MiB) and row count, between a 30
// second floor and a one hour ceiling.
func uploadTimeout(sizeBytes int, rows int) time.Duration {
	var bySize = time.Duration(sizeBytes/(1024*1024)) * 2 * time.Second
	var byRows time.Duration

	switch {
	case rows > 5000000:
		byRows = 30 * time.Minute
	case rows > 1000000:
		byRows = 15 * time.Minute
	case rows > 500000:
		byRows = 5 * time.Minute
	case rows > 100000:
		byRows = 2 * time.Minute
	}

	var timeout = DefaultUploadTimeout

	if bySize > timeout {
		timeout = bySize
	}

	if byRows > timeout {
		timeout = byRows
	}

	if timeout > MaxUploadTimeout {
		timeout = MaxUploadTimeout
	}

	return timeout
}

// GetTable retrieves an annotated table by ID.
func (self *Client) GetTable(ctx context.Context, datasetID string, tableID string) (*Table, error) {
	var table Table

	if err := self.getJSON(ctx, `dataset/`+datasetID+`/table/`+tableID, nil, &table); err != nil {
		return nil, fmt.Errorf("get table %s: %v", tableID, err)
	}

	if table.Info.ID == `` {
		table.Info.ID = tableID
	}

	return &table, nil
}

// DeleteTables removes the given tables from a dataset, returning a per-ID
// result map.  A nil entry means that table was deleted.
func (self *Client) DeleteTables(ctx context.Context, datasetID string, tableIDs []string) map[string]error {
	var results = make(map[string]error)

	for _, tableID := range tableIDs {
		if err := self.deleteRequest(ctx, `dataset/`+datasetID+`/table/`+tableID); err == nil {
			log.Infof("table %s deleted", tableID)
			results[tableID] = nil
		} else {
			log.Warningf("delete table %s: %v", tableID, err)
			results[tableID] = err
		}
	}

	return results
}

// ExportCSV streams a table in CSV form into the given writer.
func (self *Client) ExportCSV(ctx context.Context, datasetID string, tableID string, w io.Writer) error {
	var qs = url.Values{
		`format`: []string{`csv`},
	}

	request, err := self.newRequest(ctx, http.MethodGet, `dataset/`+datasetID+`/table/`+tableID+`/export`, qs, nil)

	if err != nil {
		return err
	}

	if response, err := self.do(request); err == nil {
		defer response.Body.Close()
		_, err = io.Copy(w, response.Body)
		return err
	} else {
		return fmt.Errorf("export csv: %v", err)
	}
}

// ExportW3C retrieves a table in the W3C annotated-JSON export format.
func (self *Client) ExportW3C(ctx context.Context, datasetID string, tableID string) ([]map[string]map[string]interface{}, error) {
	var qs = url.Values{
		`format`: []string{`w3c`},
	}

	var export []map[string]map[string]interface{}

	if err := self.getJSON(ctx, `dataset/`+datasetID+`/table/`+tableID+`/export`, qs, &export); err != nil {
		return nil, fmt.Errorf("export w3c: %v", err)
	}

	return export, nil
}

// ParseW3C converts a W3C export into a dataframe.  The first element is the
// header (th0, th1, ... entries naming each column); the remaining elements
// are rows keyed by column label.
func ParseW3C(export []map[string]map[string]interface{}) (dataframe.DataFrame, error) {
	if len(export) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("empty export")
	}

	var headerKeys []string

	for key := range export[0] {
		if strings.HasPrefix(key, `th`) {
			headerKeys = append(headerKeys, key)
		}
	}

	// header keys are "th<N>"; sort on the numeric suffix to preserve column order
	sort.Slice(headerKeys, func(i int, j int) bool {
		return typeutil.Int(headerKeys[i][2:]) < typeutil.Int(headerKeys[j][2:])
	})

	var labels []string

	for _, key := range headerKeys {
		if label, ok := export[0][key][`label`].(string); ok {
			labels = append(labels, label)
		}
	}

	if len(labels) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("export header names no columns")
	}

	var records = [][]string{labels}

	for _, item := range export[1:] {
		var record = make([]string, len(labels))

		for i, label := range labels {
			if cell, ok := item[label]; ok {
				record[i] = fmt.Sprintf("%v", cell[`label`])
			}
		}

		records = append(records, record)
	}

	return dataframe.LoadRecords(records), nil
}
