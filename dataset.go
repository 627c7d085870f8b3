package semtable

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/maputil"
	"github.com/go-gota/gota/dataframe"
)

// The backend wraps list responses in a collection envelope alongside
// pagination metadata.
type collectionEnvelope struct {
	Collection []map[string]interface{} `json:"collection"`
	Meta       map[string]interface{}   `json:"meta,omitempty"`
}

func (self *collectionEnvelope) dataframe() dataframe.DataFrame {
	if len(self.Collection) == 0 {
		return dataframe.DataFrame{}
	}

	return dataframe.LoadMaps(self.Collection)
}

// Datasets retrieves the datasets visible to the authenticated user.
func (self *Client) Datasets(ctx context.Context) (dataframe.DataFrame, error) {
	var envelope collectionEnvelope

	if err := self.getJSON(ctx, `dataset`, nil, &envelope); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("datasets: %v", err)
	}

	log.Debugf("datasets: %d entries", len(envelope.Collection))
	return envelope.dataframe(), nil
}

// AddDataset creates an empty dataset and returns its ID.
func (self *Client) AddDataset(ctx context.Context, name string) (string, error) {
	if name == `` {
		return ``, fmt.Errorf("a dataset name is required")
	}

	var created map[string]interface{}

	if err := self.postJSON(ctx, `dataset`, map[string]interface{}{
		`name`: name,
	}, &created); err != nil {
		return ``, fmt.Errorf("add dataset: %v", err)
	}

	// creation responses either carry the dataset directly or wrap it in a
	// single-element collection
	for _, key := range []string{`id`, `collection.0.id`, `datasets.0.id`} {
		if id := maputil.DeepGet(created, strings.Split(key, `.`), nil); id != nil {
			return fmt.Sprintf("%v", id), nil
		}
	}

	return ``, fmt.Errorf("add dataset: no dataset ID in response")
}

// DeleteDataset removes a dataset and every table in it.
func (self *Client) DeleteDataset(ctx context.Context, datasetID string) error {
	if datasetID == `` {
		return fmt.Errorf("a dataset ID is required")
	}

	if err := self.deleteRequest(ctx, `dataset/`+datasetID); err != nil {
		return fmt.Errorf("delete dataset %s: %v", datasetID, err)
	}

	log.Infof("dataset %s deleted", datasetID)
	return nil
}
