package semtable

import (
	"context"
	"net/http"
	"testing"

	"github.com/ghetzel/go-stockutil/httputil"
	"github.com/ghetzel/testify/require"
)

func TestDatasets(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	mux.HandleFunc(`/api/dataset`, func(w http.ResponseWriter, req *http.Request) {
		httputil.RespondJSON(w, map[string]interface{}{
			`collection`: []map[string]interface{}{
				{`id`: `1`, `name`: `alpha`, `nTables`: 3},
				{`id`: `2`, `name`: `beta`, `nTables`: 0},
			},
			`meta`: map[string]interface{}{
				`totalCount`: 2,
			},
		})
	})

	client := testClient(t, mux)

	df, err := client.Datasets(context.Background())
	assert.NoError(err)
	assert.Equal(2, df.Nrow())
	assert.Equal([]string{`alpha`, `beta`}, df.Col(`name`).Records())
	assert.Equal([]string{`1`, `2`}, df.Col(`id`).Records())
}

func TestDatasetsEmpty(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	mux.HandleFunc(`/api/dataset`, func(w http.ResponseWriter, req *http.Request) {
		httputil.RespondJSON(w, map[string]interface{}{
			`collection`: []map[string]interface{}{},
		})
	})

	client := testClient(t, mux)

	df, err := client.Datasets(context.Background())
	assert.NoError(err)
	assert.Equal(0, df.Nrow())
}

func TestAddDataset(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	var response map[string]interface{}

	mux.HandleFunc(`/api/dataset`, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(http.MethodPost, req.Method)
		httputil.RespondJSON(w, response)
	})

	client := testClient(t, mux)

	// the dataset either comes back directly...
	response = map[string]interface{}{`id`: 42, `name`: `direct`}

	id, err := client.AddDataset(context.Background(), `direct`)
	assert.NoError(err)
	assert.Equal(`42`, id)

	// ...or wrapped in a single-element collection
	response = map[string]interface{}{
		`collection`: []map[string]interface{}{
			{`id`: `abc`, `name`: `wrapped`},
		},
	}

	id, err = client.AddDataset(context.Background(), `wrapped`)
	assert.NoError(err)
	assert.Equal(`abc`, id)

	response = map[string]interface{}{`status`: `ok`}

	_, err = client.AddDataset(context.Background(), `mystery`)
	assert.Error(err)

	_, err = client.AddDataset(context.Background(), ``)
	assert.Error(err)
}

func TestDeleteDataset(t *testing.T) {
	assert := require.New(t)
	mux := http.NewServeMux()

	var deleted string

	mux.HandleFunc(`/api/dataset/`, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(http.MethodDelete, req.Method)
		deleted = req.URL.Path
		httputil.RespondJSON(w, map[string]interface{}{})
	})

	client := testClient(t, mux)

	assert.NoError(client.DeleteDataset(context.Background(), `42`))
	assert.Equal(`/api/dataset/42`, deleted)

	assert.Error(client.DeleteDataset(context.Background(), ``))
}
