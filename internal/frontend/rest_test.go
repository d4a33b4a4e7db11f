package frontend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasleon/poorly/internal/database"
	"github.com/tomasleon/poorly/internal/engine"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	e, err := engine.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	srv := httptest.NewServer(New(e, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestRESTCreateInsertSelect(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/"+database.DefaultName+"/create/items", map[string]interface{}{
		"columns": []map[string]string{
			{"name": "id", "type": "int"},
			{"name": "name", "type": "string"},
			{"name": "price", "type": "float"},
		},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/"+database.DefaultName+"/items", map[string]interface{}{
		"id": 1, "name": "bread", "price": 2.5,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/"+database.DefaultName+"/items", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "bread", rows[0]["name"])
	assert.Equal(t, 2.5, rows[0]["price"])
}

func TestRESTUpdateAndDelete(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/"+database.DefaultName+"/create/items", map[string]interface{}{
		"columns": []map[string]string{{"name": "name", "type": "string"}, {"name": "price", "type": "float"}},
	})
	doJSON(t, http.MethodPost, srv.URL+"/"+database.DefaultName+"/items", map[string]interface{}{"name": "bread", "price": 2.5})

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/"+database.DefaultName+"/items?filter="+`{"name":"bread"}`, map[string]interface{}{
		"set": map[string]interface{}{"price": 3.0},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var updated []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &updated))
	require.Len(t, updated, 1, "PUT must return the updated rows post-mutation")
	assert.Equal(t, "bread", updated[0]["name"])
	assert.Equal(t, 3.0, updated[0]["price"])

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/"+database.DefaultName+"/items?filter="+`{"name":"bread"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &deleted))
	require.Len(t, deleted, 1, "DELETE must return the rows that were deleted")
	assert.Equal(t, "bread", deleted[0]["name"])

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/"+database.DefaultName+"/items?filter="+`{"name":"bread"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var second []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Empty(t, second, "re-deleting an already-deleted row must return no rows")

	_, body = doJSON(t, http.MethodGet, srv.URL+"/"+database.DefaultName+"/items", nil)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Empty(t, rows)
}

func TestRESTTableNotFoundIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/"+database.DefaultName+"/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var msg string
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Contains(t, msg, "ghost")
}

func TestRESTCreateAndDropDatabase(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/shop", map[string]interface{}{"kind": "poorly"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/shop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/"+database.DefaultName, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
