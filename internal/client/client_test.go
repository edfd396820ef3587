package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Telmann/opc-ua-task/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/tables/create", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "device_name": "device_abc123", "tag_count": 25})
	})
	mux.HandleFunc("/tables/rename", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		var req service.RenameTableRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.OldName == "missing" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "detail": `table "missing" not found`})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Table " + req.OldName + " renamed to " + req.NewName})
	})
	mux.HandleFunc("/tags/delete", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req service.DeleteTagRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "tag3", req.TagName)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "deleted", "rows": 2})
	})
	mux.HandleFunc("/tables/tags", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"result": []map[string]any{{"id": 1, "tag_name": "tag0", "tag_type": "Int", "tag_value": "0"}},
		})
	})
	mux.HandleFunc("/tables/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK\x03\x04"))
	})
	mux.HandleFunc("/tables/create-broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_CreateTable(t *testing.T) {
	srv, calls := newTestServer(t)
	c := New(srv.URL, time.Second)

	res, err := c.CreateTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "device_abc123", res.DeviceName)
	assert.Equal(t, 25, res.TagCount)
	assert.Equal(t, []string{"POST /tables/create"}, *calls)
}

func TestClient_RenameTable(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL, time.Second)

	res, err := c.RenameTable(context.Background(), "device_abc123", "boiler")
	require.NoError(t, err)
	assert.Equal(t, "Table device_abc123 renamed to boiler", res.Message)

	_, err = c.RenameTable(context.Background(), "missing", "x")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, `table "missing" not found`, apiErr.Detail)
}

func TestClient_DeleteTagSendsBody(t *testing.T) {
	srv, calls := newTestServer(t)
	c := New(srv.URL, time.Second)

	res, err := c.DeleteTag(context.Background(), "device_abc123", "tag3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, []string{"DELETE /tags/delete"}, *calls)
}

func TestClient_ListTags(t *testing.T) {
	srv, calls := newTestServer(t)
	c := New(srv.URL, time.Second)

	rows, err := c.ListTags(context.Background(), "device_abc123")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tag0", rows[0].TagName)
	assert.Equal(t, []string{"GET /tables/tags?table_name=device_abc123"}, *calls)
}

func TestClient_ExportTable(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL, time.Second)

	data, err := c.ExportTable(context.Background(), "device_abc123")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04"), data)
}

func TestClient_NonJSONError(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL, time.Second)

	err := c.do(context.Background(), "POST", "/tables/create-broken", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "boom")
}
