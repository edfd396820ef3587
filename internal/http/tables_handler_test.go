package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type fakeBridge struct {
	createErr  error
	renameErr  error
	renamed    service.RenameTableRequest
	deleted    service.DeleteTableRequest
	tagRenamed service.RenameTagRequest
	tagDeleted service.DeleteTagRequest
	added      service.AddTagRequest
	rows       []domain.TagRow
	tables     []string
}

func (f *fakeBridge) CreateDeviceTable(context.Context) (*service.CreateTableResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &service.CreateTableResponse{DeviceName: "device_abc123", TagCount: 25}, nil
}

func (f *fakeBridge) RenameTable(_ context.Context, req service.RenameTableRequest) error {
	f.renamed = req
	return f.renameErr
}

func (f *fakeBridge) DeleteTable(_ context.Context, req service.DeleteTableRequest) error {
	f.deleted = req
	return nil
}

func (f *fakeBridge) RenameTag(_ context.Context, req service.RenameTagRequest) (int64, error) {
	f.tagRenamed = req
	return 2, nil
}

func (f *fakeBridge) DeleteTag(_ context.Context, req service.DeleteTagRequest) (int64, error) {
	f.tagDeleted = req
	return 0, nil
}

func (f *fakeBridge) AddTag(_ context.Context, req service.AddTagRequest) (int64, error) {
	if _, err := domain.ParseTagType(req.TagType); err != nil {
		return 0, err
	}
	f.added = req
	return 7, nil
}

func (f *fakeBridge) ListTags(_ context.Context, table string) ([]domain.TagRow, error) {
	if table == "device_nope00" {
		return nil, &domain.NotFoundError{Kind: "table", Name: table}
	}
	return f.rows, nil
}

func (f *fakeBridge) ListTables(context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *fakeBridge) RecentEvents(_ context.Context, count int64) ([]service.TableEvent, error) {
	return []service.TableEvent{{Type: service.EventTableCreated, Table: "device_abc123", Rows: count}}, nil
}

func newTestRouter(f *fakeBridge) *Router {
	r := NewRouter(zap.NewNop())
	r.RegisterTableRoutes(NewTablesHandler(f, zap.NewNop()))
	r.RegisterHealthRoutes(nil)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestCreateTable(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	w, body := do(t, r, http.MethodPost, "/tables/create", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "device_abc123", body["device_name"])
	assert.Equal(t, float64(25), body["tag_count"])
}

func TestCreateTable_FailureIs500(t *testing.T) {
	r := newTestRouter(&fakeBridge{createErr: &domain.DiscoveryError{Op: "connect", Err: domain.ErrConnection}})

	w, body := do(t, r, http.MethodPost, "/tables/create", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["detail"], "connection error")
}

func TestCreateTable_MethodNotAllowed(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	w, _ := do(t, r, http.MethodGet, "/tables/create", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestRenameTable(t *testing.T) {
	f := &fakeBridge{}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodPut, "/tables/rename", map[string]string{"old_name": "device_abc123", "new_name": "boiler"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Table device_abc123 renamed to boiler", body["message"])
	assert.Equal(t, service.RenameTableRequest{OldName: "device_abc123", NewName: "boiler"}, f.renamed)
}

func TestRenameTable_NotFoundIs400(t *testing.T) {
	r := newTestRouter(&fakeBridge{renameErr: &domain.NotFoundError{Kind: "table", Name: "nope"}})

	w, body := do(t, r, http.MethodPut, "/tables/rename", map[string]string{"old_name": "nope", "new_name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `table "nope" not found`, body["detail"])
}

func TestRenameTable_InvalidBody(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	req := httptest.NewRequest(http.MethodPut, "/tables/rename", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPut, "/tables/rename", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTable(t *testing.T) {
	f := &fakeBridge{}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodDelete, "/tables/delete", map[string]string{"table_name": "device_abc123"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Table device_abc123 deleted", body["message"])
	assert.Equal(t, "device_abc123", f.deleted.TableName)
}

func TestRenameAndDeleteTag(t *testing.T) {
	f := &fakeBridge{}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodPut, "/tags/rename", map[string]string{"table_name": "device_abc123", "old_name": "tag1", "new_name": "pressure"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["rows"])
	assert.Equal(t, "pressure", f.tagRenamed.NewName)

	w, body = do(t, r, http.MethodDelete, "/tags/delete", map[string]string{"table_name": "device_abc123", "tag_name": "ghost"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["rows"])
	assert.Equal(t, "ghost", f.tagDeleted.TagName)
}

func TestAddTag(t *testing.T) {
	f := &fakeBridge{}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodPost, "/tags/add", map[string]string{
		"table_name": "device_abc123", "tag_name": "tag25", "tag_type": "Int", "tag_value": "3",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, "3", f.added.TagValue)
}

func TestAddTag_UnknownTypeIs400(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	w, body := do(t, r, http.MethodPost, "/tags/add", map[string]string{
		"table_name": "device_abc123", "tag_name": "price", "tag_type": "Currency", "tag_value": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["detail"], "Currency")
}

func TestListTablesAndTags(t *testing.T) {
	f := &fakeBridge{
		tables: []string{"device_abc123"},
		rows:   []domain.TagRow{{ID: 1, TagName: "tag0", TagType: "Int", TagValue: "0"}},
	}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodGet, "/tables", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"device_abc123"}, body["result"])

	w, body = do(t, r, http.MethodGet, "/tables/tags?table_name=device_abc123", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	rows := body["result"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "tag0", rows[0].(map[string]any)["tag_name"])

	w, _ = do(t, r, http.MethodGet, "/tables/tags", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/tables/tags?table_name=device_nope00", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEndpoints_EmptyResultIsArray(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	w, body := do(t, r, http.MethodGet, "/tables", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, body, "result")
	assert.Equal(t, []any{}, body["result"])

	w, body = do(t, r, http.MethodGet, "/tables/tags?table_name=device_abc123", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, body, "result")
	assert.Equal(t, []any{}, body["result"])
}

func TestStatusResponsesHaveNoResultKey(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	_, body := do(t, r, http.MethodGet, "/tables/tags", nil)
	assert.Equal(t, "error", body["status"])
	assert.NotContains(t, body, "result")
}

func TestExportTable_FilenameIsQuoted(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	table := `boiler "A"; line 1`
	req := httptest.NewRequest(http.MethodGet, "/tables/export?table_name="+url.QueryEscape(table), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, table+".xlsx", params["filename"])
}

func TestExportTable(t *testing.T) {
	f := &fakeBridge{rows: []domain.TagRow{
		{ID: 1, TagName: "tag0", TagType: "Double", TagValue: "0.0"},
		{ID: 2, TagName: "tag1", TagType: "ByteString", TagValue: "0x30"},
	}}
	r := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/tables/export?table_name=device_abc123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=device_abc123.xlsx", w.Header().Get("Content-Disposition"))

	xf, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer xf.Close()

	rows, err := xf.GetRows(tagsSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, TagsExportHeader, rows[0])
	assert.Equal(t, []string{"1", "tag0", "Double", "0.0"}, rows[1])
	assert.Equal(t, "0x30", rows[2][3])
}

func TestRecentEvents(t *testing.T) {
	r := newTestRouter(&fakeBridge{})

	w, body := do(t, r, http.MethodGet, "/events?count=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	events := body["result"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, float64(5), events[0].(map[string]any)["rows"])
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&fakeBridge{})
	w, body := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["message"])

	failing := NewRouter(zap.NewNop())
	failing.RegisterHealthRoutes(func(context.Context) error { return errors.New("db down") })
	w, body = do(t, failing, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "db down", body["detail"])
}
