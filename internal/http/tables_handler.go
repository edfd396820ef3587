package httpapi

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/service"

	"go.uber.org/zap"
)

// BridgeAPI 桥接服务能力（由 *service.BridgeService 实现）
type BridgeAPI interface {
	CreateDeviceTable(ctx context.Context) (*service.CreateTableResponse, error)
	RenameTable(ctx context.Context, req service.RenameTableRequest) error
	DeleteTable(ctx context.Context, req service.DeleteTableRequest) error
	RenameTag(ctx context.Context, req service.RenameTagRequest) (int64, error)
	DeleteTag(ctx context.Context, req service.DeleteTagRequest) (int64, error)
	AddTag(ctx context.Context, req service.AddTagRequest) (int64, error)
	ListTags(ctx context.Context, table string) ([]domain.TagRow, error)
	ListTables(ctx context.Context) ([]string, error)
	RecentEvents(ctx context.Context, count int64) ([]service.TableEvent, error)
}

var _ BridgeAPI = (*service.BridgeService)(nil)

// TablesHandler 设备表 HTTP 处理器
type TablesHandler struct {
	svc    BridgeAPI
	logger *zap.Logger
}

// NewTablesHandler 创建处理器
func NewTablesHandler(svc BridgeAPI, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{svc: svc, logger: logger}
}

// CreateTableResult POST /tables/create 的响应
type CreateTableResult struct {
	Status     string   `json:"status"`
	DeviceName string   `json:"device_name"`
	TagCount   int      `json:"tag_count"`
	Skipped    []string `json:"skipped,omitempty"`
}

// RowsResult 批量标签操作的响应
type RowsResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Rows    int64  `json:"rows"`
}

// AddTagResult POST /tags/add 的响应
type AddTagResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// writeError 请求体与领域错误都按 status 返回，body 为 {"status":"error","detail":...}
func (h *TablesHandler) writeError(w http.ResponseWriter, status int, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		h.logger.Debug("Request rejected", zap.String("op", op), zap.Error(err))
	default:
		h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, status, Fail(err.Error()))
}

func (h *TablesHandler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := readBodyJSON(r, maxBodyBytes, out); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid body: %v", err)))
		return false
	}
	return true
}

// CreateTable POST /tables/create
func (h *TablesHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	resp, err := h.svc.CreateDeviceTable(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "create_table", err)
		return
	}
	writeJSON(w, http.StatusOK, CreateTableResult{
		Status:     StatusSuccess,
		DeviceName: resp.DeviceName,
		TagCount:   resp.TagCount,
		Skipped:    resp.Skipped,
	})
}

// RenameTable PUT /tables/rename
func (h *TablesHandler) RenameTable(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	var req service.RenameTableRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RenameTable(r.Context(), req); err != nil {
		h.writeError(w, http.StatusBadRequest, "rename_table", err)
		return
	}
	writeJSON(w, http.StatusOK, Message(fmt.Sprintf("Table %s renamed to %s", req.OldName, req.NewName)))
}

// DeleteTable DELETE /tables/delete
func (h *TablesHandler) DeleteTable(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	var req service.DeleteTableRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteTable(r.Context(), req); err != nil {
		h.writeError(w, http.StatusBadRequest, "delete_table", err)
		return
	}
	writeJSON(w, http.StatusOK, Message(fmt.Sprintf("Table %s deleted", req.TableName)))
}

// RenameTag PUT /tags/rename
func (h *TablesHandler) RenameTag(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	var req service.RenameTagRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.svc.RenameTag(r.Context(), req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "rename_tag", err)
		return
	}
	writeJSON(w, http.StatusOK, RowsResult{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Tag %s renamed to %s in table %s", req.OldName, req.NewName, req.TableName),
		Rows:    n,
	})
}

// DeleteTag DELETE /tags/delete
func (h *TablesHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	var req service.DeleteTagRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.svc.DeleteTag(r.Context(), req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "delete_tag", err)
		return
	}
	writeJSON(w, http.StatusOK, RowsResult{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Tag %s deleted from table %s", req.TagName, req.TableName),
		Rows:    n,
	})
}

// AddTag POST /tags/add
func (h *TablesHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req service.AddTagRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.AddTag(r.Context(), req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "add_tag", err)
		return
	}
	writeJSON(w, http.StatusOK, AddTagResult{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Tag %s added to table %s", req.TagName, req.TableName),
		ID:      id,
	})
}

// ListTables GET /tables
func (h *TablesHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tables, err := h.svc.ListTables(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "list_tables", err)
		return
	}
	writeJSON(w, http.StatusOK, List(tables))
}

func tableParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	table := strings.TrimSpace(r.URL.Query().Get("table_name"))
	if table == "" {
		writeJSON(w, http.StatusBadRequest, Fail("table_name is required"))
		return "", false
	}
	return table, true
}

// ListTags GET /tables/tags?table_name=
func (h *TablesHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListTags(r.Context(), table)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "list_tags", err)
		return
	}
	writeJSON(w, http.StatusOK, List(rows))
}

// ExportTable GET /tables/export?table_name=，返回 xlsx
func (h *TablesHandler) ExportTable(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	table, ok := tableParam(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListTags(r.Context(), table)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "export_table", err)
		return
	}
	data, err := GenerateTagsExport(table, rows)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "export_table", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(table+".xlsx"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// attachment 文件名按需加引号或转义（改名后的表名可能含空格、";" 或 "\""）
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

// RecentEvents GET /events?count=
func (h *TablesHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	count := parseInt(r.URL.Query().Get("count"), 20)
	events, err := h.svc.RecentEvents(r.Context(), int64(count))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "recent_events", err)
		return
	}
	writeJSON(w, http.StatusOK, List(events))
}
