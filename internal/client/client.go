// Package client 桥接 HTTP API 的客户端（tagctl 使用）
package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/service"

	"github.com/go-resty/resty/v2"
)

// APIError 服务端返回的 {"status":"error","detail":...}
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bridge API error (HTTP %d): %s", e.StatusCode, e.Detail)
}

type errorBody struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// StatusResult 通用成功响应
type StatusResult struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	DeviceName string   `json:"device_name,omitempty"`
	TagCount   int      `json:"tag_count,omitempty"`
	Skipped    []string `json:"skipped,omitempty"`
	Rows       int64    `json:"rows,omitempty"`
	ID         int64    `json:"id,omitempty"`
}

type listResult[T any] struct {
	Status string `json:"status"`
	Result T      `json:"result"`
}

// Client 桥接 API 客户端
type Client struct {
	http *resty.Client
}

// New 创建客户端；变更类请求不是幂等的，不做重试
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetError(&errorBody{})
	return &Client{http: c}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// CreateTable POST /tables/create
func (c *Client) CreateTable(ctx context.Context) (*StatusResult, error) {
	var out StatusResult
	if err := c.do(ctx, resty.MethodPost, "/tables/create", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameTable PUT /tables/rename
func (c *Client) RenameTable(ctx context.Context, oldName, newName string) (*StatusResult, error) {
	var out StatusResult
	err := c.do(ctx, resty.MethodPut, "/tables/rename", service.RenameTableRequest{OldName: oldName, NewName: newName}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTable DELETE /tables/delete
func (c *Client) DeleteTable(ctx context.Context, table string) (*StatusResult, error) {
	var out StatusResult
	if err := c.do(ctx, resty.MethodDelete, "/tables/delete", service.DeleteTableRequest{TableName: table}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameTag PUT /tags/rename
func (c *Client) RenameTag(ctx context.Context, table, oldName, newName string) (*StatusResult, error) {
	var out StatusResult
	req := service.RenameTagRequest{TableName: table, OldName: oldName, NewName: newName}
	if err := c.do(ctx, resty.MethodPut, "/tags/rename", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTag DELETE /tags/delete
func (c *Client) DeleteTag(ctx context.Context, table, name string) (*StatusResult, error) {
	var out StatusResult
	req := service.DeleteTagRequest{TableName: table, TagName: name}
	if err := c.do(ctx, resty.MethodDelete, "/tags/delete", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddTag POST /tags/add
func (c *Client) AddTag(ctx context.Context, req service.AddTagRequest) (*StatusResult, error) {
	var out StatusResult
	if err := c.do(ctx, resty.MethodPost, "/tags/add", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTables GET /tables
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	var out listResult[[]string]
	if err := c.do(ctx, resty.MethodGet, "/tables", nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// ListTags GET /tables/tags?table_name=
func (c *Client) ListTags(ctx context.Context, table string) ([]domain.TagRow, error) {
	var out listResult[[]domain.TagRow]
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("table_name", table).
		SetResult(&out).
		Get("/tables/tags")
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out.Result, nil
}

// ExportTable GET /tables/export，返回 xlsx 内容
func (c *Client) ExportTable(ctx context.Context, table string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("table_name", table).
		Get("/tables/export")
	if err != nil {
		return nil, fmt.Errorf("failed to export table: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return resp.Body(), nil
}

// RecentEvents GET /events?count=
func (c *Client) RecentEvents(ctx context.Context, count int) ([]service.TableEvent, error) {
	var out listResult[[]service.TableEvent]
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("count", strconv.Itoa(count)).
		SetResult(&out).
		Get("/events")
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out.Result, nil
}

func apiError(resp *resty.Response) error {
	detail := resp.String()
	if eb, ok := resp.Error().(*errorBody); ok && eb.Detail != "" {
		detail = eb.Detail
	}
	return &APIError{StatusCode: resp.StatusCode(), Detail: detail}
}
