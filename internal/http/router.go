package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(rec, req)
	r.logger.Debug("HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RegisterTableRoutes 设备表与标签路由
func (r *Router) RegisterTableRoutes(h *TablesHandler) {
	r.Handle("/tables/create", h.CreateTable)
	r.Handle("/tables/rename", h.RenameTable)
	r.Handle("/tables/delete", h.DeleteTable)
	r.Handle("/tags/rename", h.RenameTag)
	r.Handle("/tags/delete", h.DeleteTag)
	r.Handle("/tags/add", h.AddTag)

	r.Handle("/tables", h.ListTables)
	r.Handle("/tables/tags", h.ListTags)
	r.Handle("/tables/export", h.ExportTable)
	r.Handle("/events", h.RecentEvents)
}

// RegisterHealthRoutes /healthz；check 为 nil 时只报告进程存活
func (r *Router) RegisterHealthRoutes(check func(ctx context.Context) error) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !allowMethod(w, req, http.MethodGet) {
			return
		}
		if check != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
				return
			}
		}
		writeJSON(w, http.StatusOK, Message("ok"))
	})
}

// RegisterMetricsRoutes /metrics
func (r *Router) RegisterMetricsRoutes(h http.Handler) {
	r.HandleHandler("/metrics", h)
}
