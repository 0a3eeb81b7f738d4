package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"PromptBridge/internal/diagnostics"
	apperrors "PromptBridge/internal/errors"
	"PromptBridge/internal/observability/metrics"
	"PromptBridge/internal/relay"
	"PromptBridge/internal/storage/mysql"
	"PromptBridge/pkg/logger"
)

const maxBodyBytes = 1 << 20

// PromptHandler 处理原始请求体并返回规范化结果。
type PromptHandler interface {
	Handle(ctx context.Context, body string) (*relay.Result, error)
}

// DiagnosticsReader 提供诊断记录的查询能力。
type DiagnosticsReader interface {
	ListLatest(ctx context.Context, limit int, unresolvedOnly bool) ([]mysql.DiagnosticRecord, error)
}

// Option 用于定制 Server。
type Option func(*Server)

// WithDiagnostics 挂载 GET /api/v1/diagnostics。
func WithDiagnostics(reader DiagnosticsReader) Option {
	return func(s *Server) {
		s.diagnostics = reader
	}
}

// WithShutdownTimeout 设置优雅退出的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server 负责通过 HTTP 暴露提示词中继接口。
type Server struct {
	addr            string
	handler         PromptHandler
	diagnostics     DiagnosticsReader
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, handler PromptHandler, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		handler:         handler,
		shutdownTimeout: 5 * time.Second,
		logger:          logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes 返回注册了全部路由的处理器。
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/prompt", metrics.Middleware("prompt", http.HandlerFunc(s.handlePrompt)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	if s.diagnostics != nil {
		mux.Handle("/api/v1/diagnostics", metrics.Middleware("diagnostics", http.HandlerFunc(s.handleDiagnostics)))
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("HTTP 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handlePrompt 只读取请求体，其余请求信息不参与处理。
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 POST")
		return
	}
	if s.handler == nil {
		writeError(w, http.StatusServiceUnavailable, "中继未初始化")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := s.handler.Handle(r.Context(), string(body))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "prompt relay failed", apperrors.LogAttrs(err)...)
		status := apperrors.HTTPStatusOf(err)
		writeError(w, status, strings.ToLower(http.StatusText(status)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleDiagnostics 返回最近的诊断记录，unresolved=true 时只返回未解析出内容的记录。
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	unresolved, _ := strconv.ParseBool(r.URL.Query().Get("unresolved"))

	rows, err := s.diagnostics.ListLatest(r.Context(), limit, unresolved)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "查询诊断记录失败", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	records := make([]diagnostics.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, diagnostics.FromRow(row))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
