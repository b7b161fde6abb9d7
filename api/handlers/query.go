package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/types"
)

// ===== 查询 Handler =====

// Engine 查询处理器依赖的引擎能力
type Engine interface {
	ProcessQuery(ctx context.Context, query string, session *types.SessionContext) (*types.RAGResult, error)
	ProcessBatch(ctx context.Context, queries []string, session *types.SessionContext) []ragflow.BatchItem
	WorkflowState(id string) (*types.WorkflowState, bool)
	Calibrate() float64
}

// QueryHandler 查询处理器
type QueryHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(engine Engine, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		engine: engine,
		logger: logger.With(zap.String("component", "query_handler")),
	}
}

// QueryRequest 单条查询请求
type QueryRequest struct {
	Query   string                `json:"query"`
	Session *types.SessionContext `json:"session,omitempty"`
}

// BatchRequest 批量查询请求
type BatchRequest struct {
	Queries []string              `json:"queries"`
	Session *types.SessionContext `json:"session,omitempty"`
}

// BatchItemResponse 批量查询单项响应
type BatchItemResponse struct {
	Query  string           `json:"query"`
	Result *types.RAGResult `json:"result,omitempty"`
	Error  *ErrorInfo       `json:"error,omitempty"`
}

// maxBatchQueries 单次批量请求的查询条数上限
const maxBatchQueries = 50

// HandleQuery 处理 POST /api/v1/query
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, types.ErrInvalidQuery, "method not allowed, use POST", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.engine.ProcessQuery(r.Context(), req.Query, req.Session)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	WriteSuccess(w, result)
}

// HandleBatch 处理 POST /api/v1/query/batch
func (h *QueryHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, types.ErrInvalidQuery, "method not allowed, use POST", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req BatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Queries) == 0 {
		WriteErrorMessage(w, types.ErrInvalidQuery, "queries must not be empty", h.logger)
		return
	}
	if len(req.Queries) > maxBatchQueries {
		WriteErrorMessage(w, types.ErrInvalidQuery, "too many queries in one batch", h.logger)
		return
	}

	items := h.engine.ProcessBatch(r.Context(), req.Queries, req.Session)

	out := make([]BatchItemResponse, len(items))
	for i, item := range items {
		out[i] = BatchItemResponse{Query: item.Query, Result: item.Result}
		if item.Err != nil {
			apiErr := asAPIError(item.Err)
			out[i].Error = &ErrorInfo{
				Code:      string(apiErr.Code),
				Message:   apiErr.Message,
				Retryable: apiErr.Retryable,
			}
		}
	}

	WriteSuccess(w, out)
}

// HandleWorkflow 处理 GET /api/v1/workflows/{id}
func (h *QueryHandler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, types.ErrInvalidQuery, "method not allowed, use GET", h.logger)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/workflows/")
	if id == "" || strings.Contains(id, "/") {
		WriteErrorMessage(w, types.ErrInvalidQuery, "workflow id is required", h.logger)
		return
	}

	state, ok := h.engine.WorkflowState(id)
	if !ok {
		WriteJSON(w, http.StatusNotFound, Response{
			Success: false,
			Error:   &ErrorInfo{Code: "NOT_FOUND", Message: "workflow not found"},
		})
		return
	}

	WriteSuccess(w, state)
}

// HandleCalibrate 处理 POST /api/v1/calibrate
func (h *QueryHandler) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, types.ErrInvalidQuery, "method not allowed, use POST", h.logger)
		return
	}

	threshold := h.engine.Calibrate()
	WriteSuccess(w, map[string]float64{"fallback_threshold": threshold})
}

// asAPIError 把任意错误规范化为结构化错误
func asAPIError(err error) *types.Error {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return types.NewError(types.ErrInternalError, err.Error())
}
