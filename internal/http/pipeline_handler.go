package httpapi

import (
	"net/http"

	"church-roster/internal/service"

	"go.uber.org/zap"
)

// PipelineHandler 清洗流水线接口；未配置数据源时 pipeline 为 nil
type PipelineHandler struct {
	pipeline *service.PipelineService
	logger   *zap.Logger
}

func NewPipelineHandler(pipeline *service.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, logger: logger}
}

// Run POST /pipeline/run?force=true
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("no roster source configured"))
		return
	}
	res, err := h.pipeline.Run(r.Context(), parseBool(r.URL.Query().Get("force"), false))
	if err != nil {
		writeError(w, h.logger, "RunPipeline", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// Checkpoints GET /pipeline/checkpoints
func (h *PipelineHandler) Checkpoints(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("no roster source configured"))
		return
	}
	items, err := h.pipeline.Checkpoints(r.Context())
	if err != nil {
		writeError(w, h.logger, "ListCheckpoints", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": len(items)}))
}
