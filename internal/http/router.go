package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const apiPrefix = "/roster/api/v1"

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

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterRosterRoutes 身份、冲突、推荐、可服事
func (r *Router) RegisterRosterRoutes(h *RosterHandler) {
	r.Handle(apiPrefix+"/identities", method(http.MethodGet, h.ListIdentities))
	r.Handle(apiPrefix+"/identities/merge", method(http.MethodPost, h.MergeIdentities))

	r.Handle(apiPrefix+"/conflicts", method(http.MethodGet, h.CheckConflicts))
	r.Handle(apiPrefix+"/conflicts/export", method(http.MethodGet, h.ExportConflicts))

	r.Handle(apiPrefix+"/suggestions", method(http.MethodGet, h.Suggest))

	r.Handle(apiPrefix+"/availability", method(http.MethodGet, h.IsAvailable))
	r.Handle(apiPrefix+"/availability/windows", method(http.MethodPost, h.AddUnavailability))
	r.Handle(apiPrefix+"/families", method(http.MethodPost, h.SetFamilyGroup))
}

// RegisterPipelineRoutes 清洗流水线
func (r *Router) RegisterPipelineRoutes(h *PipelineHandler) {
	r.Handle(apiPrefix+"/pipeline/run", method(http.MethodPost, h.Run))
	r.Handle(apiPrefix+"/pipeline/checkpoints", method(http.MethodGet, h.Checkpoints))
}

// RegisterOpsRoutes 健康检查与指标
func (r *Router) RegisterOpsRoutes() {
	r.Handle("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	r.HandleHandler("/metrics", promhttp.Handler())
}
