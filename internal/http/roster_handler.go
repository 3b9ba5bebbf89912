package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"church-roster/internal/conflict"
	"church-roster/internal/service"
	"church-roster/internal/suggestion"

	"go.uber.org/zap"
)

// RosterHandler 排班接口
type RosterHandler struct {
	roster *service.RosterService
	logger *zap.Logger
}

func NewRosterHandler(roster *service.RosterService, logger *zap.Logger) *RosterHandler {
	return &RosterHandler{roster: roster, logger: logger}
}

// ListIdentities GET /identities
func (h *RosterHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	items, err := h.roster.ListIdentities(r.Context())
	if err != nil {
		writeError(w, h.logger, "ListIdentities", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": len(items)}))
}

// MergeIdentities POST /identities/merge
// body: {"source_id","target_id","keep_display_name"}
func (h *RosterHandler) MergeIdentities(w http.ResponseWriter, r *http.Request) {
	var req service.MergeRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, "MergeIdentities", err)
		return
	}
	resp, err := h.roster.Merge(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "MergeIdentities", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// checkRequestFrom period=2025-11&family=true&availability=true&overload=true
// 未传的检查项默认开启
func checkRequestFrom(r *http.Request) service.CheckRequest {
	q := r.URL.Query()
	return service.CheckRequest{
		Period: strings.TrimSpace(q.Get("period")),
		Flags: conflict.Flags{
			CheckFamily:       parseBool(q.Get("family"), true),
			CheckAvailability: parseBool(q.Get("availability"), true),
			CheckOverload:     parseBool(q.Get("overload"), true),
		},
	}
}

// CheckConflicts GET /conflicts
func (h *RosterHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	res, err := h.roster.CheckConflicts(r.Context(), checkRequestFrom(r))
	if err != nil {
		writeError(w, h.logger, "CheckConflicts", err)
		return
	}
	if res.HasErrors() {
		writeJSON(w, http.StatusOK, Warn(fmt.Sprintf("%d conflicts need attention", res.Summary.Total), res))
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// ExportConflicts GET /conflicts/export，返回 xlsx
func (h *RosterHandler) ExportConflicts(w http.ResponseWriter, r *http.Request) {
	req := checkRequestFrom(r)
	data, err := h.roster.ExportConflicts(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "ExportConflicts", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="conflicts-%s.xlsx"`, req.Period))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Suggest GET /suggestions?date=&roles=&availability=&family=&balance=&limit=
func (h *RosterHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.roster.Suggest(r.Context(), service.SuggestRequest{
		Date:  strings.TrimSpace(q.Get("date")),
		Roles: splitList(q["roles"]),
		Flags: suggestion.Flags{
			ConsiderAvailability: parseBool(q.Get("availability"), true),
			ConsiderFamily:       parseBool(q.Get("family"), true),
			ConsiderBalance:      parseBool(q.Get("balance"), true),
		},
		Limit: parseInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, h.logger, "Suggest", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// IsAvailable GET /availability?person_id=&date=
func (h *RosterHandler) IsAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.roster.IsAvailable(r.Context(), q.Get("person_id"), q.Get("date"))
	if err != nil {
		writeError(w, h.logger, "IsAvailable", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// AddUnavailability POST /availability/windows
func (h *RosterHandler) AddUnavailability(w http.ResponseWriter, r *http.Request) {
	var req service.AddUnavailabilityRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, "AddUnavailability", err)
		return
	}
	window, err := h.roster.AddUnavailability(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "AddUnavailability", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(window))
}

// SetFamilyGroup POST /families
func (h *RosterHandler) SetFamilyGroup(w http.ResponseWriter, r *http.Request) {
	var req service.SetFamilyRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, "SetFamilyGroup", err)
		return
	}
	group, err := h.roster.SetFamilyGroup(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "SetFamilyGroup", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(group))
}
