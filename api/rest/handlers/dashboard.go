package handlers

import (
	"encoding/json"
	"net/http"

	"lora-console/core/presets"
	"lora-console/core/store"
	"lora-console/core/view"
)

// DashboardHandler serves the view state
type DashboardHandler struct {
	store       *store.Store
	artifactURL view.URLFunc
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(st *store.Store, artifactURL view.URLFunc) *DashboardHandler {
	return &DashboardHandler{
		store:       st,
		artifactURL: artifactURL,
	}
}

// GetState handles GET /v1/state
func (h *DashboardHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// GetDashboard handles GET /v1/dashboard as plain text
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	st := h.store.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	view.RenderDashboard(w, &st, h.artifactURL)
}

// SuggestRequest asks for a VRAM suggestion and optionally a profile
type SuggestRequest struct {
	VRAMGB  *float64 `json:"vram_gb,omitempty"`
	Profile string   `json:"profile,omitempty"`
}

// SuggestResponse holds whichever suggestions were requested
type SuggestResponse struct {
	VRAM      *presets.VRAMSuggestion  `json:"vram,omitempty"`
	VRAMLabel string                   `json:"vram_label,omitempty"`
	Profile   *presets.Hyperparameters `json:"profile,omitempty"`
	Profiles  []presets.Profile        `json:"profiles"`
}

// Suggest handles POST /v1/suggest
func (h *DashboardHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp := SuggestResponse{Profiles: presets.Profiles()}
	if req.VRAMGB != nil {
		if *req.VRAMGB < 0 {
			http.Error(w, "vram_gb must not be negative", http.StatusBadRequest)
			return
		}
		s := presets.SuggestByVRAM(*req.VRAMGB)
		resp.VRAM = &s
		resp.VRAMLabel = s.String()
	}
	if req.Profile != "" {
		hp, err := presets.Lookup(presets.Profile(req.Profile))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp.Profile = &hp
	}
	writeJSON(w, http.StatusOK, resp)
}
