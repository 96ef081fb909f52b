package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

type createPatchRequest struct {
	Sources []effect.DeviceKey `json:"sources"`
	Sinks   []effect.DeviceKey `json:"sinks"`
}

func (s *Server) handleListPatches(w http.ResponseWriter, _ *http.Request) {
	patches := s.panel.Patches()
	writeJSON(w, http.StatusOK, map[string]any{
		"patches": patches,
		"count":   len(patches),
	})
}

// handleCreatePatch routes sources to sinks and binds every device effect
// whose device the patch touches.
func (s *Server) handleCreatePatch(w http.ResponseWriter, r *http.Request) {
	var req createPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	patch, err := s.panel.CreatePatch(req.Sources, req.Sinks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, patch)
}

func (s *Server) handleReleasePatch(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeBadRequest(w, "invalid patch id")
		return
	}
	if err := s.panel.ReleasePatch(effect.PatchID(n)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
