package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fx/internal/auth"
	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/journal"
)

// createEffectRequest selects a catalog effect by UUID or by name.
type createEffectRequest struct {
	UUID                  uuid.UUID        `json:"uuid"`
	Effect                string           `json:"effect"`
	Device                effect.DeviceKey `json:"device"`
	Probe                 bool             `json:"probe"`
	NotifyFramesProcessed bool             `json:"notify_frames_processed"`
}

type createEffectResponse struct {
	HandleID   uuid.UUID         `json:"handle_id"`
	InstanceID int32             `json:"instance_id"`
	Enabled    bool              `json:"enabled"`
	Device     effect.DeviceKey  `json:"device"`
	Effect     effect.Descriptor `json:"effect"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleView is an owned handle as reported by GET /effects/handles.
type handleView struct {
	effect.HandleInfo
	InstanceID int32            `json:"instance_id,omitempty"`
	Device     effect.DeviceKey `json:"device"`
	Effect     string           `json:"effect"`
	Stale      bool             `json:"stale"`
}

// handleListEffects returns a snapshot of every live instance.
func (s *Server) handleListEffects(w http.ResponseWriter, _ *http.Request) {
	instances := s.registry.Instances()
	writeJSON(w, http.StatusOK, map[string]any{
		"instances": instances,
		"count":     len(instances),
	})
}

// handleListCatalog returns the effects the HAL can create.
func (s *Server) handleListCatalog(w http.ResponseWriter, _ *http.Request) {
	all := s.catalog.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"effects": all,
		"count":   len(all),
	})
}

// handleCreateEffect attaches a new handle for the caller to the instance for
// the requested device and effect, or only runs the compatibility check when
// probe is set.
func (s *Server) handleCreateEffect(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing identity")
		return
	}

	var req createEffectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Device.Type == effect.DeviceNone {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "device.type is required")
		return
	}

	var desc effect.Descriptor
	var err error
	switch {
	case req.UUID != uuid.Nil:
		desc, err = s.catalog.Lookup(req.UUID)
	case req.Effect != "":
		desc, err = s.catalog.FindByName(req.Effect)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "uuid or effect is required")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var (
		h       *effect.Handle
		enabled bool
	)
	// Holding the panel's dispatch lock keeps patch events from interleaving
	// with the instance's first binding.
	s.panel.WithSnapshot(func(patches effect.PatchSnapshot) {
		h, enabled, err = s.registry.CreateEffect(effect.CreateRequest{
			Descriptor:            desc,
			Device:                req.Device,
			Client:                effect.ClientIdentity{ID: id.ClientID, PID: id.PID, UID: id.UID},
			Patches:               patches,
			Probe:                 req.Probe,
			NotifyFramesProcessed: req.NotifyFramesProcessed,
		})
	})
	if err != nil {
		s.logger.Info("effect creation refused",
			"client_id", id.ClientID,
			"effect", desc.Name,
			"device", req.Device.String(),
			"error", err,
		)
		writeDomainError(w, err)
		return
	}

	if req.Probe {
		writeJSON(w, http.StatusOK, map[string]any{
			"compatible": true,
			"effect":     desc,
		})
		return
	}

	s.trackHandle(h)
	resp := createEffectResponse{
		HandleID: h.ID(),
		Enabled:  enabled,
		Device:   req.Device,
		Effect:   desc,
	}
	if inst, ok := h.Instance(); ok {
		resp.InstanceID = inst.ID()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleListHandles lists the caller's handles, or every owned handle for
// roles with effect:any.
func (s *Server) handleListHandles(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context()) //nolint:errcheck // authMiddleware guarantees an identity
	all := auth.HasPermission(id.Role, auth.PermEffectAny)

	s.handlesMu.Lock()
	owned := make([]*effect.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		if all || h.Client().ID == id.ClientID {
			owned = append(owned, h)
		}
	}
	s.handlesMu.Unlock()

	views := make([]handleView, 0, len(owned))
	for _, h := range owned {
		v := handleView{HandleInfo: h.Info(), Stale: true}
		if inst, ok := h.Instance(); ok {
			v.InstanceID = inst.ID()
			v.Device = inst.Device()
			v.Effect = inst.Descriptor().Name
			v.Stale = false
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handles": views,
		"count":   len(views),
	})
}

// handleFromRequest resolves the {id} URL parameter to a handle the caller
// may act on. Handles of other clients are reported as not found unless the
// caller's role grants effect:any.
func (s *Server) handleFromRequest(w http.ResponseWriter, r *http.Request) (*effect.Handle, bool) {
	handleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid handle id")
		return nil, false
	}
	h, ok := s.lookupHandle(handleID)
	if !ok {
		writeNotFound(w, "handle not found")
		return nil, false
	}
	id, _ := identityFromContext(r.Context()) //nolint:errcheck // authMiddleware guarantees an identity
	if h.Client().ID != id.ClientID && !auth.HasPermission(id.Role, auth.PermEffectAny) {
		writeNotFound(w, "handle not found")
		return nil, false
	}
	return h, true
}

// handleSetHandleEnabled changes a handle's enabled flag.
func (s *Server) handleSetHandleEnabled(w http.ResponseWriter, r *http.Request) {
	h, ok := s.handleFromRequest(w, r)
	if !ok {
		return
	}

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "enabled is required")
		return
	}

	instanceEnabled, err := h.SetEnabled(*req.Enabled)
	if err != nil {
		if errors.Is(err, effect.ErrStaleHandle) {
			s.releaseHandle(h.ID())
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"handle_id":        h.ID(),
		"enabled":          *req.Enabled,
		"instance_enabled": instanceEnabled,
	})
}

// handleDisconnectHandle detaches a handle. With unpin=true the instance is
// evicted even when pinned, once this was its last handle.
func (s *Server) handleDisconnectHandle(w http.ResponseWriter, r *http.Request) {
	h, ok := s.handleFromRequest(w, r)
	if !ok {
		return
	}

	unpin := false
	if v := r.URL.Query().Get("unpin"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "unpin must be a boolean")
			return
		}
		unpin = parsed
	}

	if !s.releaseHandle(h.ID()) {
		writeNotFound(w, "handle not found")
		return
	}
	processed := s.registry.DisconnectEffectHandle(h, unpin)

	writeJSON(w, http.StatusOK, map[string]any{
		"handle_id": h.ID(),
		"processed": processed,
	})
}

// handleDump writes the registry diagnostic report followed by the routing
// table. A busy registry still yields the partial report, flagged by the
// X-Dump-Degraded header.
func (s *Server) handleDump(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	err := s.registry.Dump(&buf)
	switch {
	case errors.Is(err, effect.ErrLockBusy):
		w.Header().Set("X-Dump-Degraded", "true")
		s.logger.Warn("effect dump degraded: registry lock busy")
	case err != nil:
		writeInternalError(w, err.Error())
		return
	}

	fmt.Fprint(&buf, "\nPatches:\n")
	for _, p := range s.panel.Patches() {
		fmt.Fprintf(&buf, "  Patch %d: %d source(s) %d sink(s)\n", p.ID, len(p.Sources), len(p.Sinks))
		for _, d := range p.Sources {
			fmt.Fprintf(&buf, "    source %s\n", d)
		}
		for _, d := range p.Sinks {
			fmt.Fprintf(&buf, "    sink %s\n", d)
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // Best-effort write to response
}

// handleListEvents queries the lifecycle journal.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event journal not configured")
		return
	}

	filter, err := parseEventFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing effect events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseEventFilter reads journal filters from the query string.
func parseEventFilter(r *http.Request) (journal.Filter, error) { //nolint:gocognit // One branch per query parameter
	q := r.URL.Query()
	filter := journal.Filter{
		Kind:     effect.EventKind(q.Get("kind")),
		ClientID: q.Get("client_id"),
	}

	if v := q.Get("instance_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return filter, fmt.Errorf("invalid instance_id %q", v)
		}
		filter.InstanceID = int32(n)
	}
	if v := q.Get("effect_uuid"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, fmt.Errorf("invalid effect_uuid %q", v)
		}
		filter.EffectUUID = id
	}
	if v := q.Get("device_type"); v != "" {
		t, err := effect.ParseDeviceType(v)
		if err != nil {
			return filter, err
		}
		filter.Device = &effect.DeviceKey{Type: t, Address: q.Get("device_address")}
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid since %q: want RFC3339", v)
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset %q", v)
		}
		filter.Offset = n
	}
	return filter, nil
}
