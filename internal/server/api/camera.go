package api

import (
	"encoding/json"
	"net/http"

	"github.com/golang/geo/r3"

	"github.com/ayusman/parallax/internal/smoother"
)

type vectorResponse struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CameraResponse is the JSON form of a camera pose.
type CameraResponse struct {
	Position vectorResponse `json:"position"`
	Target   vectorResponse `json:"target"`
	FOV      float64        `json:"fov"`
	Settled  bool           `json:"settled"`
}

func toVector(v r3.Vector) vectorResponse {
	return vectorResponse{X: v.X, Y: v.Y, Z: v.Z}
}

// NewCameraResponse converts a camera state.
func NewCameraResponse(state smoother.CameraState, settled bool) CameraResponse {
	return CameraResponse{
		Position: toVector(state.Position),
		Target:   toVector(state.Target),
		FOV:      state.FOV,
		Settled:  settled,
	}
}

// CameraHandler serves GET /api/camera.
type CameraHandler struct {
	viewer Viewer
}

// NewCameraHandler creates a new CameraHandler.
func NewCameraHandler(v Viewer) *CameraHandler {
	return &CameraHandler{viewer: v}
}

func (h *CameraHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, NewCameraResponse(h.viewer.Camera(), h.viewer.Settled()))
}

// FollowHandler serves /api/follow.
type FollowHandler struct {
	viewer Viewer
}

// NewFollowHandler creates a new FollowHandler.
func NewFollowHandler(v Viewer) *FollowHandler {
	return &FollowHandler{viewer: v}
}

type followRequest struct {
	Enabled *bool `json:"enabled"`
}

type followResponse struct {
	Enabled bool `json:"enabled"`
}

func (h *FollowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, followResponse{Enabled: h.viewer.Following()})
	case http.MethodPut:
		var req followRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "Body must be {\"enabled\": bool}")
			return
		}
		h.viewer.SetFollowing(*req.Enabled)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// StatsHandler serves GET /api/stats.
type StatsHandler struct {
	viewer Viewer
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(v Viewer) *StatsHandler {
	return &StatsHandler{viewer: v}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.viewer.Stats())
}
