// Package api provides the JSON HTTP handlers for the parallax viewer.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/parallax/internal/capture"
	"github.com/ayusman/parallax/internal/smoother"
	"github.com/ayusman/parallax/internal/viewer"
)

// Viewer is the part of the viewer the API drives.
type Viewer interface {
	Devices() ([]capture.Device, string)
	SelectDevice(id string) error
	Camera() smoother.CameraState
	Settled() bool
	SetFollowing(enabled bool)
	Following() bool
	Stats() viewer.Stats
}

var _ Viewer = (*viewer.Viewer)(nil)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
