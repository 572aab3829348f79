package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/parallax/internal/capture"
)

// DevicesHandler lists capture devices and switches between them.
type DevicesHandler struct {
	viewer Viewer
}

// NewDevicesHandler creates a new DevicesHandler.
func NewDevicesHandler(v Viewer) *DevicesHandler {
	return &DevicesHandler{viewer: v}
}

type deviceResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type listDevicesResponse struct {
	Devices  []deviceResponse `json:"devices"`
	Selected string           `json:"selected"`
}

type selectDeviceRequest struct {
	ID string `json:"id"`
}

// ServeHTTP routes /api/devices and /api/devices/selected.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/devices")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
	case "selected":
		switch r.Method {
		case http.MethodGet:
			_, selected := h.viewer.Devices()
			writeJSON(w, http.StatusOK, selectDeviceRequest{ID: selected})
		case http.MethodPut:
			h.selectDevice(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

// list handles GET /api/devices.
func (h *DevicesHandler) list(w http.ResponseWriter, r *http.Request) {
	devices, selected := h.viewer.Devices()

	response := listDevicesResponse{
		Devices:  make([]deviceResponse, 0, len(devices)),
		Selected: selected,
	}
	for _, d := range devices {
		response.Devices = append(response.Devices, deviceResponse{ID: d.ID, Label: d.Label})
	}

	writeJSON(w, http.StatusOK, response)
}

// selectDevice handles PUT /api/devices/selected.
func (h *DevicesHandler) selectDevice(w http.ResponseWriter, r *http.Request) {
	var req selectDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Device id is required")
		return
	}

	err := h.viewer.SelectDevice(req.ID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, capture.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "Device not found")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
