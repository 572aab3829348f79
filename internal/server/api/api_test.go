package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/ayusman/parallax/internal/capture"
	"github.com/ayusman/parallax/internal/smoother"
	"github.com/ayusman/parallax/internal/store"
	"github.com/ayusman/parallax/internal/viewer"
)

// fakeViewer is an in-memory Viewer for handler tests.
type fakeViewer struct {
	mu        sync.Mutex
	devices   []capture.Device
	selected  string
	selectErr error
	camera    smoother.CameraState
	following bool
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		devices: []capture.Device{
			{ID: "cam:0", Label: "Camera 0"},
			{ID: "cam:1", Label: "Camera 1"},
		},
		selected: "cam:0",
		camera: smoother.CameraState{
			Position: r3.Vector{X: 0, Y: 2, Z: 3},
			FOV:      40,
		},
		following: true,
	}
}

func (f *fakeViewer) Devices() ([]capture.Device, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, f.selected
}

func (f *fakeViewer) SelectDevice(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.ID == id {
			if f.selectErr != nil {
				return f.selectErr
			}
			f.selected = id
			return nil
		}
	}
	return fmt.Errorf("%w: %q", capture.ErrDeviceNotFound, id)
}

func (f *fakeViewer) Camera() smoother.CameraState { return f.camera }
func (f *fakeViewer) Settled() bool                { return true }

func (f *fakeViewer) SetFollowing(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.following = enabled
}

func (f *fakeViewer) Following() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.following
}

func (f *fakeViewer) Stats() viewer.Stats {
	return viewer.Stats{Device: f.selected, Following: f.Following()}
}

func TestDevicesHandler_List(t *testing.T) {
	handler := NewDevicesHandler(newFakeViewer())

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response listDevicesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Devices) != 2 || response.Devices[1].Label != "Camera 1" {
		t.Errorf("unexpected devices %+v", response.Devices)
	}
	if response.Selected != "cam:0" {
		t.Errorf("selected = %q, want cam:0", response.Selected)
	}
}

func TestDevicesHandler_Select(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		selectErr  error
		wantStatus int
	}{
		{name: "known device", body: `{"id":"cam:1"}`, wantStatus: http.StatusNoContent},
		{name: "unknown device", body: `{"id":"cam:7"}`, wantStatus: http.StatusNotFound},
		{name: "capture failure", body: `{"id":"cam:1"}`, selectErr: capture.ErrPermissionDenied, wantStatus: http.StatusBadGateway},
		{name: "missing id", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newFakeViewer()
			v.selectErr = tt.selectErr
			handler := NewDevicesHandler(v)

			req := httptest.NewRequest(http.MethodPut, "/api/devices/selected", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDevicesHandler_Routing(t *testing.T) {
	handler := NewDevicesHandler(newFakeViewer())

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodPost, "/api/devices", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/devices/selected", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/devices/selected", http.StatusOK},
		{http.MethodGet, "/api/devices/other", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.wantStatus, rec.Code)
		}
	}
}

func TestCameraHandler(t *testing.T) {
	handler := NewCameraHandler(newFakeViewer())

	req := httptest.NewRequest(http.MethodGet, "/api/camera", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response CameraResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Position.Y != 2 || response.Position.Z != 3 || response.FOV != 40 || !response.Settled {
		t.Errorf("unexpected camera %+v", response)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/camera", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestFollowHandler(t *testing.T) {
	v := newFakeViewer()
	handler := NewFollowHandler(v)

	req := httptest.NewRequest(http.MethodPut, "/api/follow", bytes.NewBufferString(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if v.Following() {
		t.Error("following still enabled")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/follow", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var response followResponse
	json.NewDecoder(rec.Body).Decode(&response)
	if response.Enabled {
		t.Error("GET /api/follow reported enabled")
	}

	req = httptest.NewRequest(http.MethodPut, "/api/follow", bytes.NewBufferString(`{}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing enabled: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	handler := NewStatsHandler(newFakeViewer())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var stats viewer.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.Device != "cam:0" || !stats.Following {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSessionsHandler(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	handler := NewSessionsHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var empty listSessionsResponse
	json.NewDecoder(rec.Body).Decode(&empty)
	if rec.Code != http.StatusOK || empty.Sessions == nil || len(empty.Sessions) != 0 {
		t.Errorf("empty list: status %d, sessions %v", rec.Code, empty.Sessions)
	}

	id := uuid.New().String()
	s.Sessions().Create(&store.Session{ID: id, Preset: "default"})
	s.Sessions().AddEvent(id, store.EventDevice, "cam:0")

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got struct {
		ID     string        `json:"id"`
		Events []store.Event `json:"events"`
	}
	json.NewDecoder(rec.Body).Decode(&got)
	if got.ID != id || len(got.Events) != 1 {
		t.Errorf("unexpected session %+v", got)
	}

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/sessions/missing", http.StatusNotFound},
		{"/api/sessions?limit=abc", http.StatusBadRequest},
		{"/api/sessions?limit=1", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.wantStatus {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.wantStatus, rec.Code)
		}
	}
}
