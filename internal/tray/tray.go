// Package tray provides the desktop tray menu for the parallax viewer.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onFollow     func(enabled bool)
	onNextCamera func()
	onOpen       func()
	onQuit       func()
	following    bool
	device       string
	mu           sync.RWMutex

	// Menu items stored for later updates
	menuFollow *systray.MenuItem
	menuDevice *systray.MenuItem
}

// New creates a new Tray with following enabled.
func New() *Tray {
	return &Tray{
		following: true,
	}
}

// OnFollow sets the callback called when face following is toggled.
func (t *Tray) OnFollow(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFollow = fn
}

// OnNextCamera sets the callback called when "Next camera" is clicked.
func (t *Tray) OnNextCamera(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNextCamera = fn
}

// OnOpen sets the callback called when "Open viewer" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback called when "Quit" is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// It must be called from the main goroutine and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, unblocking Run.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Parallax")
	systray.SetTooltip("Parallax face-driven viewer")

	t.mu.Lock()
	t.menuFollow = systray.AddMenuItem(followTitle(t.following), "Toggle face following")
	systray.AddSeparator()
	t.menuDevice = systray.AddMenuItem(deviceTitle(t.device), "Active camera")
	t.menuDevice.Disable()
	t.mu.Unlock()

	menuNext := systray.AddMenuItem("Next Camera", "Switch to the next camera")
	systray.AddSeparator()
	menuOpen := systray.AddMenuItem("Open Viewer...", "Open the viewer in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Parallax")

	go func() {
		for {
			select {
			case <-t.menuFollow.ClickedCh:
				t.handleFollow()
			case <-menuNext.ClickedCh:
				t.handle(func() func() { return t.onNextCamera })
			case <-menuOpen.ClickedCh:
				t.handle(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.handle(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func followTitle(enabled bool) string {
	if enabled {
		return "● Following"
	}
	return "○ Paused"
}

func deviceTitle(device string) string {
	if device == "" {
		return "Camera: none"
	}
	return "Camera: " + device
}

// handleFollow flips following and notifies the callback.
func (t *Tray) handleFollow() {
	t.mu.Lock()
	t.following = !t.following
	enabled := t.following
	if t.menuFollow != nil {
		t.menuFollow.SetTitle(followTitle(enabled))
	}
	callback := t.onFollow
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handle(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetFollowing updates the follow state shown in the menu without firing
// the callback.
func (t *Tray) SetFollowing(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.following = enabled
	if t.menuFollow != nil {
		t.menuFollow.SetTitle(followTitle(enabled))
	}
}

// SetDevice updates the active camera shown in the menu.
func (t *Tray) SetDevice(device string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.device = device
	if t.menuDevice != nil {
		t.menuDevice.SetTitle(deviceTitle(device))
	}
}

// Following returns the current follow state.
func (t *Tray) Following() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.following
}

// Device returns the camera shown in the menu.
func (t *Tray) Device() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.device
}
