// Package deviceinfo provides the stable local device identity used to key
// backend device registrations: a persisted device ID plus a best-effort
// snapshot of device metadata.
package deviceinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// Platform identifies the mobile platform a registration belongs to.
type Platform string

const (
	PlatformIOS     Platform = "iOS"
	PlatformAndroid Platform = "Android"
)

// idFileName is the file under the app state dir holding the device ID.
const idFileName = "device_id"

// Info is the device identity snapshot attached to a registration.
type Info struct {
	DeviceID   string
	Platform   Platform
	Name       string
	Model      string
	OSVersion  string
	AppVersion string
}

// Config holds the metadata the app shell knows about the device. Zero
// values fall back to host-derived best-effort defaults, which is what the
// simulator runs with.
type Config struct {
	// StateDir is where the device ID is persisted (required).
	StateDir string

	Platform   Platform
	Name       string
	Model      string
	OSVersion  string
	AppVersion string
}

// Resolve loads (or mints and persists) the stable device ID and assembles
// the identity snapshot.
func Resolve(cfg Config) (Info, error) {
	id, err := LoadOrCreateID(cfg.StateDir)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		DeviceID:   id,
		Platform:   cfg.Platform,
		Name:       cfg.Name,
		Model:      cfg.Model,
		OSVersion:  cfg.OSVersion,
		AppVersion: cfg.AppVersion,
	}

	if info.Platform == "" {
		info.Platform = hostPlatform()
	}
	if info.Name == "" {
		if host, err := os.Hostname(); err == nil {
			info.Name = host
		}
	}
	if info.Model == "" {
		info.Model = runtime.GOOS + "/" + runtime.GOARCH
	}

	return info, nil
}

// LoadOrCreateID returns the persisted device ID, minting one on first run.
// The ID survives app restarts but not a state wipe; the backend treats a
// new ID as a new device.
func LoadOrCreateID(stateDir string) (string, error) {
	if stateDir == "" {
		return "", fmt.Errorf("device identity: state dir not configured")
	}

	path := filepath.Join(stateDir, idFileName)
	if raw, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(raw))
		if id != "" {
			return id, nil
		}
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", fmt.Errorf("creating state dir: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting device id: %w", err)
	}
	return id, nil
}

// hostPlatform maps the host OS onto the closest mobile platform. Only the
// simulator exercises this path.
func hostPlatform() Platform {
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return PlatformIOS
	}
	return PlatformAndroid
}
