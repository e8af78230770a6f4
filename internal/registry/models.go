// Package registry is the HTTP client for the backend device-registration
// resource. Every operation is scoped to the factory resolved from the
// active session.
package registry

import (
	"errors"
	"time"

	"github.com/factorylink/factorylink/internal/deviceinfo"
)

// Client errors.
var (
	// ErrMissingTenant indicates no factory could be resolved from the
	// active session. Raised before any network call.
	ErrMissingTenant = errors.New("no factory context in session")
)

// DeviceRegistration is one device's subscription to push delivery for one
// user session. The backend keeps at most one active registration per
// (DeviceID, FactoryID) pair.
type DeviceRegistration struct {
	PushToken   string
	Platform    deviceinfo.Platform
	DeviceID    string
	DeviceName  string
	DeviceModel string
	OSVersion   string
	AppVersion  string
}

// RegistrationFor builds a registration from a device identity and a token.
func RegistrationFor(info deviceinfo.Info, pushToken string) DeviceRegistration {
	return DeviceRegistration{
		PushToken:   pushToken,
		Platform:    info.Platform,
		DeviceID:    info.DeviceID,
		DeviceName:  info.Name,
		DeviceModel: info.Model,
		OSVersion:   info.OSVersion,
		AppVersion:  info.AppVersion,
	}
}

// HistoryItem is one entry of the device's notification history.
type HistoryItem struct {
	ID        string
	Type      string
	Title     string
	Content   string
	IsRead    bool
	CreatedAt time.Time
	Source    string
	SourceID  string
}

// Wire DTOs.

type registerRequest struct {
	PushToken   string `json:"pushToken"`
	Platform    string `json:"platform"`
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName,omitempty"`
	DeviceModel string `json:"deviceModel,omitempty"`
	OSVersion   string `json:"osVersion,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
}

type registerResponse struct {
	RegisteredAt time.Time `json:"registeredAt"`
}

type updateTokenRequest struct {
	PushToken string `json:"pushToken"`
}

type historyResponse struct {
	Items []historyItem `json:"items"`
}

type historyItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	Source    string    `json:"source"`
	SourceID  string    `json:"sourceId"`
}
