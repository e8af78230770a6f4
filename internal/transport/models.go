// Package transport wraps the platform notification runtime: permission
// handling, delivery channels, push-token acquisition, badge state and
// notification dismissal. It is the only package that talks to the platform.
package transport

import (
	"errors"
	"time"
)

// Runtime errors surfaced by platform bindings.
var (
	// ErrUnsupportedDevice indicates the environment has no push capability
	// (simulator, emulator, CI host).
	ErrUnsupportedDevice = errors.New("device does not support push notifications")

	// ErrPermissionDenied indicates the user declined the notification prompt.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrMisconfigured indicates a missing build-time push configuration
	// (e.g. no project identifier). A deployment defect, not a user choice.
	ErrMisconfigured = errors.New("push configuration missing")
)

// State represents the adapter lifecycle state.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateInitializing      State = "initializing"
	StateReady             State = "ready"
	StatePermissionDenied  State = "permission_denied"
	StateUnsupportedDevice State = "unsupported_device"
)

// TokenStatus classifies the outcome of a push-token request.
type TokenStatus string

const (
	// TokenReady means a valid push token was obtained.
	TokenReady TokenStatus = "ready"

	// TokenNoDevice means the environment cannot issue push tokens.
	TokenNoDevice TokenStatus = "no_device"

	// TokenPermissionDenied means the user declined notification permission.
	TokenPermissionDenied TokenStatus = "permission_denied"

	// TokenMisconfigured means the build lacks push configuration or the
	// runtime issued a token in an unrecognized format.
	TokenMisconfigured TokenStatus = "misconfigured"
)

// TokenResult is the tagged outcome of a token request. Callers branch on
// Status rather than inferring the cause from an empty token.
type TokenResult struct {
	Status TokenStatus
	Token  string
}

// Ready reports whether a usable token was obtained.
func (r TokenResult) Ready() bool {
	return r.Status == TokenReady
}

// ChannelImportance is the delivery priority of a notification channel.
type ChannelImportance string

const (
	ImportanceDefault ChannelImportance = "default"
	ImportanceHigh    ChannelImportance = "high"
	ImportanceMax     ChannelImportance = "max"
)

// Channel describes a platform delivery channel.
type Channel struct {
	ID         string
	Name       string
	Importance ChannelImportance
}

// Well-known channel IDs.
const (
	ChannelDefault  = "default"
	ChannelApproval = "approval"
	ChannelQuality  = "quality"
)

// DefaultChannels returns the delivery channels configured at initialization.
// Approval requests interrupt (max importance); quality alerts are high.
func DefaultChannels() []Channel {
	return []Channel{
		{ID: ChannelDefault, Name: "General", Importance: ImportanceDefault},
		{ID: ChannelApproval, Name: "Approvals", Importance: ImportanceMax},
		{ID: ChannelQuality, Name: "Quality", Importance: ImportanceHigh},
	}
}

// Notification is a message delivered to the device. Data is an opaque
// routing payload passed through unchanged from the sender.
type Notification struct {
	Title      string
	Body       string
	Data       map[string]string
	ReceivedAt time.Time
}

// Source returns the routing source from the data payload, if present.
func (n Notification) Source() string {
	return n.Data["source"]
}

// SourceID returns the opaque foreign key from the data payload, if present.
func (n Notification) SourceID() string {
	return n.Data["sourceId"]
}

// Handler consumes a delivered or tapped notification.
type Handler func(Notification)
