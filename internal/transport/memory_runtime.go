package transport

import (
	"context"
	"sync"
)

// MemoryRuntime is an in-process Runtime used by tests and the simulator.
// It is scriptable: tests flip capability, permission and configuration
// switches and inject deliveries, taps and token rotations.
type MemoryRuntime struct {
	mu sync.Mutex

	// Script switches.
	supportsPush       bool
	grantPermission    bool
	permissionErr      error
	token              string
	tokenErr           error
	channelErr         error
	permissionAsked    int
	channelsConfigured []Channel

	badge     int
	dismissed int

	deliveryFn Handler
	responseFn Handler
	tokenFn    func(string)
}

// NewMemoryRuntime creates a runtime that behaves like a physical device
// with permission granted and a well-formed token.
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{
		supportsPush:    true,
		grantPermission: true,
		token:           "ExponentPushToken[memory-runtime]",
	}
}

// SetSupportsPush scripts push capability.
func (m *MemoryRuntime) SetSupportsPush(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supportsPush = v
}

// SetPermission scripts the permission prompt outcome.
func (m *MemoryRuntime) SetPermission(granted bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantPermission = granted
	m.permissionErr = err
}

// SetToken scripts the token response.
func (m *MemoryRuntime) SetToken(token string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.tokenErr = err
}

// SetChannelError scripts channel configuration failure.
func (m *MemoryRuntime) SetChannelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelErr = err
}

// PermissionRequests returns how many times permission was requested.
func (m *MemoryRuntime) PermissionRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissionAsked
}

// ConfiguredChannels returns the channels configured so far.
func (m *MemoryRuntime) ConfiguredChannels() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Channel, len(m.channelsConfigured))
	copy(out, m.channelsConfigured)
	return out
}

// Dismissals returns how many times DismissAll was called.
func (m *MemoryRuntime) Dismissals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dismissed
}

// Deliver simulates a foreground notification delivery.
func (m *MemoryRuntime) Deliver(n Notification) {
	m.mu.Lock()
	fn := m.deliveryFn
	m.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// Tap simulates the user tapping a notification.
func (m *MemoryRuntime) Tap(n Notification) {
	m.mu.Lock()
	fn := m.responseFn
	m.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// RotateToken simulates a platform token rotation.
func (m *MemoryRuntime) RotateToken(token string) {
	m.mu.Lock()
	m.token = token
	fn := m.tokenFn
	m.mu.Unlock()
	if fn != nil {
		fn(token)
	}
}

// Runtime interface.

func (m *MemoryRuntime) SupportsPush() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supportsPush
}

func (m *MemoryRuntime) RequestPermission(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissionAsked++
	return m.grantPermission, m.permissionErr
}

func (m *MemoryRuntime) ConfigureChannel(_ context.Context, ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channelErr != nil {
		return m.channelErr
	}
	m.channelsConfigured = append(m.channelsConfigured, ch)
	return nil
}

func (m *MemoryRuntime) DevicePushToken(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return "", m.tokenErr
	}
	return m.token, nil
}

func (m *MemoryRuntime) BadgeCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.badge, nil
}

func (m *MemoryRuntime) SetBadgeCount(_ context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badge = n
	return nil
}

func (m *MemoryRuntime) DismissAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed++
	return nil
}

func (m *MemoryRuntime) OnDelivery(fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveryFn = fn
}

func (m *MemoryRuntime) OnResponse(fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFn = fn
}

func (m *MemoryRuntime) OnTokenChange(fn func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenFn = fn
}
