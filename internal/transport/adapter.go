package transport

import (
	"context"
	"errors"
	"sync"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/rs/zerolog"
)

// AdapterConfig holds configuration for the transport adapter.
type AdapterConfig struct {
	// Runtime is the platform notification binding (required).
	Runtime Runtime

	// Channels configured at initialization.
	// Defaults to DefaultChannels.
	Channels []Channel

	// Logger for adapter operations.
	Logger zerolog.Logger
}

// Adapter drives the platform notification runtime through the lifecycle
// Uninitialized -> Initializing -> {Ready, PermissionDenied, UnsupportedDevice}.
//
// Badge operations are permitted in every state; token requests outside Ready
// report why no token is available instead of failing.
type Adapter struct {
	runtime  Runtime
	channels []Channel
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	foreground *subscription
	response   *subscription
	tokenSub   func(string)
	nextSubID  uint64
}

// subscription is a single-subscriber slot entry. The ID lets a disposer of
// a replaced subscription degrade to a no-op.
type subscription struct {
	id      uint64
	handler Handler
}

// NewAdapter creates a transport adapter over the given runtime.
func NewAdapter(cfg AdapterConfig) *Adapter {
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = DefaultChannels()
	}

	return &Adapter{
		runtime:  cfg.Runtime,
		channels: channels,
		logger:   cfg.Logger,
		state:    StateUninitialized,
	}
}

// State returns the current adapter state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Initialize requests notification permission and configures delivery
// channels. It is idempotent: repeat calls after the first are no-ops.
//
// Environments without push capability are a recoverable condition, not an
// error: the adapter logs, parks in UnsupportedDevice and returns nil so
// development and CI hosts never crash.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateUninitialized {
		a.mu.Unlock()
		return nil
	}
	a.state = StateInitializing
	a.mu.Unlock()

	if !a.runtime.SupportsPush() {
		a.logger.Warn().Msg("push notifications not supported on this device, continuing without")
		a.finish(StateUnsupportedDevice)
		return nil
	}

	granted, err := a.runtime.RequestPermission(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("notification permission request failed, continuing without push")
		a.finish(StateUnsupportedDevice)
		return nil
	}
	if !granted {
		a.logger.Error().Msg("notification permission denied by user")
		a.finish(StatePermissionDenied)
		return nil
	}

	for _, ch := range a.channels {
		if err := a.runtime.ConfigureChannel(ctx, ch); err != nil {
			a.logger.Error().Err(err).Str("channel", ch.ID).Msg("failed to configure notification channel")
		}
	}

	// Route raw runtime events through the adapter's subscriber slots.
	a.runtime.OnDelivery(a.dispatchForeground)
	a.runtime.OnResponse(a.dispatchResponse)
	a.runtime.OnTokenChange(a.dispatchTokenChange)

	a.finish(StateReady)
	a.logger.Info().Int("channels", len(a.channels)).Msg("notification transport initialized")
	return nil
}

func (a *Adapter) finish(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Token returns the current push token as a tagged result. It never fails
// on the no-device case; configuration defects are logged loudly because
// they indicate a build misconfiguration rather than a user choice.
func (a *Adapter) Token(ctx context.Context) TokenResult {
	switch a.State() {
	case StateUnsupportedDevice:
		return TokenResult{Status: TokenNoDevice}
	case StatePermissionDenied:
		return TokenResult{Status: TokenPermissionDenied}
	case StateReady:
		// fall through to the runtime
	default:
		a.logger.Warn().Str("state", string(a.State())).Msg("push token requested before initialization")
		return TokenResult{Status: TokenNoDevice}
	}

	token, err := a.runtime.DevicePushToken(ctx)
	if err != nil {
		if errors.Is(err, ErrMisconfigured) {
			a.logger.Error().Err(err).Msg("push project configuration missing, check build settings")
			return TokenResult{Status: TokenMisconfigured}
		}
		a.logger.Warn().Err(err).Msg("push token unavailable")
		return TokenResult{Status: TokenNoDevice}
	}

	if _, err := expo.NewExponentPushToken(token); err != nil {
		a.logger.Error().Err(err).Msg("runtime issued a token in an unrecognized format")
		return TokenResult{Status: TokenMisconfigured}
	}

	return TokenResult{Status: TokenReady, Token: token}
}

// SubscribeForeground installs the foreground delivery handler, replacing
// any previous one, and returns a disposer. Exactly one foreground
// subscriber is active at a time; the disposer of a replaced subscription
// is a no-op.
func (a *Adapter) SubscribeForeground(h Handler) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextSubID++
	sub := &subscription{id: a.nextSubID, handler: h}
	a.foreground = sub

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.foreground != nil && a.foreground.id == sub.id {
			a.foreground = nil
		}
	}
}

// SubscribeResponse installs the notification tap handler, replacing any
// previous one, and returns a disposer.
func (a *Adapter) SubscribeResponse(h Handler) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextSubID++
	sub := &subscription{id: a.nextSubID, handler: h}
	a.response = sub

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.response != nil && a.response.id == sub.id {
			a.response = nil
		}
	}
}

// SubscribeTokenChange installs the token rotation handler, replacing any
// previous one.
func (a *Adapter) SubscribeTokenChange(fn func(token string)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tokenSub = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.tokenSub = nil
	}
}

// ClearAll removes all delivered notifications from the tray. Idempotent.
func (a *Adapter) ClearAll(ctx context.Context) error {
	return a.runtime.DismissAll(ctx)
}

// BadgeCount returns the current application badge count. Badge state does
// not require notification permission.
func (a *Adapter) BadgeCount(ctx context.Context) (int, error) {
	return a.runtime.BadgeCount(ctx)
}

// SetBadgeCount sets the application badge count. Idempotent.
func (a *Adapter) SetBadgeCount(ctx context.Context, n int) error {
	return a.runtime.SetBadgeCount(ctx, n)
}

func (a *Adapter) dispatchForeground(n Notification) {
	a.mu.Lock()
	sub := a.foreground
	a.mu.Unlock()

	if sub != nil {
		sub.handler(n)
	}
}

func (a *Adapter) dispatchResponse(n Notification) {
	a.mu.Lock()
	sub := a.response
	a.mu.Unlock()

	if sub != nil {
		sub.handler(n)
	}
}

func (a *Adapter) dispatchTokenChange(token string) {
	a.mu.Lock()
	fn := a.tokenSub
	a.mu.Unlock()

	if fn != nil {
		fn(token)
	}
}
