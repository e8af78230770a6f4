// Package lifecycle coordinates the push-notification device lifecycle:
// one-time transport initialization, device registration on login,
// unregistration and local cleanup on logout, handler wiring and token
// rotation. It is the state machine the UI layer mounts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/factorylink/factorylink/internal/deviceinfo"
	"github.com/factorylink/factorylink/internal/registry"
	"github.com/factorylink/factorylink/internal/session"
	"github.com/factorylink/factorylink/internal/transport"
)

// Controller errors.
var (
	// ErrNoPushToken indicates manual registration found no usable token
	// (unsupported device, denied permission or a build misconfiguration).
	ErrNoPushToken = errors.New("no push token available")

	// ErrOperationInFlight indicates a manual operation was dropped because
	// the same operation kind is already running.
	ErrOperationInFlight = errors.New("operation already in flight")
)

// DefaultOperationTimeout bounds every adapter/registry call the controller
// makes, so a hung call can never lock out retry permanently.
const DefaultOperationTimeout = 10 * time.Second

// Transport is the adapter surface the controller drives.
type Transport interface {
	Initialize(ctx context.Context) error
	Token(ctx context.Context) transport.TokenResult
	SubscribeForeground(h transport.Handler) (unsubscribe func())
	SubscribeResponse(h transport.Handler) (unsubscribe func())
	SubscribeTokenChange(fn func(token string)) (unsubscribe func())
	ClearAll(ctx context.Context) error
	BadgeCount(ctx context.Context) (int, error)
	SetBadgeCount(ctx context.Context, n int) error
}

// Registry is the backend device-registration surface the controller drives.
type Registry interface {
	Device() deviceinfo.Info
	RegisterDevice(ctx context.Context, reg registry.DeviceRegistration) (time.Time, error)
	UnregisterDevice(ctx context.Context)
	UpdateDeviceToken(ctx context.Context, newToken string) error
}

// Options are the recognized lifecycle options.
type Options struct {
	// AutoRegisterOnLogin registers the device when the session becomes
	// authenticated.
	AutoRegisterOnLogin bool

	// AutoUnregisterOnLogout unregisters and clears local notification
	// state when the session becomes unauthenticated.
	AutoUnregisterOnLogout bool
}

// DefaultOptions enables both automatic transitions.
func DefaultOptions() Options {
	return Options{AutoRegisterOnLogin: true, AutoUnregisterOnLogout: true}
}

// ControllerConfig holds configuration for the lifecycle controller.
type ControllerConfig struct {
	// Transport is the notification transport adapter (required).
	Transport Transport

	// Registry is the backend device-registry client (required).
	Registry Registry

	// Sessions delivers authentication-state transitions (required).
	Sessions session.Provider

	// OnNotificationReceived handles foreground deliveries (optional).
	OnNotificationReceived transport.Handler

	// OnNotificationTapped handles notification taps (optional).
	OnNotificationTapped transport.Handler

	// Options control the automatic transitions.
	// If nil, DefaultOptions is used.
	Options *Options

	// OperationTimeout bounds each adapter/registry call.
	// Default: DefaultOperationTimeout.
	OperationTimeout time.Duration

	// Meter records lifecycle counters (optional, defaults to the global
	// meter, which is a no-op unless telemetry is initialized).
	Meter metric.Meter

	// Logger for controller operations.
	Logger zerolog.Logger
}

// Controller is the push lifecycle state machine. Automatic transitions
// never surface errors (they log); the manual operations always do.
type Controller struct {
	transport Transport
	registry  Registry
	sessions  session.Provider
	logger    zerolog.Logger
	opts      Options
	timeout   time.Duration

	mu            sync.Mutex
	initialized   bool
	registered    bool
	registering   bool
	unregistering bool

	unsubSession    func()
	unsubForeground func()
	unsubResponse   func()
	unsubToken      func()

	registrations   metric.Int64Counter
	unregistrations metric.Int64Counter
	failures        metric.Int64Counter
}

// NewController creates a lifecycle controller. It does not touch the
// platform or the network; call Start to activate.
func NewController(cfg ControllerConfig) (*Controller, error) {
	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}

	timeout := cfg.OperationTimeout
	if timeout == 0 {
		timeout = DefaultOperationTimeout
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter("factorylink/lifecycle")
	}

	registrations, err := meter.Int64Counter("push_registrations_total",
		metric.WithDescription("Completed device push registrations"))
	if err != nil {
		return nil, fmt.Errorf("creating registration counter: %w", err)
	}
	unregistrations, err := meter.Int64Counter("push_unregistrations_total",
		metric.WithDescription("Completed device push unregistrations"))
	if err != nil {
		return nil, fmt.Errorf("creating unregistration counter: %w", err)
	}
	failures, err := meter.Int64Counter("push_registration_failures_total",
		metric.WithDescription("Failed device push registrations"))
	if err != nil {
		return nil, fmt.Errorf("creating failure counter: %w", err)
	}

	c := &Controller{
		transport:       cfg.Transport,
		registry:        cfg.Registry,
		sessions:        cfg.Sessions,
		logger:          cfg.Logger,
		opts:            opts,
		timeout:         timeout,
		registrations:   registrations,
		unregistrations: unregistrations,
		failures:        failures,
	}
	c.SetHandlers(cfg.OnNotificationReceived, cfg.OnNotificationTapped)
	return c, nil
}

// Start activates the controller: initializes the transport exactly once
// per process, subscribes to session transitions and token rotations, and
// registers immediately when a session is already authenticated.
//
// Start is idempotent. Initialization failure is logged and the controller
// stays usable; registration will simply find no token.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	alreadyInitialized := c.initialized
	c.initialized = true
	c.mu.Unlock()

	if !alreadyInitialized {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		if err := c.transport.Initialize(opCtx); err != nil {
			c.logger.Error().Err(err).Msg("notification transport initialization failed, continuing")
		}
		cancel()

		c.mu.Lock()
		c.unsubToken = c.transport.SubscribeTokenChange(c.handleTokenRotation)
		c.unsubSession = c.sessions.Subscribe(c.handleSessionChange)
		c.mu.Unlock()
	}

	if _, ok := c.sessions.Current(); ok && c.opts.AutoRegisterOnLogin {
		go c.autoRegister()
	}
}

// Stop disposes all subscriptions. State flags are kept: Stop/Start cycles
// must not re-initialize the transport.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range []func(){c.unsubSession, c.unsubForeground, c.unsubResponse, c.unsubToken} {
		if unsub != nil {
			unsub()
		}
	}
	c.unsubSession, c.unsubForeground, c.unsubResponse, c.unsubToken = nil, nil, nil, nil
}

// SetHandlers rebinds the notification callbacks. Rebinding replaces the
// previous subscriptions atomically per event type: no duplicate dispatch,
// no dropped events between dispose and resubscribe. Safe to call on every
// render with the same callbacks.
func (c *Controller) SetHandlers(received, tapped transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubForeground != nil {
		c.unsubForeground()
		c.unsubForeground = nil
	}
	if received != nil {
		c.unsubForeground = c.transport.SubscribeForeground(received)
	}

	if c.unsubResponse != nil {
		c.unsubResponse()
		c.unsubResponse = nil
	}
	if tapped != nil {
		c.unsubResponse = c.transport.SubscribeResponse(tapped)
	}
}

// Registered reports whether the device currently holds a backend
// registration.
func (c *Controller) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// RegisterDevice explicitly registers the device, bypassing the
// authentication-state guard. Unlike the automatic path it propagates
// failures, so a settings screen can surface them.
func (c *Controller) RegisterDevice(ctx context.Context) error {
	return c.register(ctx, true)
}

// UnregisterDevice explicitly unregisters the device and clears local
// notification state. Local cleanup failures propagate; the backend call
// itself is best-effort like the automatic path.
func (c *Controller) UnregisterDevice(ctx context.Context) error {
	return c.unregister(ctx, true)
}

// ClearAllNotifications delegates to the transport adapter.
func (c *Controller) ClearAllNotifications(ctx context.Context) error {
	return c.transport.ClearAll(ctx)
}

// BadgeCount delegates to the transport adapter.
func (c *Controller) BadgeCount(ctx context.Context) (int, error) {
	return c.transport.BadgeCount(ctx)
}

// SetBadgeCount delegates to the transport adapter.
func (c *Controller) SetBadgeCount(ctx context.Context, n int) error {
	return c.transport.SetBadgeCount(ctx, n)
}

func (c *Controller) handleSessionChange(change session.Change) {
	switch change.Status {
	case session.StatusAuthenticated:
		if c.opts.AutoRegisterOnLogin {
			go c.autoRegister()
		}
	case session.StatusUnauthenticated:
		if c.opts.AutoUnregisterOnLogout {
			go c.autoUnregister()
		}
	}
}

// The automatic paths are fire-and-forget: register/unregister log their
// own failures and return nil in non-manual mode.

func (c *Controller) autoRegister() {
	_ = c.register(context.Background(), false) //nolint:errcheck // never errors in auto mode
}

func (c *Controller) autoUnregister() {
	_ = c.unregister(context.Background(), false) //nolint:errcheck // never errors in auto mode
}

// register acquires a token and registers it with the backend. An in-flight
// guard drops (not queues) concurrent triggers so register/unregister calls
// never interleave for this device.
func (c *Controller) register(ctx context.Context, manual bool) error {
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return nil
	}
	if c.registering {
		c.mu.Unlock()
		if manual {
			return ErrOperationInFlight
		}
		return nil
	}
	c.registering = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.registering = false
		c.mu.Unlock()
	}()

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := c.transport.Token(opCtx)
	if !res.Ready() {
		// Not an error: the user may be on a simulator or have declined
		// permission. No retry is scheduled here; the next auth transition
		// or manual call retries.
		c.logger.Warn().Str("reason", string(res.Status)).Msg("skipping push registration, no token")
		if manual {
			return fmt.Errorf("%w: %s", ErrNoPushToken, res.Status)
		}
		return nil
	}

	reg := registry.RegistrationFor(c.registry.Device(), res.Token)
	if _, err := c.registry.RegisterDevice(opCtx, reg); err != nil {
		c.failures.Add(opCtx, 1)
		c.logger.Error().Err(err).Msg("push registration failed")
		if manual {
			return err
		}
		return nil
	}

	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()

	c.registrations.Add(opCtx, 1)
	c.logger.Info().Str("device_id", reg.DeviceID).Msg("push registration complete")
	return nil
}

// unregister tears down the backend registration (best-effort) and then
// always clears local notification state. The sequence completes even when
// the backend call fails: badge and tray cleanup are local-only concerns.
func (c *Controller) unregister(ctx context.Context, manual bool) error {
	c.mu.Lock()
	if !manual && !c.registered {
		c.mu.Unlock()
		return nil
	}
	if c.unregistering {
		c.mu.Unlock()
		if manual {
			return ErrOperationInFlight
		}
		return nil
	}
	c.unregistering = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.unregistering = false
		c.mu.Unlock()
	}()

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.registry.UnregisterDevice(opCtx)

	var cleanupErr error
	if err := c.transport.ClearAll(opCtx); err != nil {
		c.logger.Warn().Err(err).Msg("clearing notifications failed")
		cleanupErr = err
	}
	if err := c.transport.SetBadgeCount(opCtx, 0); err != nil {
		c.logger.Warn().Err(err).Msg("resetting badge failed")
		if cleanupErr == nil {
			cleanupErr = err
		}
	}

	c.mu.Lock()
	c.registered = false
	c.mu.Unlock()

	c.unregistrations.Add(opCtx, 1)
	c.logger.Info().Msg("push registration removed")

	if manual {
		return cleanupErr
	}
	return nil
}

// handleTokenRotation pushes a rotated token to the backend. Failure is
// logged and deferred: the next login or app launch re-registers.
func (c *Controller) handleTokenRotation(token string) {
	c.mu.Lock()
	registered := c.registered
	c.mu.Unlock()
	if !registered {
		return
	}

	go func() {
		opCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.registry.UpdateDeviceToken(opCtx, token); err != nil {
			c.logger.Error().Err(err).Msg("push token rotation sync failed, deferring to next launch")
			return
		}
		c.logger.Info().Msg("push token rotation synced")
	}()
}
