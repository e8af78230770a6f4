package transport

import "context"

// Runtime is the raw platform notification binding. Implementations bridge
// to the mobile shell's notification APIs; MemoryRuntime backs tests and the
// simulator.
//
// The adapter owns all policy (state machine, subscriber replacement, token
// classification); a Runtime only exposes capability.
type Runtime interface {
	// SupportsPush reports whether this environment can receive push
	// notifications at all. False on simulators and CI hosts.
	SupportsPush() bool

	// RequestPermission prompts for notification permission if it has not
	// been decided yet and returns whether it is granted.
	RequestPermission(ctx context.Context) (bool, error)

	// ConfigureChannel creates or updates a delivery channel.
	ConfigureChannel(ctx context.Context, ch Channel) error

	// DevicePushToken returns the current platform push token.
	// Returns ErrMisconfigured when the build lacks push configuration.
	DevicePushToken(ctx context.Context) (string, error)

	// BadgeCount returns the current application badge count.
	BadgeCount(ctx context.Context) (int, error)

	// SetBadgeCount sets the application badge count.
	SetBadgeCount(ctx context.Context, n int) error

	// DismissAll removes all delivered notifications from the tray.
	DismissAll(ctx context.Context) error

	// OnDelivery installs the callback invoked when a notification arrives
	// while the app is foregrounded. The last installed callback wins.
	OnDelivery(fn Handler)

	// OnResponse installs the callback invoked when the user taps a
	// notification. The last installed callback wins.
	OnResponse(fn Handler)

	// OnTokenChange installs the callback invoked when the platform rotates
	// the push token. The last installed callback wins.
	OnTokenChange(fn func(token string))
}
