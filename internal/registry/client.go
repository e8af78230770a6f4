package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/factorylink/factorylink/internal/deviceinfo"
	"github.com/factorylink/factorylink/internal/provider/resilience"
	"github.com/factorylink/factorylink/internal/session"
)

const (
	// ResourceName identifies this backend resource for health tracking.
	ResourceName = "device-registry"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the registry client.
type ClientConfig struct {
	// BaseURL of the FactoryLink backend (required).
	BaseURL string

	// Sessions resolves the factory/tenant scope for every call (required).
	Sessions session.Provider

	// Device is the local device identity (required).
	Device deviceinfo.Info

	// HTTPClient executes requests (optional).
	// If nil, a resilient client with defaults is used.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Health is the backend health registry (optional).
	Health *resilience.HealthRegistry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client talks to the backend device-registration resource.
type Client struct {
	baseURL    string
	sessions   session.Provider
	device     deviceinfo.Info
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a registry client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ResourceName)
		if cfg.Timeout != 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		clientCfg.Health = cfg.Health
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		sessions:   cfg.Sessions,
		device:     cfg.Device,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Device returns the local device identity the client registers with.
func (c *Client) Device() deviceinfo.Info {
	return c.device
}

// RegisterDevice registers the device's push token with the backend and
// returns the server-confirmed registration time.
//
// Returns ErrMissingTenant before any network I/O when the session carries
// no factory scope. Network and server failures propagate: the lifecycle
// controller owns retry policy, not this client.
func (c *Client) RegisterDevice(ctx context.Context, reg DeviceRegistration) (time.Time, error) {
	sess, err := c.resolveSession()
	if err != nil {
		return time.Time{}, err
	}

	body, err := json.Marshal(registerRequest{
		PushToken:   reg.PushToken,
		Platform:    string(reg.Platform),
		DeviceID:    reg.DeviceID,
		DeviceName:  reg.DeviceName,
		DeviceModel: reg.DeviceModel,
		OSVersion:   reg.OSVersion,
		AppVersion:  reg.AppVersion,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("marshaling registration: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/devices", c.baseURL, url.PathEscape(sess.FactoryID))
	resp, err := c.do(ctx, sess, http.MethodPost, endpoint, body)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return time.Time{}, statusError("registering device", resp)
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return time.Time{}, fmt.Errorf("decoding registration response: %w", err)
	}

	c.logger.Info().
		Str("factory_id", sess.FactoryID).
		Str("device_id", reg.DeviceID).
		Time("registered_at", out.RegisteredAt).
		Msg("device registered for push")

	return out.RegisteredAt, nil
}

// UnregisterDevice requests deletion of this device's registration.
//
// Unregistration runs during logout and is strictly best-effort: tenant
// resolution and network failures are logged, never surfaced, so cleanup
// can never block the logout flow.
func (c *Client) UnregisterDevice(ctx context.Context) {
	sess, err := c.resolveSession()
	if err != nil {
		c.logger.Warn().Err(err).Msg("skipping device unregistration, no factory context")
		return
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/devices/%s",
		c.baseURL, url.PathEscape(sess.FactoryID), url.PathEscape(c.device.DeviceID))
	resp, err := c.do(ctx, sess, http.MethodDelete, endpoint, nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("device_id", c.device.DeviceID).Msg("device unregistration failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("device_id", c.device.DeviceID).
			Msg("device unregistration rejected")
		return
	}

	c.logger.Info().Str("device_id", c.device.DeviceID).Msg("device unregistered")
}

// UpdateDeviceToken replaces the registered push token after a platform
// rotation. Failures propagate: the caller decides whether to retry now or
// defer to the next app launch.
func (c *Client) UpdateDeviceToken(ctx context.Context, newToken string) error {
	sess, err := c.resolveSession()
	if err != nil {
		return err
	}

	body, err := json.Marshal(updateTokenRequest{PushToken: newToken})
	if err != nil {
		return fmt.Errorf("marshaling token update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/devices/%s/token",
		c.baseURL, url.PathEscape(sess.FactoryID), url.PathEscape(c.device.DeviceID))
	resp, err := c.do(ctx, sess, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("updating device token", resp)
	}

	c.logger.Info().Str("device_id", c.device.DeviceID).Msg("device push token updated")
	return nil
}

// NotificationHistory fetches the most recent notifications delivered to
// this device. History is supplementary display data: failures return an
// empty slice and are logged, never surfaced.
func (c *Client) NotificationHistory(ctx context.Context, limit int) []HistoryItem {
	sess, err := c.resolveSession()
	if err != nil {
		c.logger.Warn().Err(err).Msg("skipping notification history fetch, no factory context")
		return nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/devices/%s/notifications?limit=%s",
		c.baseURL, url.PathEscape(sess.FactoryID), url.PathEscape(c.device.DeviceID),
		strconv.Itoa(limit))
	resp, err := c.do(ctx, sess, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("notification history fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("notification history fetch rejected")
		return nil
	}

	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warn().Err(err).Msg("decoding notification history failed")
		return nil
	}

	items := make([]HistoryItem, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, HistoryItem{
			ID:        it.ID,
			Type:      it.Type,
			Title:     it.Title,
			Content:   it.Content,
			IsRead:    it.IsRead,
			CreatedAt: it.CreatedAt,
			Source:    it.Source,
			SourceID:  it.SourceID,
		})
	}
	return items
}

// MarkNotificationRead marks one history entry as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	sess, err := c.resolveSession()
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/notifications/%s/read",
		c.baseURL, url.PathEscape(sess.FactoryID), url.PathEscape(id))
	resp, err := c.do(ctx, sess, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("marking notification read", resp)
	}
	return nil
}

func (c *Client) resolveSession() (session.Session, error) {
	sess, ok := c.sessions.Current()
	if !ok || sess.FactoryID == "" {
		return session.Session{}, ErrMissingTenant
	}
	return sess, nil
}

func (c *Client) do(ctx context.Context, sess session.Session, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling device registry: %w", err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	return fmt.Errorf("%s: backend returned status %d", op, resp.StatusCode)
}
