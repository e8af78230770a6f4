package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/factorylink/factorylink/internal/provider/resilience"
	"github.com/factorylink/factorylink/internal/session"
)

const (
	// ResourceName identifies this backend resource for health tracking.
	ResourceName = "notification-inbox"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the read/mutate surface of the backend notification-list
// resource the Service consumes.
type Client interface {
	ListNotifications(ctx context.Context, page, size int, filter Type) (*PageResult, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (updated int, err error)
	Delete(ctx context.Context, id string) error
}

// ClientConfig holds configuration for the HTTP inbox client.
type ClientConfig struct {
	// BaseURL of the FactoryLink backend (required).
	BaseURL string

	// Sessions resolves the factory/tenant scope for every call (required).
	Sessions session.Provider

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

// HTTPClient talks to the backend notification-list resource.
type HTTPClient struct {
	baseURL    string
	sessions   session.Provider
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewHTTPClient creates an inbox client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ResourceName)
		if cfg.Timeout != 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		clientCfg.Health = cfg.Health
		httpClient = resilience.NewClient(clientCfg)
	}

	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		sessions:   cfg.Sessions,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

type pageResponse struct {
	Content    []recordDTO `json:"content"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
}

type recordDTO struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	Source    string     `json:"source,omitempty"`
	SourceID  string     `json:"sourceId,omitempty"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type markAllReadResponse struct {
	UpdatedCount int `json:"updatedCount"`
}

// ListNotifications fetches one page, optionally filtered by type.
func (c *HTTPClient) ListNotifications(ctx context.Context, page, size int, filter Type) (*PageResult, error) {
	sess, err := c.resolveSession()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	if filter != TypeAny {
		query.Set("type", string(filter))
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/notifications?%s",
		c.baseURL, url.PathEscape(sess.FactoryID), query.Encode())
	resp, err := c.do(ctx, sess, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("listing notifications", resp)
	}

	var out pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding notification page: %w", err)
	}

	result := &PageResult{
		Content:    make([]Notification, 0, len(out.Content)),
		Page:       out.Page,
		TotalPages: out.TotalPages,
	}
	for _, dto := range out.Content {
		result.Content = append(result.Content, Notification{
			ID:        dto.ID,
			Type:      Type(dto.Type),
			Title:     dto.Title,
			Content:   dto.Content,
			IsRead:    dto.IsRead,
			ReadAt:    dto.ReadAt,
			CreatedAt: dto.CreatedAt,
			Source:    Source(dto.Source),
			SourceID:  dto.SourceID,
		})
	}
	return result, nil
}

// UnreadCount fetches the server-side unread counter.
func (c *HTTPClient) UnreadCount(ctx context.Context) (int, error) {
	sess, err := c.resolveSession()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/notifications/unread-count",
		c.baseURL, url.PathEscape(sess.FactoryID))
	resp, err := c.do(ctx, sess, http.MethodGet, endpoint)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError("fetching unread count", resp)
	}

	var out unreadCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding unread count: %w", err)
	}
	return out.Count, nil
}

// MarkRead marks one record read.
func (c *HTTPClient) MarkRead(ctx context.Context, id string) error {
	sess, err := c.resolveSession()
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/notifications/%s/read",
		c.baseURL, url.PathEscape(sess.FactoryID), url.PathEscape(id))
	resp, err := c.do(ctx, sess, http.MethodPost, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("marking notification read", resp)
	}
	return nil
}

// MarkAllRead marks every record read and returns the server-reported
// number of updated records.
func (c *HTTPClient) MarkAllRead(ctx context.Context) (int, error) {
	sess, err := c.resolveSession()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/notifications/read-all",
		c.baseURL, url.PathEscape(sess.FactoryID))
	resp, err := c.do(ctx, sess, http.MethodPost, endpoint)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError("marking all notifications read", resp)
	}

	var out markAllReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding mark-all-read response: %w", err)
	}
	return out.UpdatedCount, nil
}

// Delete removes one record.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	sess, err := c.resolveSession()
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v1/factories/%s/notifications/%s",
		c.baseURL, url.PathEscape(sess.FactoryID), url.PathEscape(id))
	resp, err := c.do(ctx, sess, http.MethodDelete, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("deleting notification", resp)
	}
	return nil
}

func (c *HTTPClient) resolveSession() (session.Session, error) {
	sess, ok := c.sessions.Current()
	if !ok || sess.FactoryID == "" {
		return session.Session{}, session.ErrNoSession
	}
	return sess, nil
}

func (c *HTTPClient) do(ctx context.Context, sess session.Session, method, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling notification inbox: %w", err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	return fmt.Errorf("%s: backend returned status %d", op, resp.StatusCode)
}
