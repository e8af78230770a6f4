package inbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorylink/factorylink/internal/inbox"
	"github.com/factorylink/factorylink/internal/provider/resilience"
	"github.com/factorylink/factorylink/internal/session"
)

func authedSessions() *session.Store {
	store := session.NewStore()
	store.Login(session.Session{UserID: "u-1", FactoryID: "f-7", AccessToken: "tok"})
	return store
}

func fastClient() inbox.HTTPDoer {
	cfg := resilience.DefaultClientConfig("test")
	cfg.MaxRetries = 1
	cfg.InitialInterval = time.Millisecond
	return resilience.NewClient(cfg)
}

func newTestClient(baseURL string, sessions session.Provider) *inbox.HTTPClient {
	return inbox.NewHTTPClient(inbox.ClientConfig{
		BaseURL:    baseURL,
		Sessions:   sessions,
		HTTPClient: fastClient(),
		Logger:     zerolog.Nop(),
	})
}

func TestHTTPClient_ListNotifications(t *testing.T) {
	createdAt := time.Date(2026, 8, 12, 7, 45, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/factories/f-7/notifications", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("size"))
		assert.Equal(t, "ALERT", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{
					"id": "n-1", "type": "ALERT", "title": "Line stopped",
					"content": "Line 2 halted on sensor fault", "isRead": false,
					"createdAt": createdAt, "source": "alert", "sourceId": "a-9",
				},
				{"id": "n-2", "type": "ALERT", "title": "Recovered", "isRead": true, "createdAt": createdAt},
			},
			"page":       2,
			"totalPages": 5,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())
	result, err := client.ListNotifications(context.Background(), 2, 20, inbox.TypeAlert)
	require.NoError(t, err)

	require.Len(t, result.Content, 2)
	assert.Equal(t, "n-1", result.Content[0].ID)
	assert.Equal(t, inbox.SourceAlert, result.Content[0].Source)
	assert.Equal(t, "a-9", result.Content[0].SourceID)
	assert.True(t, result.Content[1].IsRead)
	assert.Equal(t, 2, result.Page)
	assert.True(t, result.HasMore())
}

func TestHTTPClient_ListNotifications_NoFilterOmitsTypeParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasType := r.URL.Query()["type"]
		assert.False(t, hasType)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}, "page": 1, "totalPages": 1})
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())
	result, err := client.ListNotifications(context.Background(), 1, 20, inbox.TypeAny)
	require.NoError(t, err)
	assert.False(t, result.HasMore())
}

func TestHTTPClient_ListNotifications_NoSession(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", session.NewStore())
	_, err := client.ListNotifications(context.Background(), 1, 20, inbox.TypeAny)
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestHTTPClient_UnreadCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/factories/f-7/notifications/unread-count", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"count": 4})
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())
	count, err := client.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestHTTPClient_MarkRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/factories/f-7/notifications/n-1/read", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())
	require.NoError(t, client.MarkRead(context.Background(), "n-1"))
}

func TestHTTPClient_MarkAllRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/factories/f-7/notifications/read-all", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"updatedCount": 7})
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())
	updated, err := client.MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, updated)
}

func TestHTTPClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/factories/f-7/notifications/n-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())
	require.NoError(t, client.Delete(context.Background(), "n-1"))
}

func TestHTTPClient_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, authedSessions())

	_, err := client.ListNotifications(context.Background(), 1, 20, inbox.TypeAny)
	require.Error(t, err)

	_, err = client.MarkAllRead(context.Background())
	require.Error(t, err)

	require.Error(t, client.MarkRead(context.Background(), "n-1"))
	require.Error(t, client.Delete(context.Background(), "n-1"))
}
