package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPageSize is the page size requested from the backend.
const DefaultPageSize = 20

// ServiceConfig holds configuration for the inbox service.
type ServiceConfig struct {
	// Client is the backend notification-list client (required).
	Client Client

	// PageSize requested per page. Default: DefaultPageSize.
	PageSize int

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service is the stateful notification-center consumer. It caches only the
// currently loaded page set; the backend owns the data.
//
// Mutations are optimistic: the local update happens first and a failed
// server call is logged, never rolled back. Failed mutations leave a
// pending-sync marker that the next page-1 load reconciles silently.
type Service struct {
	client   Client
	pageSize int
	logger   zerolog.Logger

	mu         sync.Mutex
	records    []Notification
	unread     int
	page       int
	totalPages int
	hasMore    bool
	filter     Type
	pending    map[string]struct{}
}

// NewService creates an inbox service.
func NewService(cfg ServiceConfig) *Service {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	return &Service{
		client:   cfg.Client,
		pageSize: pageSize,
		logger:   cfg.Logger,
		pending:  make(map[string]struct{}),
	}
}

// LoadPage fetches one page. Page 1 replaces the local collection (and
// reconciles pending mutations against the fresh server copy); later pages
// append. A fetch failure leaves prior state untouched and propagates so
// the UI can surface it.
func (s *Service) LoadPage(ctx context.Context, page int, filter Type) error {
	if page < 1 {
		page = 1
	}

	result, err := s.client.ListNotifications(ctx, page, s.pageSize, filter)
	if err != nil {
		s.logger.Error().Err(err).Int("page", page).Msg("notification page load failed")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if page == 1 {
		s.records = s.reconcile(result.Content)
		s.filter = filter
	} else {
		s.records = append(s.records, result.Content...)
	}
	s.page = result.Page
	s.totalPages = result.TotalPages
	s.hasMore = result.HasMore()
	return nil
}

// reconcile overlays unconfirmed local mutations onto a fresh server page.
// Mutations the server has meanwhile applied drop their pending marker.
func (s *Service) reconcile(serverRecords []Notification) []Notification {
	out := make([]Notification, len(serverRecords))
	copy(out, serverRecords)

	for i := range out {
		if _, ok := s.pending[out[i].ID]; !ok {
			continue
		}
		if out[i].IsRead {
			delete(s.pending, out[i].ID)
			continue
		}
		// Server still disagrees: keep showing the optimistic state.
		out[i].IsRead = true
		out[i].PendingSync = true
	}
	return out
}

// RefreshUnreadCount fetches the server unread counter. Pending read-marks
// the server has not applied yet are subtracted so the badge matches what
// the user sees. A fetch failure leaves prior state untouched.
func (s *Service) RefreshUnreadCount(ctx context.Context) error {
	count, err := s.client.UnreadCount(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("unread count refresh failed")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	count -= len(s.pending)
	if count < 0 {
		count = 0
	}
	s.unread = count
	return nil
}

// MarkAsRead marks one loaded record read. Calling it on an already-read
// record is a no-op; the unread counter never goes below zero. The server
// call failing keeps the optimistic local update and a pending marker.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.records[idx].IsRead {
		s.mu.Unlock()
		return nil
	}

	now := time.Now()
	s.records[idx].IsRead = true
	s.records[idx].ReadAt = &now
	if s.unread > 0 {
		s.unread--
	}
	s.mu.Unlock()

	if err := s.client.MarkRead(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("mark-read not confirmed by server, will reconcile")
		s.mu.Lock()
		s.pending[id] = struct{}{}
		if idx := s.indexOf(id); idx >= 0 {
			s.records[idx].PendingSync = true
		}
		s.mu.Unlock()
	}
	return nil
}

// MarkAllAsRead marks every record read. On success all local records show
// read and the unread counter resets to zero; on failure the local state
// is untouched and the error propagates.
func (s *Service) MarkAllAsRead(ctx context.Context) error {
	updated, err := s.client.MarkAllRead(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("mark-all-read failed")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.records {
		if !s.records[i].IsRead {
			s.records[i].IsRead = true
			s.records[i].ReadAt = &now
		}
		s.records[i].PendingSync = false
	}
	s.unread = 0
	s.pending = make(map[string]struct{})

	s.logger.Info().Int("updated", updated).Msg("all notifications marked read")
	return nil
}

// Delete removes one loaded record. Removal is optimistic: a failed server
// call is logged and the next page-1 load brings the record back if the
// server still has it. The unread counter decrements only when the deleted
// record was unread.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}

	wasUnread := !s.records[idx].IsRead
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	if wasUnread && s.unread > 0 {
		s.unread--
	}
	delete(s.pending, id)
	s.mu.Unlock()

	if err := s.client.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("delete not confirmed by server, will reconcile")
	}
	return nil
}

// Open marks a record read and dispatches navigation by its source.
// Unknown sources are a no-op after the read-mark.
func (s *Service) Open(ctx context.Context, id string, nav Navigator) error {
	if err := s.MarkAsRead(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	var source Source
	var sourceID string
	if idx >= 0 {
		source = s.records[idx].Source
		sourceID = s.records[idx].SourceID
	}
	s.mu.Unlock()

	if target, ok := TargetForSource(source); ok && nav != nil {
		nav.Navigate(target, sourceID)
	}
	return nil
}

// Records returns a copy of the loaded records.
func (s *Service) Records() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.records))
	copy(out, s.records)
	return out
}

// UnreadCount returns the locally tracked unread counter.
func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// HasMore reports whether pages beyond the last loaded one exist.
func (s *Service) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Page returns the last loaded page number.
func (s *Service) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// PendingSyncCount returns how many optimistic mutations the server has
// not confirmed. The UI shows a non-blocking indicator when nonzero.
func (s *Service) PendingSyncCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// indexOf returns the position of id in the loaded records, or -1.
// Caller holds s.mu.
func (s *Service) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}
