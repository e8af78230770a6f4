// Package inbox provides the notification center: a paginated, filterable
// view over server-owned notification records with optimistic read/delete
// mutations and tap routing.
package inbox

import (
	"errors"
	"time"
)

// Inbox errors.
var (
	// ErrNotFound indicates the record is not in the loaded page set.
	ErrNotFound = errors.New("notification not in loaded pages")
)

// Type classifies a notification record.
type Type string

const (
	TypeAlert   Type = "ALERT"
	TypeInfo    Type = "INFO"
	TypeWarning Type = "WARNING"
	TypeSuccess Type = "SUCCESS"
	TypeSystem  Type = "SYSTEM"

	// TypeAny disables type filtering.
	TypeAny Type = ""
)

// Source identifies which subsystem produced a notification. It selects
// the navigation target when the user taps a record.
type Source string

const (
	SourceScheduling Source = "scheduling"
	SourceBatch      Source = "batch"
	SourceQuality    Source = "quality"
	SourceAlert      Source = "alert"
)

// NavTarget is a screen the app can navigate to.
type NavTarget string

const (
	NavSchedulingDetail NavTarget = "scheduling-detail"
	NavBatchDetail      NavTarget = "batch-detail"
	NavQualityDetail    NavTarget = "quality-detail"
	NavAlertDetail      NavTarget = "alert-detail"
)

// TargetForSource maps a notification source to its navigation target.
// The mapping is total: unknown sources report ok=false and callers skip
// navigation after the read-mark.
func TargetForSource(source Source) (target NavTarget, ok bool) {
	switch source {
	case SourceScheduling:
		return NavSchedulingDetail, true
	case SourceBatch:
		return NavBatchDetail, true
	case SourceQuality:
		return NavQualityDetail, true
	case SourceAlert:
		return NavAlertDetail, true
	default:
		return "", false
	}
}

// Navigator dispatches navigation requests. The app shell implements it;
// tests record it.
type Navigator interface {
	Navigate(target NavTarget, sourceID string)
}

// Notification is one server-owned notification record. The backend owns
// the data; the inbox holds a read-through cache limited to the loaded
// page set.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Content   string
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
	Source    Source
	SourceID  string

	// PendingSync marks an optimistic local mutation the server has not
	// confirmed. Reconciled silently on the next page-1 load.
	PendingSync bool
}

// PageResult is one server page of notification records.
type PageResult struct {
	Content    []Notification
	Page       int
	TotalPages int
}

// HasMore reports whether pages beyond this one exist. It is derived from
// the server-reported page/totalPages relationship, never from the item
// count: the server may return short pages.
func (p *PageResult) HasMore() bool {
	return p.Page < p.TotalPages
}
