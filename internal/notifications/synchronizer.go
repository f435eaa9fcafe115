package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/firesafely/marketplace/internal/alerts"
	"github.com/firesafely/marketplace/internal/session"
	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/async"
	"github.com/firesafely/marketplace/pkg/common"
	"github.com/firesafely/marketplace/pkg/logger"
)

// View is what the caller renders: the active selector's items plus the
// badge count, which is always computed over the aggregate cache so it
// stays correct while the user looks at a filtered slice.
type View struct {
	Selector      Selector       `json:"selector"`
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// ChangeListener receives the current unread count after any state change.
type ChangeListener func(unreadCount int)

// Synchronizer keeps the aggregate notification cache and the active view
// consistent across loads and mutations. Mutations mirror locally only
// after the upstream confirms them; loads replace state wholesale or per
// category, never by splicing guesses.
type Synchronizer struct {
	api      *api
	sessions session.Store
	notifier alerts.Notifier

	mu        sync.RWMutex
	aggregate []Notification
	slice     []Notification
	selector  Selector
	listeners []ChangeListener
}

func NewSynchronizer(client *apiclient.Client, sessions session.Store, notifier alerts.Notifier) *Synchronizer {
	if notifier == nil {
		notifier = alerts.LogNotifier{}
	}
	return &Synchronizer{
		api:      &api{client: client},
		sessions: sessions,
		notifier: notifier,
		selector: SelectorAll,
	}
}

// OnChange registers a listener invoked after every load or confirmed
// mutation. Listeners run synchronously; keep them cheap.
func (s *Synchronizer) OnChange(fn ChangeListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// LoadView fetches the items the selector calls for and reconciles the
// aggregate cache. The "all" selector is synthesized from four concurrent
// category reads with settle semantics: a failed category contributes zero
// items and a log line, never an error.
func (s *Synchronizer) LoadView(ctx context.Context, selector Selector) (View, error) {
	if !selector.Valid() {
		return View{}, common.NewBadRequestError(fmt.Sprintf("unknown selector %q", selector), nil)
	}
	token, professionalID, err := s.credentials(ctx)
	if err != nil {
		return View{}, err
	}

	switch {
	case selector == SelectorAll:
		merged := s.fetchAllCategories(ctx, token, professionalID)
		s.mu.Lock()
		s.aggregate = merged
		s.slice = nil
		s.selector = SelectorAll
	case selector == SelectorUnread:
		items, err := s.api.fetchUnread(ctx, token, professionalID)
		if err != nil {
			logger.WarnContext(ctx, "unread notifications load failed", zap.Error(err))
			items = nil
		}
		s.mu.Lock()
		s.upsertByIDLocked(items)
		s.slice = nil
		s.selector = SelectorUnread
	default:
		category, _ := selector.category()
		items, err := s.api.fetchByCategory(ctx, token, professionalID, category)
		if err != nil {
			logger.WarnContext(ctx, "notification category load failed",
				zap.String("category", string(category)),
				zap.Error(err))
			// keep the cached copies, fall back to filtering the aggregate
			s.mu.Lock()
			s.slice = nil
			s.selector = selector
			break
		}
		s.mu.Lock()
		s.replaceCategoryLocked(category, items)
		s.slice = items
		s.selector = selector
	}
	view := s.viewLocked()
	s.mu.Unlock()
	s.emitChange(view.UnreadCount)
	return view, nil
}

// View returns the current view without touching the network.
func (s *Synchronizer) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

// Filtered applies a selector to the cached state as a pure function,
// without changing which view is active.
func (s *Synchronizer) Filtered(selector Selector) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filteredLocked(selector)
}

// UnreadCount counts unread items across the aggregate cache, not the
// active view.
func (s *Synchronizer) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

// MarkRead marks one notification read. The local mirror happens only
// after the upstream confirms, and targets the id, never a position.
func (s *Synchronizer) MarkRead(ctx context.Context, id int64) (View, error) {
	return s.mutation(ctx, func(ctx context.Context, token string, professionalID int64) error {
		return s.api.markRead(ctx, token, professionalID, id)
	}, func() {
		for i := range s.aggregate {
			if s.aggregate[i].ID == id {
				s.aggregate[i].Read = true
			}
		}
		for i := range s.slice {
			if s.slice[i].ID == id {
				s.slice[i].Read = true
			}
		}
	})
}

// MarkAllRead marks every notification known to the client read.
func (s *Synchronizer) MarkAllRead(ctx context.Context) (View, error) {
	return s.mutation(ctx, func(ctx context.Context, token string, professionalID int64) error {
		return s.api.markAllRead(ctx, token, professionalID)
	}, func() {
		for i := range s.aggregate {
			s.aggregate[i].Read = true
		}
		for i := range s.slice {
			s.slice[i].Read = true
		}
	})
}

// DeleteOne removes one notification by id.
func (s *Synchronizer) DeleteOne(ctx context.Context, id int64) (View, error) {
	return s.mutation(ctx, func(ctx context.Context, token string, professionalID int64) error {
		return s.api.deleteOne(ctx, token, id)
	}, func() {
		s.aggregate = deleteByID(s.aggregate, id)
		s.slice = deleteByID(s.slice, id)
	})
}

// DeleteAll clears every notification known to the client.
func (s *Synchronizer) DeleteAll(ctx context.Context) (View, error) {
	return s.mutation(ctx, func(ctx context.Context, token string, professionalID int64) error {
		return s.api.deleteAll(ctx, token)
	}, func() {
		s.aggregate = nil
		s.slice = nil
	})
}

// mutation runs the remote call and applies the local mirror only on
// success. Failures surface to the caller and raise a transient alert,
// leaving all cached state untouched.
func (s *Synchronizer) mutation(ctx context.Context, call func(context.Context, string, int64) error, mirror func()) (View, error) {
	token, professionalID, err := s.credentials(ctx)
	if err != nil {
		return View{}, err
	}
	if err := call(ctx, token, professionalID); err != nil {
		s.notifier.Notify(ctx, alerts.LevelError, mutationMessage(err))
		return View{}, err
	}
	s.mu.Lock()
	mirror()
	view := s.viewLocked()
	s.mu.Unlock()
	s.emitChange(view.UnreadCount)
	return view, nil
}

// fetchAllCategories issues the four category reads concurrently and
// merges whatever settled successfully.
func (s *Synchronizer) fetchAllCategories(ctx context.Context, token string, professionalID int64) []Notification {
	tasks := make([]async.Task[[]Notification], len(Categories))
	for i, category := range Categories {
		category := category
		tasks[i] = func(ctx context.Context) ([]Notification, error) {
			return s.api.fetchByCategory(ctx, token, professionalID, category)
		}
	}
	var merged []Notification
	for i, outcome := range async.Settle(ctx, tasks...) {
		if outcome.Err != nil {
			logger.WarnContext(ctx, "notification category load failed",
				zap.String("category", string(Categories[i])),
				zap.Error(outcome.Err))
			continue
		}
		merged = append(merged, outcome.Value...)
	}
	sortNotifications(merged)
	return merged
}

func (s *Synchronizer) credentials(ctx context.Context) (string, int64, error) {
	token, err := s.sessions.Token(ctx)
	if err != nil {
		return "", 0, err
	}
	professionalID, err := s.sessions.ProfessionalID(ctx)
	if err != nil {
		return "", 0, err
	}
	return token, professionalID, nil
}

// replaceCategoryLocked drops every cached item of the category and
// inserts the fresh set, so repeated tab switches never leave stale
// copies behind.
func (s *Synchronizer) replaceCategoryLocked(category Category, fresh []Notification) {
	kept := s.aggregate[:0:0]
	for _, n := range s.aggregate {
		if n.Category != category {
			kept = append(kept, n)
		}
	}
	kept = append(kept, fresh...)
	sortNotifications(kept)
	s.aggregate = kept
}

// upsertByIDLocked merges fetched items into the aggregate by id, used by
// the unread load where items span categories.
func (s *Synchronizer) upsertByIDLocked(fresh []Notification) {
	byID := make(map[int64]int, len(s.aggregate))
	for i, n := range s.aggregate {
		byID[n.ID] = i
	}
	for _, n := range fresh {
		if i, ok := byID[n.ID]; ok {
			s.aggregate[i] = n
		} else {
			s.aggregate = append(s.aggregate, n)
		}
	}
	sortNotifications(s.aggregate)
}

func (s *Synchronizer) viewLocked() View {
	return View{
		Selector:      s.selector,
		Notifications: s.filteredLocked(s.selector),
		UnreadCount:   s.unreadLocked(),
	}
}

// filteredLocked resolves a selector against its authoritative source:
// the aggregate cache for all and unread, the dedicated fetched slice for
// a category when it is the active view.
func (s *Synchronizer) filteredLocked(selector Selector) []Notification {
	switch {
	case selector == SelectorAll:
		return append([]Notification(nil), s.aggregate...)
	case selector == SelectorUnread:
		var out []Notification
		for _, n := range s.aggregate {
			if !n.Read {
				out = append(out, n)
			}
		}
		return out
	default:
		category, _ := selector.category()
		if selector == s.selector && s.slice != nil {
			return append([]Notification(nil), s.slice...)
		}
		var out []Notification
		for _, n := range s.aggregate {
			if n.Category == category {
				out = append(out, n)
			}
		}
		return out
	}
}

func (s *Synchronizer) unreadLocked() int {
	count := 0
	for _, n := range s.aggregate {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *Synchronizer) emitChange(unread int) {
	s.mu.RLock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(unread)
	}
}

func deleteByID(items []Notification, id int64) []Notification {
	out := items[:0:0]
	for _, n := range items {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func mutationMessage(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "The request could not be completed, please try again"
}
