package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firesafely/marketplace/internal/alerts"
	"github.com/firesafely/marketplace/internal/notifications"
	"github.com/firesafely/marketplace/internal/session"
	"github.com/firesafely/marketplace/internal/verification"
	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/logger"
)

// sessionTTL bounds how long a persisted session outlives its last request.
const sessionTTL = 24 * time.Hour

// components bundles the per-professional client state: a session store
// the request middleware keeps current, the two aggregation cores, and
// the hub fanning unread-count changes out to stream subscribers.
type components struct {
	store         *session.MemoryStore
	verification  *verification.Aggregator
	notifications *notifications.Synchronizer
	hub           *hub
}

// Registry owns one components bundle per professional so cached state
// survives across requests and is discarded on logout. When a redis store
// is attached, sessions are written through so a restarted dashboard can
// keep serving the last authenticated professional.
type Registry struct {
	client   *apiclient.Client
	notifier alerts.Notifier
	persist  *session.RedisStore

	mu      sync.Mutex
	entries map[int64]*components
}

func NewRegistry(client *apiclient.Client, notifier alerts.Notifier) *Registry {
	return &Registry{
		client:   client,
		notifier: notifier,
		entries:  make(map[int64]*components),
	}
}

// WithPersistence attaches a redis-backed session store.
func (r *Registry) WithPersistence(store *session.RedisStore) *Registry {
	r.persist = store
	return r
}

// Restore pre-warms the registry from a persisted session, if one exists.
func (r *Registry) Restore(ctx context.Context) {
	if r.persist == nil {
		return
	}
	token, err := r.persist.Token(ctx)
	if err != nil {
		return
	}
	professionalID, err := r.persist.ProfessionalID(ctx)
	if err != nil {
		return
	}
	r.forSession(token, professionalID)
}

// forSession returns the professional's components, creating them on
// first sight and refreshing the stored token either way.
func (r *Registry) forSession(token string, professionalID int64) *components {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.entries[professionalID]
	if !ok {
		store := session.NewMemoryStore()
		c = &components{
			store:         store,
			verification:  verification.NewAggregator(r.client, store, r.notifier),
			notifications: notifications.NewSynchronizer(r.client, store, r.notifier),
			hub:           newHub(),
		}
		c.notifications.OnChange(c.hub.broadcast)
		r.entries[professionalID] = c
	}
	c.store.SetSession(token, professionalID)
	if r.persist != nil {
		if err := r.persist.SetSession(context.Background(), token, professionalID, sessionTTL); err != nil {
			logger.Warn("failed to persist session", zap.Error(err))
		}
	}
	return c
}

// drop discards a professional's cached state, used on logout.
func (r *Registry) drop(professionalID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.entries[professionalID]; ok {
		c.store.Clear()
		c.hub.close()
		delete(r.entries, professionalID)
	}
	if r.persist != nil {
		if err := r.persist.Clear(context.Background()); err != nil {
			logger.Warn("failed to clear persisted session", zap.Error(err))
		}
	}
}
