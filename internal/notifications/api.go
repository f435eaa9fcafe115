package notifications

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/common"
)

const notificationsPath = "/api/professional/notifications"

type notificationItem struct {
	ID        int64  `json:"id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Priority  string `json:"priority"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func (n notificationItem) toDomain(fallback Category) Notification {
	category := Category(n.Category)
	if !category.Valid() {
		category = fallback
	}
	createdAt := time.Time{}
	if t, err := time.Parse(time.RFC3339, n.CreatedAt); err == nil {
		createdAt = t
	}
	return Notification{
		ID:        n.ID,
		Category:  category,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  parsePriority(n.Priority),
		Read:      n.Read,
		CreatedAt: createdAt,
	}
}

// api wraps the marketplace notification endpoints.
type api struct {
	client *apiclient.Client
}

func (a *api) fetchByCategory(ctx context.Context, token string, professionalID int64, category Category) ([]Notification, error) {
	q := professionalQuery(professionalID)
	q.Set("category", string(category))
	return a.fetchList(ctx, notificationsPath, q, token, category)
}

func (a *api) fetchUnread(ctx context.Context, token string, professionalID int64) ([]Notification, error) {
	return a.fetchList(ctx, notificationsPath+"/unread", professionalQuery(professionalID), token, "")
}

func (a *api) fetchList(ctx context.Context, path string, query url.Values, token string, fallback Category) ([]Notification, error) {
	env, err := a.client.Get(ctx, path, query, token)
	if err != nil {
		return nil, common.NewRemoteCallError(apiclient.RemoteMessage(err), err)
	}
	if !env.OK() {
		return nil, envelopeFailure("notification lookup was rejected by the marketplace service", env)
	}
	var items []notificationItem
	if err := env.DataInto(&items); err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	out := make([]Notification, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain(fallback))
	}
	return out, nil
}

func (a *api) markRead(ctx context.Context, token string, professionalID, id int64) error {
	path := fmt.Sprintf("%s/%d/read", notificationsPath, id)
	return a.mutate(ctx, token, professionalID, path, "Failed to mark notification as read")
}

func (a *api) markAllRead(ctx context.Context, token string, professionalID int64) error {
	return a.mutate(ctx, token, professionalID, notificationsPath+"/read-all", "Failed to mark notifications as read")
}

func (a *api) mutate(ctx context.Context, token string, professionalID int64, path, fallback string) error {
	body := map[string]int64{"professional_id": professionalID}
	env, err := a.client.PostJSON(ctx, path, body, token)
	if err != nil {
		return remoteCallError(err, fallback)
	}
	if !env.OK() {
		return envelopeFailure(fallback, env)
	}
	return nil
}

func (a *api) deleteOne(ctx context.Context, token string, id int64) error {
	env, err := a.client.Delete(ctx, fmt.Sprintf("%s/%d", notificationsPath, id), token)
	if err != nil {
		return remoteCallError(err, "Failed to delete notification")
	}
	if !env.OK() {
		return envelopeFailure("Failed to delete notification", env)
	}
	return nil
}

func (a *api) deleteAll(ctx context.Context, token string) error {
	env, err := a.client.Delete(ctx, notificationsPath, token)
	if err != nil {
		return remoteCallError(err, "Failed to delete notifications")
	}
	if !env.OK() {
		return envelopeFailure("Failed to delete notifications", env)
	}
	return nil
}

func professionalQuery(professionalID int64) url.Values {
	q := url.Values{}
	q.Set("professional_id", strconv.FormatInt(professionalID, 10))
	return q
}

// remoteCallError prefers the upstream's message, then the action-specific
// fallback, so the surfaced text always says something useful.
func remoteCallError(err error, fallback string) error {
	msg := apiclient.RemoteMessage(err)
	if msg == "" {
		msg = fallback
	}
	return common.NewRemoteCallError(msg, err)
}

func envelopeFailure(fallback string, env *apiclient.Envelope) error {
	msg := env.RemoteMessage()
	if msg == "" {
		msg = fallback
	}
	return common.NewRemoteCallError(msg, nil)
}
