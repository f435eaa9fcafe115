package notifications

import (
	"sort"
	"strings"
	"time"
)

// Category buckets a notification by what produced it.
type Category string

const (
	CategoryBooking Category = "booking"
	CategoryPayment Category = "payment"
	CategoryReview  Category = "review"
	CategorySystem  Category = "system"
)

// Categories lists every feed the aggregate view is synthesized from.
var Categories = []Category{CategoryBooking, CategoryPayment, CategoryReview, CategorySystem}

func (c Category) Valid() bool {
	switch c {
	case CategoryBooking, CategoryPayment, CategoryReview, CategorySystem:
		return true
	default:
		return false
	}
}

// Priority is advisory display ordering from the upstream.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// parsePriority tolerates the upstream's spelling variants; "normal" is
// an accepted alias for medium.
func parsePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "urgent":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Notification is one item in a professional's feed.
type Notification struct {
	ID        int64     `json:"id"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Selector names what the user is currently looking at.
type Selector string

const (
	SelectorAll    Selector = "all"
	SelectorUnread Selector = "unread"
)

func (s Selector) Valid() bool {
	if s == SelectorAll || s == SelectorUnread {
		return true
	}
	return Category(s).Valid()
}

// category returns the backing category for a category selector.
func (s Selector) category() (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// sortNotifications orders newest first, id as tiebreak, so refreshed
// lists render stably.
func sortNotifications(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
