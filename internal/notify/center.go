// Package notify holds the per-user notification center and the components
// that feed it: job lifecycle fan-out and the demo simulator.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/clipforge/internal/db"
)

// ErrInvalidType is returned when adding a notification with an unknown type.
var ErrInvalidType = errors.New("invalid notification type")

const defaultCapacity = 200

// Store is the notification contract served by the API. Both Center and
// db.NotificationRepository satisfy it.
type Store interface {
	Add(ctx context.Context, n *db.Notification) error
	List(ctx context.Context, userID string, limit, offset int) ([]*db.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	Clear(ctx context.Context, userID string) (int, error)
}

// Center keeps notifications in memory, one newest-first list per user.
type Center struct {
	mu       sync.Mutex
	lists    map[string][]*db.Notification
	seeded   map[string]bool
	seed     func(userID string, now time.Time) []*db.Notification
	capacity int
	now      func() time.Time
}

// CenterOption configures a Center.
type CenterOption func(*Center)

// WithDemoSeed fills a user's list with demo notifications the first time
// the user is seen.
func WithDemoSeed() CenterOption {
	return func(c *Center) { c.seed = DemoNotifications }
}

// WithCapacity bounds each user's list; the oldest entries are dropped.
func WithCapacity(n int) CenterOption {
	return func(c *Center) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func NewCenter(opts ...CenterOption) *Center {
	c := &Center{
		lists:    make(map[string][]*db.Notification),
		seeded:   make(map[string]bool),
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listLocked returns the user's list, seeding it on first access.
func (c *Center) listLocked(userID string) []*db.Notification {
	if !c.seeded[userID] {
		c.seeded[userID] = true
		if c.seed != nil {
			seeded := c.seed(userID, c.now())
			sort.SliceStable(seeded, func(i, j int) bool {
				return seeded[i].Timestamp.After(seeded[j].Timestamp)
			})
			c.lists[userID] = append(seeded, c.lists[userID]...)
		}
	}
	return c.lists[userID]
}

func (c *Center) Add(ctx context.Context, n *db.Notification) error {
	if !db.ValidNotificationType(n.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, n.Type)
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.listLocked(n.UserID)
	for _, existing := range list {
		if existing.ID == n.ID {
			return fmt.Errorf("notification %s: %w", n.ID, db.ErrConflict)
		}
	}

	list = append([]*db.Notification{cloneNotification(n)}, list...)
	if len(list) > c.capacity {
		list = list[:c.capacity]
	}
	c.lists[n.UserID] = list
	return nil
}

func (c *Center) List(ctx context.Context, userID string, limit, offset int) ([]*db.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.listLocked(userID)
	if offset >= len(list) {
		return []*db.Notification{}, nil
	}
	end := len(list)
	if limit > 0 {
		end = min(offset+limit, len(list))
	}

	out := make([]*db.Notification, 0, end-offset)
	for _, n := range list[offset:end] {
		out = append(out, cloneNotification(n))
	}
	return out, nil
}

func (c *Center) UnreadCount(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, n := range c.listLocked(userID) {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead is a no-op for a notification that is already read.
func (c *Center) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.listLocked(userID) {
		if n.ID == id {
			n.IsRead = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, db.ErrNotFound)
}

func (c *Center) MarkAllRead(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	marked := 0
	for _, n := range c.listLocked(userID) {
		if !n.IsRead {
			n.IsRead = true
			marked++
		}
	}
	return marked, nil
}

func (c *Center) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.listLocked(userID)
	for i, n := range list {
		if n.ID == id {
			c.lists[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, db.ErrNotFound)
}

func (c *Center) Clear(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.listLocked(userID))
	c.lists[userID] = nil
	return removed, nil
}

// Users returns every user the center has seen, sorted.
func (c *Center) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := make([]string, 0, len(c.seeded))
	for u := range c.seeded {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func cloneNotification(n *db.Notification) *db.Notification {
	c := *n
	if n.ActionURL != nil {
		s := *n.ActionURL
		c.ActionURL = &s
	}
	if n.Metadata != nil {
		m := *n.Metadata
		c.Metadata = &m
	}
	return &c
}
