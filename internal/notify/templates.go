package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/clipforge/internal/db"
)

// template is a canned notification used by the demo seed and the simulator.
type template struct {
	Type      string
	Title     string
	Message   string
	ActionURL string
	Metadata  *db.NotificationMetadata
}

func (t template) build(userID string, at time.Time) *db.Notification {
	n := &db.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      t.Type,
		Title:     t.Title,
		Message:   t.Message,
		Timestamp: at,
	}
	if t.ActionURL != "" {
		url := t.ActionURL
		n.ActionURL = &url
	}
	if t.Metadata != nil {
		m := *t.Metadata
		n.Metadata = &m
	}
	return n
}

var simulatedTemplates = []template{
	{
		Type:      db.NotificationJobCompleted,
		Title:     "Video ready",
		Message:   "Your image-to-video generation has finished rendering.",
		ActionURL: "/dashboard/history",
		Metadata:  &db.NotificationMetadata{JobType: db.ModuleImageToVideo},
	},
	{
		Type:      db.NotificationJobReady,
		Title:     "Preview available",
		Message:   "A preview of your latest generation is ready to view.",
		ActionURL: "/dashboard/history",
	},
	{
		Type:     db.NotificationCreditAdded,
		Title:    "Credits added",
		Message:  "50 credits were added to your account.",
		Metadata: &db.NotificationMetadata{Credits: 50},
	},
	{
		Type:     db.NotificationLowCredits,
		Title:    "Running low on credits",
		Message:  "You have 10 credits left. Top up to keep generating.",
		Metadata: &db.NotificationMetadata{Credits: 10},
	},
	{
		Type:    db.NotificationSystem,
		Title:   "Scheduled maintenance",
		Message: "Generation may be slower between 02:00 and 03:00 UTC.",
	},
}

// DemoNotifications returns the mock notifications a new user starts with.
func DemoNotifications(userID string, now time.Time) []*db.Notification {
	seed := []struct {
		tpl  template
		age  time.Duration
		read bool
	}{
		{
			tpl: template{
				Type:    db.NotificationWelcome,
				Title:   "Welcome to ClipForge",
				Message: "Turn images, text and audio into video. Start with the image-to-video tool.",
			},
			age:  72 * time.Hour,
			read: true,
		},
		{
			tpl: template{
				Type:     db.NotificationPaymentSuccess,
				Title:    "Payment received",
				Message:  "Your payment of $19.00 was successful.",
				Metadata: &db.NotificationMetadata{Amount: 19},
			},
			age:  26 * time.Hour,
			read: true,
		},
		{
			tpl: template{
				Type:     db.NotificationCreditAdded,
				Title:    "Credits added",
				Message:  "200 credits were added to your account.",
				Metadata: &db.NotificationMetadata{Credits: 200},
			},
			age: 26 * time.Hour,
		},
		{
			tpl: template{
				Type:      db.NotificationJobCompleted,
				Title:     "Video ready",
				Message:   "Your image-to-video generation has finished rendering.",
				ActionURL: "/dashboard/history",
				Metadata:  &db.NotificationMetadata{JobType: db.ModuleImageToVideo},
			},
			age: 2 * time.Hour,
		},
		{
			tpl: template{
				Type:    db.NotificationSystem,
				Title:   "New voices",
				Message: "Text-to-speech now supports six additional voices.",
			},
			age: 30 * time.Minute,
		},
	}

	out := make([]*db.Notification, 0, len(seed))
	for _, s := range seed {
		n := s.tpl.build(userID, now.Add(-s.age))
		n.IsRead = s.read
		out = append(out, n)
	}
	return out
}
