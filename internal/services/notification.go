package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/pkg/logger"
	"github.com/google/uuid"
)

type EventType string

const (
	EventUserJoined         EventType = "user_joined"
	EventCommitmentLogged   EventType = "commitment_logged"
	EventCommitmentApproved EventType = "commitment_approved"
	EventCommitmentRejected EventType = "commitment_rejected"
	EventStreakMilestone    EventType = "streak_milestone"
	EventLeaderboardUpdate  EventType = "leaderboard_update"
	EventCustom             EventType = "custom"
)

// Notification is a rendered chat message. Body uses **bold** markdown;
// adapters convert it to their platform's dialect.
type Notification struct {
	Event EventType `json:"event"`
	Text  string    `json:"text"` // one-line fallback
	Body  string    `json:"body"`
}

// Notifier delivers notifications without ever failing the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// NotificationService fans a notification out to every configured channel
// through the task queue. Its configuration is fixed at construction.
type NotificationService struct {
	channels []config.NotificationChannel
	enabled  map[EventType]bool
	queue    TaskQueue
}

func NewNotificationService(cfg config.NotificationConfig, queue TaskQueue) *NotificationService {
	enabled := make(map[EventType]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		enabled[EventType(e)] = true
	}
	return &NotificationService{
		channels: append([]config.NotificationChannel(nil), cfg.Channels...),
		enabled:  enabled,
		queue:    queue,
	}
}

func (s *NotificationService) IsEnabled() bool {
	return len(s.channels) > 0
}

func (s *NotificationService) IsEventEnabled(e EventType) bool {
	return s.enabled[e]
}

var DefaultStreakMilestones = []int{7, 14, 30, 50, 100, 365}

// IsStreakMilestone reports whether streak lands exactly on one of milestones.
func IsStreakMilestone(streak int, milestones []int) bool {
	for _, m := range milestones {
		if m == streak {
			return true
		}
	}
	return false
}

func (s *NotificationService) Notify(ctx context.Context, n Notification) {
	if !s.IsEnabled() {
		logger.Debug().Str("event", string(n.Event)).Msg("[Notification] no channels configured")
		return
	}
	if !s.IsEventEnabled(n.Event) {
		logger.Debug().Str("event", string(n.Event)).Msg("[Notification] event disabled")
		return
	}

	for _, ch := range s.channels {
		task := &NotificationTask{
			ID:           uuid.NewString(),
			Channel:      ch,
			Notification: n,
			CreatedAt:    time.Now(),
		}
		if err := s.queue.Enqueue(task); err != nil {
			logger.Warn().Err(err).Str("channel", ch.Name).Str("event", string(n.Event)).
				Msg("[Notification] enqueue failed")
		}
	}
}

// Deliver posts one task to its channel. It is the queue processor.
func (s *NotificationService) Deliver(ctx context.Context, task *NotificationTask) error {
	adapter := getAdapter(task.Channel.Type)
	if err := adapter.Send(ctx, task.Channel, &task.Notification); err != nil {
		logger.Warn().Err(err).Str("task_id", task.ID).Str("channel", task.Channel.Name).
			Msg("[Notification] delivery failed")
		return err
	}
	logger.Info().Str("task_id", task.ID).Str("channel", task.Channel.Name).
		Str("event", string(task.Notification.Event)).Msg("[Notification] delivered")
	return nil
}

// --- Message builders ---

func UserJoinedNotification(userName string) Notification {
	return Notification{
		Event: EventUserJoined,
		Text:  fmt.Sprintf("👋 New user joined: %s", userName),
		Body:  fmt.Sprintf("👋 **New User Alert!**\n\n**%s** has joined Daily Dues. Welcome to the grind! 💪", userName),
	}
}

func CommitmentLoggedNotification(userName, commitment string, amount int, unit string) Notification {
	return Notification{
		Event: EventCommitmentLogged,
		Text:  fmt.Sprintf("📝 %s logged %d %s", userName, amount, unit),
		Body:  fmt.Sprintf("📝 **Progress Logged**\n\n**%s** completed **%d %s** of %s", userName, amount, unit, commitment),
	}
}

func CommitmentApprovedNotification(userName, commitment string, amount int, unit string) Notification {
	return Notification{
		Event: EventCommitmentApproved,
		Text:  fmt.Sprintf("✅ %s's %s approved!", userName, commitment),
		Body: fmt.Sprintf("✅ **Commitment Approved!**\n\n**%s** crushed their **%s** goal!\n%d %s completed 🎯",
			userName, commitment, amount, unit),
	}
}

func CommitmentRejectedNotification(userName, commitment string) Notification {
	return Notification{
		Event: EventCommitmentRejected,
		Text:  fmt.Sprintf("❌ %s's submission was rejected", userName),
		Body:  fmt.Sprintf("❌ **Submission Rejected**\n\n**%s**'s %s submission was rejected. Time to step up! 💪", userName, commitment),
	}
}

func StreakMilestoneNotification(userName string, milestone int) Notification {
	return Notification{
		Event: EventStreakMilestone,
		Text:  fmt.Sprintf("🔥 %s hit a %d-day streak!", userName, milestone),
		Body: fmt.Sprintf("🔥 **Streak Milestone!**\n\n**%s** just hit a **%d-day streak**! 🏆\n\nIncredible discipline. Keep it up!",
			userName, milestone),
	}
}

func LeaderboardNotification(summary string) Notification {
	if summary == "" {
		summary = "Check the latest standings!"
	}
	return Notification{
		Event: EventLeaderboardUpdate,
		Text:  "🏆 Leaderboard updated!",
		Body:  summary,
	}
}

func CustomNotification(message string) Notification {
	if message == "" {
		message = "Daily Dues notification"
	}
	return Notification{Event: EventCustom, Text: message, Body: message}
}
