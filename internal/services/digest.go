package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	digestLockName = "leaderboard_digest"
	digestPodium   = 3
	digestMaxRows  = 10
)

// StreakTitle names a streak length.
func StreakTitle(streak int) string {
	switch {
	case streak >= 100:
		return "Legend"
	case streak >= 50:
		return "Master"
	case streak >= 30:
		return "Veteran"
	case streak >= 14:
		return "Committed"
	case streak >= 7:
		return "Rising"
	case streak >= 3:
		return "Beginner"
	default:
		return "Novice"
	}
}

// TotalTitle names a lifetime total.
func TotalTitle(total int) string {
	switch {
	case total >= 10000:
		return "Legend"
	case total >= 5000:
		return "Elite"
	case total >= 1000:
		return "Pro"
	case total >= 500:
		return "Dedicated"
	case total >= 100:
		return "Active"
	case total >= 50:
		return "Rising"
	default:
		return "Starter"
	}
}

func rankMarker(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

// Digest is one rendered leaderboard post.
type Digest struct {
	CommitmentName string
	Unit           string
	Sort           LeaderboardSort
	Day            time.Time
	Entries        []LeaderboardEntry
	Note           string
}

// Render formats the digest: podium, ranks 4-10, then the coach note.
func (d *Digest) Render() string {
	var b strings.Builder
	label := "by Streak"
	if d.Sort == SortByReps {
		label = "by Total " + d.Unit
	}
	fmt.Fprintf(&b, "🏆 **%s Leaderboard**\n", d.CommitmentName)
	fmt.Fprintf(&b, "📅 %s • %s\n\n", d.Day.Format("Monday, January 2, 2006"), label)

	for i, e := range d.Entries {
		rank := i + 1
		if rank > digestMaxRows {
			break
		}
		if rank == digestPodium+1 {
			b.WriteString("\n")
		}
		if rank <= digestPodium {
			fmt.Fprintf(&b, "%s **%s**\n      %s\n", rankMarker(rank), e.UserName, d.line(e, true))
		} else {
			fmt.Fprintf(&b, "%d. **%s** - %s\n", rank, e.UserName, d.line(e, false))
		}
	}

	b.WriteString("\n💪 Keep pushing! Consistency is key.")
	if d.Note != "" {
		b.WriteString("\n\n")
		b.WriteString(d.Note)
	}
	return b.String()
}

func (d *Digest) line(e LeaderboardEntry, podium bool) string {
	if d.Sort == SortByReps {
		return fmt.Sprintf("🎯 %d %s • _%s_", e.TotalCompleted, d.Unit, TotalTitle(e.TotalCompleted))
	}
	days := "days"
	if podium {
		days = "day streak"
	}
	s := fmt.Sprintf("🔥 %d %s • _%s_", e.CurrentStreak, days, StreakTitle(e.CurrentStreak))
	if e.PendingCarryOver > 0 {
		if podium {
			s += fmt.Sprintf(" | ⚠️ %d %s debt", e.PendingCarryOver, d.Unit)
		} else {
			s += fmt.Sprintf(" | %d debt", e.PendingCarryOver)
		}
	}
	return s
}

// LeaderboardDigestService posts leaderboard snapshots on demand and on a cron schedule.
type LeaderboardDigestService struct {
	db          *gorm.DB
	clock       Clock
	leaderboard *LeaderboardService
	coach       *CoachService
	notifier    Notifier
	cfg         config.DigestConfig
	instanceID  string

	mu   sync.Mutex
	cron *cron.Cron
}

func NewLeaderboardDigestService(db *gorm.DB, clock Clock, leaderboard *LeaderboardService, coach *CoachService, notifier Notifier, cfg config.DigestConfig) *LeaderboardDigestService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LeaderboardDigestService{
		db:          db,
		clock:       clock,
		leaderboard: leaderboard,
		coach:       coach,
		notifier:    notifier,
		cfg:         cfg,
		instanceID:  uuid.NewString(),
	}
}

// Build renders the digest for one commitment without sending it.
func (s *LeaderboardDigestService) Build(ctx context.Context, commitmentID uint, mode LeaderboardSort) (*Digest, error) {
	var commitment models.Commitment
	if err := s.db.WithContext(ctx).First(&commitment, commitmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("commitment not found")
		}
		return nil, err
	}
	entries, err := s.leaderboard.Build(ctx, LeaderboardQuery{CommitmentID: commitmentID, Sort: mode})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, newValidation("leaderboard for %q has no entries", commitment.Name)
	}

	day := s.clock.current()
	d := &Digest{
		CommitmentName: commitment.Name,
		Unit:           commitment.Unit,
		Sort:           mode,
		Day:            day,
		Entries:        entries,
	}
	if s.coach != nil {
		d.Note = s.coach.Note(ctx, day, entries, commitment.Unit)
	}
	return d, nil
}

// Share is the admin "send leaderboard" action.
func (s *LeaderboardDigestService) Share(ctx context.Context, actor Actor, commitmentID uint, mode LeaderboardSort) (*Digest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	d, err := s.Build(ctx, commitmentID, mode)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, LeaderboardNotification(d.Render()))
	return d, nil
}

func (s *LeaderboardDigestService) StartScheduler() error {
	if !s.cfg.Enabled {
		logger.Info().Msg("[Digest] scheduler disabled")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(cron.WithLocation(s.clock.location()))
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.RunScheduled(ctx); err != nil {
			logger.Error().Err(err).Msg("[Digest] scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	logger.Info().Str("schedule", s.cfg.Schedule).Msg("[Digest] scheduler started")
	return nil
}

func (s *LeaderboardDigestService) StopScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

// RunScheduled posts today's digest for each configured commitment, once per
// day across all instances. Commitments not due today are skipped.
func (s *LeaderboardDigestService) RunScheduled(ctx context.Context) error {
	today := s.clock.current()
	query := s.db.WithContext(ctx).Where("is_active = ?", true)
	if s.cfg.CommitmentID > 0 {
		query = query.Where("id = ?", s.cfg.CommitmentID)
	}
	var commitments []models.Commitment
	if err := query.Order("id ASC").Find(&commitments).Error; err != nil {
		return err
	}

	mode := ParseLeaderboardSort(s.cfg.SortBy)
	for _, c := range commitments {
		if !IsWorkDay(today, c.ActiveDays) {
			logger.Debug().Uint("commitment_id", c.ID).Msg("[Digest] not an active day, skipping")
			continue
		}
		key := fmt.Sprintf("%s:%d", FormatDateKey(today), c.ID)
		ok, err := s.acquireLock(ctx, key, 24*time.Hour)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug().Str("key", key).Msg("[Digest] already sent by another instance")
			continue
		}

		d, err := s.Build(ctx, c.ID, mode)
		if err != nil {
			if KindOf(err) == KindValidation {
				continue
			}
			return err
		}
		s.notifier.Notify(ctx, LeaderboardNotification(d.Render()))
		LogInfo("Digest", "Send", fmt.Sprintf("leaderboard digest sent for %s", c.Name), nil, "", "", nil)
	}
	return nil
}

// acquireLock claims (digestLockName, key). An expired lock can be taken over.
func (s *LeaderboardDigestService) acquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.current()
	lock := models.SchedulerLock{
		LockName:  digestLockName,
		LockKey:   key,
		LockedBy:  s.instanceID,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	db := s.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND expires_at < ?", digestLockName, key, now).
		Updates(map[string]interface{}{
			"locked_by":  s.instanceID,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
