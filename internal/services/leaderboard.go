package services

import (
	"context"
	"sort"
	"time"

	"github.com/dailydues/backend/internal/models"
	"gorm.io/gorm"
)

type LeaderboardSort string

const (
	SortByStreak LeaderboardSort = "streak"
	SortByReps   LeaderboardSort = "reps"
)

// ParseLeaderboardSort falls back to streak for anything unknown.
func ParseLeaderboardSort(s string) LeaderboardSort {
	if LeaderboardSort(s) == SortByReps {
		return SortByReps
	}
	return SortByStreak
}

type TodayStatus string

const (
	TodayNotDue    TodayStatus = "not_due"
	TodayNotLogged TodayStatus = "not_logged"
	TodayPending   TodayStatus = "pending"
	TodayApproved  TodayStatus = "approved"
)

type LeaderboardEntry struct {
	UserID           uint        `json:"user_id"`
	UserName         string      `json:"user_name"`
	UserAvatar       string      `json:"user_avatar"`
	CommitmentID     uint        `json:"commitment_id"`
	CommitmentName   string      `json:"commitment_name"`
	Unit             string      `json:"unit"`
	CurrentStreak    int         `json:"current_streak"`
	BestStreak       int         `json:"best_streak"`
	TotalCompleted   int         `json:"total_completed"`
	PendingCarryOver int         `json:"pending_carry_over"`
	TodayStatus      TodayStatus `json:"today_status"`
	ApprovedAt       *time.Time  `json:"approved_at"`
}

type LeaderboardQuery struct {
	CommitmentID uint
	Sort         LeaderboardSort
}

// LeaderboardService is a read-only projection over aggregates and today's logs.
type LeaderboardService struct {
	db       *gorm.DB
	clock    Clock
	holidays HolidayChecker
}

func NewLeaderboardService(db *gorm.DB, clock Clock, holidays HolidayChecker) *LeaderboardService {
	return &LeaderboardService{db: db, clock: clock, holidays: holidays}
}

func (s *LeaderboardService) Leaderboard(ctx context.Context, actor Actor, q LeaderboardQuery) ([]LeaderboardEntry, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	return s.Build(ctx, q)
}

// Build computes the leaderboard without a caller. The digest uses it directly.
func (s *LeaderboardService) Build(ctx context.Context, q LeaderboardQuery) ([]LeaderboardEntry, error) {
	db := s.db.WithContext(ctx)

	query := db.Preload("User").Preload("Commitment").
		Joins("JOIN users ON users.id = user_commitments.user_id AND users.deleted_at IS NULL").
		Joins("JOIN commitments ON commitments.id = user_commitments.commitment_id").
		Where("users.role <> ?", models.RoleAdmin).
		Where("commitments.is_active = ?", true).
		Order("user_commitments.id ASC")
	if q.CommitmentID > 0 {
		query = query.Where("user_commitments.commitment_id = ?", q.CommitmentID)
	}
	var aggs []models.UserCommitment
	if err := query.Find(&aggs).Error; err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return []LeaderboardEntry{}, nil
	}

	now := s.clock.current()
	today := FormatDateKey(now)

	commitmentIDs := make([]uint, 0, len(aggs))
	seen := make(map[uint]bool)
	for _, a := range aggs {
		if !seen[a.CommitmentID] {
			seen[a.CommitmentID] = true
			commitmentIDs = append(commitmentIDs, a.CommitmentID)
		}
	}
	var logs []models.DailyLog
	if err := db.Where("date = ? AND commitment_id IN ?", today, commitmentIDs).Find(&logs).Error; err != nil {
		return nil, err
	}
	type key struct{ user, commitment uint }
	byKey := make(map[key][]models.DailyLog)
	for _, l := range logs {
		k := key{l.UserID, l.CommitmentID}
		byKey[k] = append(byKey[k], l)
	}

	entries := make([]LeaderboardEntry, 0, len(aggs))
	for _, a := range aggs {
		if a.User == nil || a.Commitment == nil {
			continue
		}
		activeDay := IsWorkDay(now, a.Commitment.ActiveDays)
		holiday := false
		if activeDay && s.holidays != nil {
			h, err := s.holidays.IsHoliday(a.Commitment.RealmID, a.UserID, today)
			if err != nil {
				return nil, err
			}
			holiday = h
		}
		todays := byKey[key{a.UserID, a.CommitmentID}]
		entries = append(entries, LeaderboardEntry{
			UserID:           a.UserID,
			UserName:         a.User.DisplayName(),
			UserAvatar:       a.User.Avatar,
			CommitmentID:     a.CommitmentID,
			CommitmentName:   a.Commitment.Name,
			Unit:             a.Commitment.Unit,
			CurrentStreak:    a.CurrentStreak,
			BestStreak:       a.BestStreak,
			TotalCompleted:   a.TotalCompleted,
			PendingCarryOver: a.PendingCarryOver,
			TodayStatus:      ClassifyToday(activeDay && !holiday, todays),
			ApprovedAt:       approvedAt(todays),
		})
	}

	SortLeaderboard(entries, q.Sort)
	return entries, nil
}

// ClassifyToday reports the most advanced state among today's logs.
// A rejected log counts as nothing logged yet.
func ClassifyToday(due bool, todays []models.DailyLog) TodayStatus {
	status := TodayNotLogged
	for _, l := range todays {
		switch l.Status {
		case models.LogStatusApproved:
			return TodayApproved
		case models.LogStatusPending:
			status = TodayPending
		}
	}
	if status == TodayNotLogged && !due {
		return TodayNotDue
	}
	return status
}

func approvedAt(todays []models.DailyLog) *time.Time {
	var earliest *time.Time
	for _, l := range todays {
		if l.Status != models.LogStatusApproved || l.ReviewedAt == nil {
			continue
		}
		if earliest == nil || l.ReviewedAt.Before(*earliest) {
			t := *l.ReviewedAt
			earliest = &t
		}
	}
	return earliest
}

// SortLeaderboard orders entries in place. Streak mode breaks ties by who was
// approved first today, with entries lacking an approval last.
func SortLeaderboard(entries []LeaderboardEntry, mode LeaderboardSort) {
	if mode == SortByReps {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].TotalCompleted > entries[j].TotalCompleted
		})
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.CurrentStreak != b.CurrentStreak {
			return a.CurrentStreak > b.CurrentStreak
		}
		if a.ApprovedAt == nil || b.ApprovedAt == nil {
			return a.ApprovedAt != nil && b.ApprovedAt == nil
		}
		return a.ApprovedAt.Before(*b.ApprovedAt)
	})
}
