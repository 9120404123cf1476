package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HolidayChecker decides whether a date is a day off for a user.
type HolidayChecker interface {
	IsHoliday(realmID, userID uint, date string) (bool, error)
}

// DailyLogService owns the pending -> approved/rejected lifecycle of daily logs
// and is the only writer of UserCommitment aggregates.
type DailyLogService struct {
	db         *gorm.DB
	clock      Clock
	holidays   HolidayChecker
	notifier   Notifier
	activity   ActivityPublisher
	milestones []int
}

func NewDailyLogService(db *gorm.DB, clock Clock, holidays HolidayChecker, notifier Notifier, activity ActivityPublisher) *DailyLogService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if activity == nil {
		activity = (*SSEHub)(nil)
	}
	return &DailyLogService{
		db:         db,
		clock:      clock,
		holidays:   holidays,
		notifier:   notifier,
		activity:   activity,
		milestones: DefaultStreakMilestones,
	}
}

// WithMilestones sets the streak lengths that trigger a milestone notification.
func (s *DailyLogService) WithMilestones(milestones []int) *DailyLogService {
	s.milestones = append([]int(nil), milestones...)
	return s
}

type LogProgressRequest struct {
	LogID           *uint  `json:"log_id"`
	CommitmentID    uint   `json:"commitment_id"`
	Date            string `json:"date"`
	CompletedAmount int    `json:"completed_amount"`
	Notes           string `json:"notes"`
	ProofURL        string `json:"proof_url"`
}

// LogProgress updates the log when LogID is set and creates one otherwise.
func (s *DailyLogService) LogProgress(ctx context.Context, actor Actor, req *LogProgressRequest) (*models.DailyLog, error) {
	if req.LogID != nil && *req.LogID > 0 {
		return s.Update(ctx, actor, *req.LogID, req)
	}
	return s.Create(ctx, actor, req)
}

// Create records a pending log and snapshots the day's target and carried debt.
func (s *DailyLogService) Create(ctx context.Context, actor Actor, req *LogProgressRequest) (*models.DailyLog, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if req.CompletedAmount < 0 {
		return nil, newValidation("completed amount cannot be negative")
	}
	day, err := s.clock.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if req.Date > s.clock.Today() {
		return nil, newValidation("cannot log progress for a future date")
	}

	var uc models.UserCommitment
	err = s.db.WithContext(ctx).Preload("Commitment").
		Where("user_id = ? AND commitment_id = ?", actor.UserID, req.CommitmentID).
		First(&uc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("commitment not found or not assigned to you")
		}
		return nil, err
	}
	commitment := uc.Commitment
	if commitment == nil {
		return nil, newNotFound("commitment not found or not assigned to you")
	}
	if !commitment.IsActive {
		return nil, newValidation("commitment is not active")
	}
	if !IsWorkDay(day, commitment.ActiveDays) {
		return nil, newValidation("%s is not an active day for %s", req.Date, commitment.Name)
	}

	if s.holidays != nil {
		holiday, err := s.holidays.IsHoliday(commitment.RealmID, actor.UserID, req.Date)
		if err != nil {
			return nil, err
		}
		if holiday {
			return nil, newValidation("cannot log progress on a holiday")
		}
	}

	maxAllowed := commitment.DailyTarget + uc.PendingCarryOver
	if req.CompletedAmount > maxAllowed {
		return nil, newValidation("completed amount (%d) exceeds maximum allowed (%d)", req.CompletedAmount, maxAllowed)
	}

	if exists, err := s.logExists(ctx, actor.UserID, req.CommitmentID, req.Date); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrLogExists
	}

	entry := models.DailyLog{
		UserID:                actor.UserID,
		CommitmentID:          req.CommitmentID,
		Date:                  req.Date,
		TargetAmount:          commitment.DailyTarget,
		CarryOverFromPrevious: uc.PendingCarryOver,
		CompletedAmount:       req.CompletedAmount,
		Notes:                 req.Notes,
		ProofURL:              req.ProofURL,
		Status:                models.LogStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// lost a race against the unique (user, commitment, date) index
		if exists, checkErr := s.logExists(ctx, actor.UserID, req.CommitmentID, req.Date); checkErr == nil && exists {
			return nil, ErrLogExists
		}
		return nil, fmt.Errorf("create daily log: %w", err)
	}
	entry.Commitment = commitment

	s.activity.Publish(ActivityEvent{
		Type:         ActivityLogSubmitted,
		UserID:       actor.UserID,
		CommitmentID: commitment.ID,
		LogID:        entry.ID,
	})
	s.notifier.Notify(ctx, CommitmentLoggedNotification(actor.Username, commitment.Name, entry.CompletedAmount, commitment.Unit))
	return &entry, nil
}

func (s *DailyLogService) logExists(ctx context.Context, userID, commitmentID uint, date string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.DailyLog{}).
		Where("user_id = ? AND commitment_id = ? AND date = ?", userID, commitmentID, date).
		Count(&count).Error
	return count > 0, err
}

// Update replaces the completed amount of the caller's own pending or rejected
// log and sends it back to review. The snapshot fields are left alone.
func (s *DailyLogService) Update(ctx context.Context, actor Actor, logID uint, req *LogProgressRequest) (*models.DailyLog, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if req.CompletedAmount < 0 {
		return nil, newValidation("completed amount cannot be negative")
	}

	var entry models.DailyLog
	if err := s.db.WithContext(ctx).Preload("Commitment").First(&entry, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("log not found")
		}
		return nil, err
	}
	if entry.UserID != actor.UserID {
		return nil, newForbidden("you can only update your own logs")
	}
	if entry.Status == models.LogStatusApproved {
		return nil, ErrLogApproved
	}
	if req.CompletedAmount > entry.TotalDue() {
		return nil, newValidation("completed amount (%d) exceeds maximum allowed (%d)", req.CompletedAmount, entry.TotalDue())
	}

	res := s.db.WithContext(ctx).Model(&models.DailyLog{}).
		Where("id = ? AND status <> ?", entry.ID, models.LogStatusApproved).
		Updates(map[string]interface{}{
			"completed_amount": req.CompletedAmount,
			"notes":            req.Notes,
			"proof_url":        req.ProofURL,
			"status":           models.LogStatusPending,
			"reviewed_by":      nil,
			"reviewed_at":      nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update daily log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrLogApproved
	}

	entry.CompletedAmount = req.CompletedAmount
	entry.Notes = req.Notes
	entry.ProofURL = req.ProofURL
	entry.Status = models.LogStatusPending
	entry.ReviewedBy = nil
	entry.ReviewedAt = nil

	s.activity.Publish(ActivityEvent{
		Type:         ActivityLogSubmitted,
		UserID:       actor.UserID,
		CommitmentID: entry.CommitmentID,
		LogID:        entry.ID,
	})
	return &entry, nil
}

// ReviewResult is returned by Approve and Reject.
type ReviewResult struct {
	Log      *models.DailyLog       `json:"log"`
	Approval *ApprovalResult        `json:"approval,omitempty"`
	Stats    *models.UserCommitment `json:"stats,omitempty"`
}

// Approve moves a pending log to approved and applies its outcome to the
// user's aggregates in the same transaction. Only one caller can win.
func (s *DailyLogService) Approve(ctx context.Context, actor Actor, logID uint) (*ReviewResult, error) {
	return s.review(ctx, actor, logID, models.LogStatusApproved)
}

// Reject moves a pending log to rejected. Aggregates are untouched.
func (s *DailyLogService) Reject(ctx context.Context, actor Actor, logID uint) (*ReviewResult, error) {
	return s.review(ctx, actor, logID, models.LogStatusRejected)
}

func (s *DailyLogService) review(ctx context.Context, actor Actor, logID uint, status string) (*ReviewResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var result ReviewResult
	reviewedAt := s.clock.current().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the status write comes first so the row is locked before it is read
		res := tx.Model(&models.DailyLog{}).
			Where("id = ? AND status = ?", logID, models.LogStatusPending).
			Updates(map[string]interface{}{
				"status":      status,
				"reviewed_by": actor.UserID,
				"reviewed_at": reviewedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.DailyLog{}).Where("id = ?", logID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return newNotFound("log not found")
			}
			return ErrLogAlreadyProcessed
		}

		var entry models.DailyLog
		if err := tx.Preload("User").Preload("Commitment").First(&entry, logID).Error; err != nil {
			return err
		}
		result.Log = &entry

		if status != models.LogStatusApproved {
			return nil
		}

		var uc models.UserCommitment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND commitment_id = ?", entry.UserID, entry.CommitmentID).
			First(&uc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newNotFound("user commitment not found")
			}
			return err
		}

		multiplier := 1.0
		if entry.Commitment != nil {
			multiplier = entry.Commitment.PunishmentMultiplier
		}
		approval := applyApproval(&uc, &entry, multiplier)

		if err := tx.Model(&models.UserCommitment{}).Where("id = ?", uc.ID).Updates(map[string]interface{}{
			"total_completed":    uc.TotalCompleted,
			"current_streak":     uc.CurrentStreak,
			"best_streak":        uc.BestStreak,
			"pending_carry_over": uc.PendingCarryOver,
		}).Error; err != nil {
			return err
		}

		result.Approval = &approval
		result.Stats = &uc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterReview(ctx, actor, &result)
	return &result, nil
}

// afterReview runs the side effects that must never undo a committed review.
func (s *DailyLogService) afterReview(ctx context.Context, actor Actor, result *ReviewResult) {
	entry := result.Log
	userName, commitmentName, unit := "", "", ""
	if entry.User != nil {
		userName = entry.User.DisplayName()
	}
	if entry.Commitment != nil {
		commitmentName = entry.Commitment.Name
		unit = entry.Commitment.Unit
	}

	uid := actor.UserID
	if entry.Status == models.LogStatusRejected {
		LogInfo("Approvals", "Reject", fmt.Sprintf("log %d of %s rejected", entry.ID, userName), &uid, "", "", nil)
		s.activity.Publish(ActivityEvent{Type: ActivityLogRejected, UserID: entry.UserID, CommitmentID: entry.CommitmentID, LogID: entry.ID})
		s.notifier.Notify(ctx, CommitmentRejectedNotification(userName, commitmentName))
		return
	}

	a := result.Approval
	logger.Info().Uint("log_id", entry.ID).Uint("user_id", entry.UserID).
		Bool("full", a.FullCompletion).Int("streak", a.CurrentStreak).Int("carry_over", a.NewCarryOver).
		Msg("[DailyLog] approved")
	LogInfo("Approvals", "Approve", fmt.Sprintf("log %d of %s approved", entry.ID, userName), &uid, "", "", a)

	streak := a.CurrentStreak
	s.activity.Publish(ActivityEvent{Type: ActivityLogApproved, UserID: entry.UserID, CommitmentID: entry.CommitmentID, LogID: entry.ID, Streak: &streak})
	s.notifier.Notify(ctx, CommitmentApprovedNotification(userName, commitmentName, entry.CompletedAmount, unit))
	if a.FullCompletion && IsStreakMilestone(streak, s.milestones) {
		s.notifier.Notify(ctx, StreakMilestoneNotification(userName, streak))
	}
}

type PendingLogQuery struct {
	RealmID      uint `form:"realm_id"`
	CommitmentID uint `form:"commitment_id"`
}

// ListPending returns logs awaiting review, newest first.
func (s *DailyLogService) ListPending(ctx context.Context, actor Actor, q *PendingLogQuery) ([]models.DailyLog, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Preload("User").Preload("Commitment").
		Where("daily_logs.status = ?", models.LogStatusPending)
	if q != nil && q.CommitmentID > 0 {
		query = query.Where("daily_logs.commitment_id = ?", q.CommitmentID)
	}
	if q != nil && q.RealmID > 0 {
		query = query.Joins("JOIN commitments ON commitments.id = daily_logs.commitment_id").
			Where("commitments.realm_id = ?", q.RealmID)
	}

	var logs []models.DailyLog
	if err := query.Order("daily_logs.created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// ListForUser returns the caller's logs for one date.
func (s *DailyLogService) ListForUser(ctx context.Context, actor Actor, date string) ([]models.DailyLog, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if date == "" {
		date = s.clock.Today()
	}
	if _, err := s.clock.ParseDate(date); err != nil {
		return nil, err
	}

	var logs []models.DailyLog
	if err := s.db.WithContext(ctx).Preload("Commitment").
		Where("user_id = ? AND date = ?", actor.UserID, date).
		Order("commitment_id ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// DueItem is one assignment as seen on a given day.
type DueItem struct {
	Commitment       *models.Commitment `json:"commitment"`
	PendingCarryOver int                `json:"pending_carry_over"`
	TotalDue         int                `json:"total_due"`
	CurrentStreak    int                `json:"current_streak"`
	IsActiveDay      bool               `json:"is_active_day"`
	IsHoliday        bool               `json:"is_holiday"`
	Log              *models.DailyLog   `json:"log,omitempty"`
}

// ListDue returns the caller's active assignments for date with what is owed.
// Logged items show the snapshot total, others the live target plus debt.
func (s *DailyLogService) ListDue(ctx context.Context, actor Actor, date string) ([]DueItem, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if date == "" {
		date = s.clock.Today()
	}
	day, err := s.clock.ParseDate(date)
	if err != nil {
		return nil, err
	}

	var assignments []models.UserCommitment
	if err := s.db.WithContext(ctx).Preload("Commitment").
		Where("user_id = ?", actor.UserID).
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	logs, err := s.ListForUser(ctx, actor, date)
	if err != nil {
		return nil, err
	}
	byCommitment := make(map[uint]*models.DailyLog, len(logs))
	for i := range logs {
		byCommitment[logs[i].CommitmentID] = &logs[i]
	}

	items := make([]DueItem, 0, len(assignments))
	for _, uc := range assignments {
		c := uc.Commitment
		if c == nil || !c.IsActive {
			continue
		}
		item := DueItem{
			Commitment:       c,
			PendingCarryOver: uc.PendingCarryOver,
			TotalDue:         c.DailyTarget + uc.PendingCarryOver,
			CurrentStreak:    uc.CurrentStreak,
			IsActiveDay:      IsWorkDay(day, c.ActiveDays),
			Log:              byCommitment[c.ID],
		}
		if item.Log != nil {
			item.TotalDue = item.Log.TotalDue()
		}
		if s.holidays != nil {
			if item.IsHoliday, err = s.holidays.IsHoliday(c.RealmID, actor.UserID, date); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	return items, nil
}
