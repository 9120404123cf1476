package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dailydues/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CommitmentService struct {
	db *gorm.DB
}

func NewCommitmentService(db *gorm.DB) *CommitmentService {
	return &CommitmentService{db: db}
}

type CreateCommitmentRequest struct {
	RealmID              uint    `json:"realm_id" binding:"required"`
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	DailyTarget          int     `json:"daily_target"`
	Unit                 string  `json:"unit"`
	ActiveDays           []int   `json:"active_days"`
	PunishmentMultiplier float64 `json:"punishment_multiplier"`
}

// UpdateCommitmentRequest changes only the fields that are set.
type UpdateCommitmentRequest struct {
	Name                 *string  `json:"name"`
	Description          *string  `json:"description"`
	DailyTarget          *int     `json:"daily_target"`
	Unit                 *string  `json:"unit"`
	ActiveDays           []int    `json:"active_days"`
	PunishmentMultiplier *float64 `json:"punishment_multiplier"`
}

const (
	MaxDailyTarget          = 100000
	MaxPunishmentMultiplier = 10
)

func validateTarget(target int) error {
	if target <= 0 {
		return newValidation("daily target must be positive")
	}
	if target > MaxDailyTarget {
		return newValidation("daily target cannot exceed %d", MaxDailyTarget)
	}
	return nil
}

func validateMultiplier(m float64) error {
	if !(m >= 1 && m <= MaxPunishmentMultiplier) {
		return newValidation("punishment multiplier must be between 1 and %d", MaxPunishmentMultiplier)
	}
	return nil
}

func normalizeDays(days []int) datatypes.JSONSlice[int] {
	out := append([]int(nil), days...)
	sort.Ints(out)
	return datatypes.JSONSlice[int](out)
}

func (s *CommitmentService) Create(ctx context.Context, actor Actor, req *CreateCommitmentRequest) (*models.Commitment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, newValidation("name is required")
	}
	if err := validateTarget(req.DailyTarget); err != nil {
		return nil, err
	}
	if req.PunishmentMultiplier == 0 {
		req.PunishmentMultiplier = 1
	}
	if err := validateMultiplier(req.PunishmentMultiplier); err != nil {
		return nil, err
	}
	if err := ValidateActiveDays(req.ActiveDays); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Realm{}).Where("id = ?", req.RealmID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, newNotFound("realm not found")
	}

	c := models.Commitment{
		RealmID:              req.RealmID,
		Name:                 name,
		Description:          req.Description,
		DailyTarget:          req.DailyTarget,
		Unit:                 req.Unit,
		ActiveDays:           normalizeDays(req.ActiveDays),
		PunishmentMultiplier: req.PunishmentMultiplier,
		IsActive:             true,
		CreatedBy:            actor.UserID,
	}
	if err := db.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create commitment: %w", err)
	}
	return &c, nil
}

// Update edits a commitment. Logs already submitted keep their target snapshot.
func (s *CommitmentService) Update(ctx context.Context, actor Actor, id uint, req *UpdateCommitmentRequest) (*models.Commitment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, newValidation("name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.DailyTarget != nil {
		if err := validateTarget(*req.DailyTarget); err != nil {
			return nil, err
		}
		updates["daily_target"] = *req.DailyTarget
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.ActiveDays != nil {
		if err := ValidateActiveDays(req.ActiveDays); err != nil {
			return nil, err
		}
		updates["active_days"] = normalizeDays(req.ActiveDays)
	}
	if req.PunishmentMultiplier != nil {
		if err := validateMultiplier(*req.PunishmentMultiplier); err != nil {
			return nil, err
		}
		updates["punishment_multiplier"] = *req.PunishmentMultiplier
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return c, nil
	}
	if err := s.db.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update commitment: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *CommitmentService) SetActive(ctx context.Context, actor Actor, id uint, active bool) (*models.Commitment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(c).Update("is_active", active).Error; err != nil {
		return nil, err
	}
	c.IsActive = active
	return c, nil
}

func (s *CommitmentService) Get(ctx context.Context, id uint) (*models.Commitment, error) {
	var c models.Commitment
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("commitment not found")
		}
		return nil, err
	}
	return &c, nil
}

// List returns commitments newest first. realmID 0 lists every realm.
func (s *CommitmentService) List(ctx context.Context, actor Actor, realmID uint) ([]models.Commitment, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if realmID > 0 {
		query = query.Where("realm_id = ?", realmID)
	}
	var out []models.Commitment
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Assign makes commitmentIDs the exact set assigned to userID. Kept assignments
// keep their aggregates; removed ones are deleted and new ones start at zero.
func (s *CommitmentService) Assign(ctx context.Context, actor Actor, userID uint, commitmentIDs []uint) ([]models.UserCommitment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	wanted := make(map[uint]bool, len(commitmentIDs))
	ids := make([]uint, 0, len(commitmentIDs))
	for _, id := range commitmentIDs {
		if !wanted[id] {
			wanted[id] = true
			ids = append(ids, id)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			return newNotFound("user not found")
		}
		if len(ids) > 0 {
			var found int64
			if err := tx.Model(&models.Commitment{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
				return err
			}
			if int(found) != len(ids) {
				return newNotFound("one or more commitments not found")
			}
		}

		var current []models.UserCommitment
		if err := tx.Where("user_id = ?", userID).Find(&current).Error; err != nil {
			return err
		}
		have := make(map[uint]bool, len(current))
		var remove []uint
		for _, uc := range current {
			have[uc.CommitmentID] = true
			if !wanted[uc.CommitmentID] {
				remove = append(remove, uc.CommitmentID)
			}
		}

		if len(remove) > 0 {
			if err := tx.Where("user_id = ? AND commitment_id IN ?", userID, remove).
				Delete(&models.UserCommitment{}).Error; err != nil {
				return err
			}
		}
		for _, id := range ids {
			if have[id] {
				continue
			}
			if err := tx.Create(&models.UserCommitment{UserID: userID, CommitmentID: id}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Assignments(ctx, userID)
}

func (s *CommitmentService) Assignments(ctx context.Context, userID uint) ([]models.UserCommitment, error) {
	var out []models.UserCommitment
	if err := s.db.WithContext(ctx).Preload("Commitment").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a commitment together with its assignments, logs and challenges.
func (s *CommitmentService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := purgeCommitments(tx, []uint{id}); err != nil {
			return err
		}
		return tx.Delete(&models.Commitment{}, id).Error
	})
}

// purgeCommitments deletes every row that hangs off the given commitments.
func purgeCommitments(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var challengeIDs []uint
	if err := tx.Model(&models.Challenge{}).Where("commitment_id IN ?", ids).Pluck("id", &challengeIDs).Error; err != nil {
		return err
	}
	if err := purgeChallenges(tx, challengeIDs); err != nil {
		return err
	}
	if err := tx.Where("commitment_id IN ?", ids).Delete(&models.DailyLog{}).Error; err != nil {
		return fmt.Errorf("delete logs: %w", err)
	}
	if err := tx.Where("commitment_id IN ?", ids).Delete(&models.UserCommitment{}).Error; err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	return nil
}
