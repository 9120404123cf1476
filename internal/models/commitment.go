package models

import (
	"time"

	"gorm.io/datatypes"
)

// Commitment is an admin-defined daily goal, e.g. 50 push-ups on weekdays.
type Commitment struct {
	ID                   uint                     `gorm:"primaryKey" json:"id"`
	RealmID              uint                     `gorm:"index;not null" json:"realm_id"`
	Name                 string                   `gorm:"size:200;not null" json:"name"`
	Description          string                   `gorm:"size:1000" json:"description"`
	DailyTarget          int                      `gorm:"not null" json:"daily_target"`
	Unit                 string                   `gorm:"size:50" json:"unit"`
	ActiveDays           datatypes.JSONSlice[int] `json:"active_days"` // weekday indexes, 0 = Sunday
	PunishmentMultiplier float64                  `gorm:"default:1" json:"punishment_multiplier"`
	IsActive             bool                     `gorm:"default:true" json:"is_active"`
	CreatedBy            uint                     `json:"created_by"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
}

func (Commitment) TableName() string { return "commitments" }

// UserCommitment is the assignment of a commitment to a user together with
// the rolling aggregates the approval step maintains.
type UserCommitment struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UserID           uint        `gorm:"uniqueIndex:idx_user_commitment;not null" json:"user_id"`
	CommitmentID     uint        `gorm:"uniqueIndex:idx_user_commitment;index;not null" json:"commitment_id"`
	User             *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Commitment       *Commitment `gorm:"foreignKey:CommitmentID" json:"commitment,omitempty"`
	PendingCarryOver int         `gorm:"not null;default:0" json:"pending_carry_over"`
	TotalCompleted   int         `gorm:"not null;default:0" json:"total_completed"`
	CurrentStreak    int         `gorm:"not null;default:0" json:"current_streak"`
	BestStreak       int         `gorm:"not null;default:0" json:"best_streak"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (UserCommitment) TableName() string { return "user_commitments" }
