package models

import "time"

const (
	LogStatusPending  = "pending"
	LogStatusApproved = "approved"
	LogStatusRejected = "rejected"
)

// DailyLog is one submission per user, commitment and calendar day.
// TargetAmount and CarryOverFromPrevious are captured at creation and never recomputed.
type DailyLog struct {
	ID                    uint        `gorm:"primaryKey" json:"id"`
	UserID                uint        `gorm:"uniqueIndex:idx_log_user_commitment_date;not null" json:"user_id"`
	CommitmentID          uint        `gorm:"uniqueIndex:idx_log_user_commitment_date;index;not null" json:"commitment_id"`
	Date                  string      `gorm:"uniqueIndex:idx_log_user_commitment_date;size:10;index;not null" json:"date"` // YYYY-MM-DD
	User                  *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Commitment            *Commitment `gorm:"foreignKey:CommitmentID" json:"commitment,omitempty"`
	TargetAmount          int         `gorm:"not null" json:"target_amount"`
	CarryOverFromPrevious int         `gorm:"not null;default:0" json:"carry_over_from_previous"`
	CompletedAmount       int         `gorm:"not null;default:0" json:"completed_amount"`
	Notes                 string      `gorm:"size:1000" json:"notes"`
	ProofURL              string      `gorm:"size:500" json:"proof_url"`
	Status                string      `gorm:"size:20;default:pending;index" json:"status"`
	ReviewedBy            *uint       `json:"reviewed_by"`
	ReviewedAt            *time.Time  `json:"reviewed_at"`
	CreatedAt             time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

func (DailyLog) TableName() string { return "daily_logs" }

// TotalDue is the amount that counts as a full completion for this log.
func (l *DailyLog) TotalDue() int {
	return l.TargetAmount + l.CarryOverFromPrevious
}
