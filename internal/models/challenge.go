package models

import "time"

const (
	ChallengeStatusActive   = "active"
	ChallengeStatusArchived = "archived"
)

type Challenge struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	RealmID       uint        `gorm:"index;not null" json:"realm_id"`
	CommitmentID  uint        `gorm:"index;not null" json:"commitment_id"`
	Commitment    *Commitment `gorm:"foreignKey:CommitmentID" json:"commitment,omitempty"`
	Name          string      `gorm:"size:200;not null" json:"name"`
	Description   string      `gorm:"size:1000" json:"description"`
	DurationHours int         `gorm:"not null" json:"duration_hours"`
	MaxUnits      int         `gorm:"not null" json:"max_units"`
	Status        string      `gorm:"size:20;default:active;index" json:"status"`
	StartsAt      time.Time   `json:"starts_at"`
	EndsAt        time.Time   `gorm:"index" json:"ends_at"`
	ArchivedAt    *time.Time  `json:"archived_at"`
	CreatedBy     uint        `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (Challenge) TableName() string { return "challenges" }

// HasEnded reports whether the challenge window is over at now, archived or not.
func (c *Challenge) HasEnded(now time.Time) bool {
	return !now.Before(c.EndsAt)
}

// AcceptsActivity reports whether joins and votes are still allowed.
func (c *Challenge) AcceptsActivity(now time.Time) bool {
	return c.Status == ChallengeStatusActive && !c.HasEnded(now)
}

type ChallengeMember struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ChallengeID uint            `gorm:"uniqueIndex:idx_challenge_member;not null" json:"challenge_id"`
	UserID      uint            `gorm:"uniqueIndex:idx_challenge_member;index;not null" json:"user_id"`
	User        *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Votes       []ChallengeVote `gorm:"foreignKey:MemberID" json:"-"`
	FinalReps   *int            `json:"final_reps"` // set once on archive
	CreatedAt   time.Time       `json:"joined_at"`
}

func (ChallengeMember) TableName() string { return "challenge_members" }

// ChallengeVote is one voter's rep count for one member. A row only ever moves upward.
type ChallengeVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemberID  uint      `gorm:"uniqueIndex:idx_vote_member_voter;not null" json:"member_id"`
	VoterID   uint      `gorm:"uniqueIndex:idx_vote_member_voter;not null" json:"voter_id"`
	Reps      int       `gorm:"not null" json:"reps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChallengeVote) TableName() string { return "challenge_votes" }
