package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MinVotesForScore is how many distinct voters a member needs before a score exists.
const MinVotesForScore = 2

// MinScoredMembers is how many scored members make a challenge result valid.
const MinScoredMembers = 2

// Votes maps voter user id to the rep count that voter submitted.
type Votes map[uint]int

// Set records a vote. A voter may raise but never lower an earlier vote.
func (v Votes) Set(voterID uint, reps int) error {
	if prev, ok := v[voterID]; ok && reps < prev {
		return voteDecreaseError(prev)
	}
	v[voterID] = reps
	return nil
}

// AgreedScore is the lowest vote once at least two voters have voted, nil before.
func (v Votes) AgreedScore() *int {
	if len(v) < MinVotesForScore {
		return nil
	}
	first := true
	var lowest int
	for _, reps := range v {
		if first || reps < lowest {
			lowest = reps
			first = false
		}
	}
	return &lowest
}

func voteDecreaseError(current int) error {
	return newConflict("votes can only increase, current vote: %d", current)
}

// insertVote adds a first vote and does nothing if the row already exists.
func insertVote(tx *gorm.DB, vote *models.ChallengeVote) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(vote)
}

// raiseVote overwrites a stored vote only when it does not lower it.
func raiseVote(tx *gorm.DB, memberID, voterID uint, reps int, at time.Time) *gorm.DB {
	return tx.Model(&models.ChallengeVote{}).
		Where("member_id = ? AND voter_id = ? AND reps <= ?", memberID, voterID, reps).
		Updates(map[string]interface{}{"reps": reps, "updated_at": at})
}

func votesOf(m *models.ChallengeMember) Votes {
	v := make(Votes, len(m.Votes))
	for _, cv := range m.Votes {
		v[cv.VoterID] = cv.Reps
	}
	return v
}

type ChallengeService struct {
	db       *gorm.DB
	clock    Clock
	activity ActivityPublisher
}

func NewChallengeService(db *gorm.DB, clock Clock, activity ActivityPublisher) *ChallengeService {
	if activity == nil {
		activity = (*SSEHub)(nil)
	}
	return &ChallengeService{db: db, clock: clock, activity: activity}
}

type CreateChallengeRequest struct {
	RealmID       uint   `json:"realm_id" binding:"required"`
	CommitmentID  uint   `json:"commitment_id" binding:"required"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DurationHours int    `json:"duration_hours"`
	MaxUnits      int    `json:"max_units"`
}

func (s *ChallengeService) Create(ctx context.Context, actor Actor, req *CreateChallengeRequest) (*models.Challenge, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, newValidation("name is required")
	}
	if req.DurationHours <= 0 {
		return nil, newValidation("duration must be positive")
	}
	if req.MaxUnits <= 0 {
		return nil, newValidation("max units must be positive")
	}

	db := s.db.WithContext(ctx)
	var realm models.Realm
	if err := db.First(&realm, req.RealmID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("realm not found")
		}
		return nil, err
	}
	var commitment models.Commitment
	if err := db.First(&commitment, req.CommitmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("commitment not found")
		}
		return nil, err
	}
	if commitment.RealmID != realm.ID {
		return nil, newValidation("commitment does not belong to this realm")
	}

	now := s.clock.current()
	challenge := models.Challenge{
		RealmID:       realm.ID,
		CommitmentID:  commitment.ID,
		Name:          name,
		Description:   req.Description,
		DurationHours: req.DurationHours,
		MaxUnits:      req.MaxUnits,
		Status:        models.ChallengeStatusActive,
		StartsAt:      now,
		EndsAt:        now.Add(time.Duration(req.DurationHours) * time.Hour),
		CreatedBy:     actor.UserID,
	}
	if err := db.Create(&challenge).Error; err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	challenge.Commitment = &commitment
	return &challenge, nil
}

type ChallengeSummary struct {
	models.Challenge
	MemberCount int  `json:"member_count"`
	IsMember    bool `json:"is_member"`
	HasEnded    bool `json:"has_ended"`
}

// List returns challenges newest first; realmID 0 lists every realm.
func (s *ChallengeService) List(ctx context.Context, actor Actor, realmID uint) ([]ChallengeSummary, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	query := db.Preload("Commitment").Order("created_at DESC")
	if realmID > 0 {
		query = query.Where("realm_id = ?", realmID)
	}
	var challenges []models.Challenge
	if err := query.Find(&challenges).Error; err != nil {
		return nil, err
	}
	if len(challenges) == 0 {
		return []ChallengeSummary{}, nil
	}

	ids := make([]uint, len(challenges))
	for i, c := range challenges {
		ids[i] = c.ID
	}
	var members []models.ChallengeMember
	if err := db.Select("challenge_id", "user_id").Where("challenge_id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	counts := make(map[uint]int)
	mine := make(map[uint]bool)
	for _, m := range members {
		counts[m.ChallengeID]++
		if m.UserID == actor.UserID {
			mine[m.ChallengeID] = true
		}
	}

	now := s.clock.current()
	out := make([]ChallengeSummary, len(challenges))
	for i, c := range challenges {
		out[i] = ChallengeSummary{
			Challenge:   c,
			MemberCount: counts[c.ID],
			IsMember:    mine[c.ID],
			HasEnded:    c.HasEnded(now),
		}
	}
	return out, nil
}

func (s *ChallengeService) get(db *gorm.DB, id uint) (*models.Challenge, error) {
	var c models.Challenge
	if err := db.Preload("Commitment").First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("challenge not found")
		}
		return nil, err
	}
	return &c, nil
}

func (s *ChallengeService) checkOpen(c *models.Challenge) error {
	if c.Status != models.ChallengeStatusActive {
		return ErrChallengeInactive
	}
	if c.HasEnded(s.clock.current()) {
		return ErrChallengeEnded
	}
	return nil
}

// Join adds the caller to an open challenge.
func (s *ChallengeService) Join(ctx context.Context, actor Actor, challengeID uint) (*models.ChallengeMember, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	c, err := s.get(db, challengeID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(c); err != nil {
		return nil, err
	}

	member := models.ChallengeMember{ChallengeID: c.ID, UserID: actor.UserID}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if res.Error != nil {
		return nil, fmt.Errorf("join challenge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyJoined
	}

	s.activity.Publish(ActivityEvent{Type: ActivityChallengeJoined, UserID: actor.UserID, ChallengeID: c.ID})
	return &member, nil
}

type VoteRequest struct {
	TargetUserID uint `json:"target_user_id" binding:"required"`
	Reps         int  `json:"reps"`
}

// Vote records the caller's rep count for another member. Re-votes may only go up.
func (s *ChallengeService) Vote(ctx context.Context, actor Actor, challengeID uint, req *VoteRequest) (*models.ChallengeVote, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if req.TargetUserID == actor.UserID {
		return nil, ErrSelfVote
	}

	var vote models.ChallengeVote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.get(tx, challengeID)
		if err != nil {
			return err
		}
		if err := s.checkOpen(c); err != nil {
			return err
		}
		if req.Reps < 0 {
			return newValidation("reps cannot be negative")
		}
		if req.Reps > c.MaxUnits {
			return newValidation("reps cannot exceed max units (%d)", c.MaxUnits)
		}

		var voterCount int64
		if err := tx.Model(&models.ChallengeMember{}).
			Where("challenge_id = ? AND user_id = ?", c.ID, actor.UserID).
			Count(&voterCount).Error; err != nil {
			return err
		}
		if voterCount == 0 {
			return newForbidden("you must join the challenge to vote")
		}

		var target models.ChallengeMember
		if err := tx.Where("challenge_id = ? AND user_id = ?", c.ID, req.TargetUserID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newNotFound("target user is not in this challenge")
			}
			return err
		}

		var existing models.ChallengeVote
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("member_id = ? AND voter_id = ?", target.ID, actor.UserID).
			First(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		votes := Votes{}
		if found {
			votes[actor.UserID] = existing.Reps
		}
		if err := votes.Set(actor.UserID, req.Reps); err != nil {
			return err
		}

		vote = models.ChallengeVote{MemberID: target.ID, VoterID: actor.UserID, Reps: votes[actor.UserID]}
		if !found {
			res := insertVote(tx, &vote)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				return nil
			}
			// a concurrent first vote from the same voter landed in between
		}

		if err := raiseVote(tx, target.ID, actor.UserID, vote.Reps, s.clock.current()).Error; err != nil {
			return err
		}
		var current models.ChallengeVote
		if err := tx.Where("member_id = ? AND voter_id = ?", target.ID, actor.UserID).First(&current).Error; err != nil {
			return err
		}
		if current.Reps > vote.Reps {
			return voteDecreaseError(current.Reps)
		}
		vote = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().Uint("challenge_id", challengeID).Uint("voter", actor.UserID).
		Uint("target", req.TargetUserID).Int("reps", req.Reps).Msg("[Challenge] vote recorded")
	s.activity.Publish(ActivityEvent{Type: ActivityChallengeVote, UserID: req.TargetUserID, ChallengeID: challengeID})
	return &vote, nil
}

type ChallengeEntry struct {
	UserID     uint   `json:"user_id"`
	UserName   string `json:"user_name"`
	UserAvatar string `json:"user_avatar"`
	Votes      Votes  `json:"votes"`
	VoteCount  int    `json:"vote_count"`
	AgreedReps *int   `json:"agreed_reps"`
	FinalReps  *int   `json:"final_reps"`
}

type ChallengeLeaderboard struct {
	Challenge     *models.Challenge `json:"challenge"`
	Entries       []ChallengeEntry  `json:"entries"`
	IsValid       bool              `json:"is_valid"`
	HasEnded      bool              `json:"has_ended"`
	CurrentUserID uint              `json:"current_user_id"`
}

// Leaderboard ranks members by score, highest first. The score is the frozen
// final score once archived and the live agreed score before.
func (s *ChallengeService) Leaderboard(ctx context.Context, actor Actor, challengeID uint) (*ChallengeLeaderboard, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	c, err := s.get(db, challengeID)
	if err != nil {
		return nil, err
	}

	var members []models.ChallengeMember
	if err := db.Preload("User").Preload("Votes").
		Where("challenge_id = ?", c.ID).
		Order("id ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}

	entries := make([]ChallengeEntry, len(members))
	for i := range members {
		m := &members[i]
		votes := votesOf(m)
		entries[i] = ChallengeEntry{
			UserID:     m.UserID,
			Votes:      votes,
			VoteCount:  len(votes),
			AgreedReps: votes.AgreedScore(),
			FinalReps:  m.FinalReps,
		}
		if m.User != nil {
			entries[i].UserName = m.User.DisplayName()
			entries[i].UserAvatar = m.User.Avatar
		}
	}

	SortChallengeEntries(entries, c.Status == models.ChallengeStatusArchived)
	return &ChallengeLeaderboard{
		Challenge:     c,
		Entries:       entries,
		IsValid:       IsValidChallengeResult(entries),
		HasEnded:      c.HasEnded(s.clock.current()),
		CurrentUserID: actor.UserID,
	}, nil
}

// SortChallengeEntries orders by score descending with unscored members last.
// Equal scores keep their input order.
func SortChallengeEntries(entries []ChallengeEntry, archived bool) {
	score := func(e ChallengeEntry) *int {
		if archived {
			return e.FinalReps
		}
		return e.AgreedReps
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := score(entries[i]), score(entries[j])
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})
}

// IsValidChallengeResult reports whether enough members were scored.
func IsValidChallengeResult(entries []ChallengeEntry) bool {
	scored := 0
	for _, e := range entries {
		if e.VoteCount >= MinVotesForScore {
			scored++
		}
	}
	return scored >= MinScoredMembers
}

// Archive closes the challenge for good and freezes every member's final score.
func (s *ChallengeService) Archive(ctx context.Context, actor Actor, challengeID uint) (*models.Challenge, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var archived *models.Challenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.get(tx, challengeID)
		if err != nil {
			return err
		}

		now := s.clock.current().UTC()
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND status = ?", c.ID, models.ChallengeStatusActive).
			Updates(map[string]interface{}{
				"status":      models.ChallengeStatusArchived,
				"archived_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrChallengeArchived
		}

		var members []models.ChallengeMember
		if err := tx.Preload("Votes").Where("challenge_id = ?", c.ID).Find(&members).Error; err != nil {
			return err
		}
		for i := range members {
			final := votesOf(&members[i]).AgreedScore()
			if err := tx.Model(&models.ChallengeMember{}).
				Where("id = ?", members[i].ID).
				Update("final_reps", final).Error; err != nil {
				return err
			}
		}

		c.Status = models.ChallengeStatusArchived
		c.ArchivedAt = &now
		archived = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	uid := actor.UserID
	LogInfo("Challenges", "Archive", fmt.Sprintf("challenge %d (%s) archived", archived.ID, archived.Name), &uid, "", "", nil)
	s.activity.Publish(ActivityEvent{Type: ActivityChallengeArchived, ChallengeID: archived.ID})
	return archived, nil
}

// purgeChallenges deletes challenges with their members and votes.
func purgeChallenges(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var memberIDs []uint
	if err := tx.Model(&models.ChallengeMember{}).Where("challenge_id IN ?", ids).Pluck("id", &memberIDs).Error; err != nil {
		return err
	}
	if len(memberIDs) > 0 {
		if err := tx.Where("member_id IN ?", memberIDs).Delete(&models.ChallengeVote{}).Error; err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		if err := tx.Where("id IN ?", memberIDs).Delete(&models.ChallengeMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
	}
	return tx.Where("id IN ?", ids).Delete(&models.Challenge{}).Error
}
