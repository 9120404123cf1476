package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dailydues/backend/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func intPtr(v int) *int { return &v }

func TestVotes_SetIsMonotonic(t *testing.T) {
	v := Votes{}
	if err := v.Set(1, 20); err != nil {
		t.Fatal(err)
	}
	if err := v.Set(1, 25); err != nil {
		t.Errorf("raising a vote should succeed, got %v", err)
	}
	err := v.Set(1, 10)
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("lowering a vote should conflict, got %v", err)
	}
	if err == nil || err.Error() != "votes can only increase, current vote: 25" {
		t.Errorf("unexpected message: %v", err)
	}
	if v[1] != 25 {
		t.Errorf("vote = %d, expected 25", v[1])
	}
	if err := v.Set(1, 25); err != nil {
		t.Errorf("re-submitting the same vote should succeed, got %v", err)
	}
}

func TestVotes_AgreedScore(t *testing.T) {
	if (Votes{}).AgreedScore() != nil {
		t.Error("no votes should have no score")
	}
	if (Votes{7: 30}).AgreedScore() != nil {
		t.Error("a single vote should have no score")
	}
	got := Votes{7: 30, 8: 22, 9: 40}.AgreedScore()
	if got == nil || *got != 22 {
		t.Errorf("AgreedScore() = %v, expected 22", got)
	}
}

func TestSortChallengeEntries(t *testing.T) {
	entries := []ChallengeEntry{
		{UserID: 1, AgreedReps: nil},
		{UserID: 2, AgreedReps: intPtr(10)},
		{UserID: 3, AgreedReps: intPtr(30)},
		{UserID: 4, AgreedReps: nil},
		{UserID: 5, AgreedReps: intPtr(10)},
	}
	SortChallengeEntries(entries, false)

	want := []uint{3, 2, 5, 1, 4}
	for i, id := range want {
		if entries[i].UserID != id {
			t.Fatalf("position %d: got user %d, expected %d (order %v)", i, entries[i].UserID, id, entries)
		}
	}
}

func TestSortChallengeEntries_ArchivedUsesFinal(t *testing.T) {
	entries := []ChallengeEntry{
		{UserID: 1, AgreedReps: intPtr(50), FinalReps: intPtr(5)},
		{UserID: 2, AgreedReps: intPtr(1), FinalReps: intPtr(9)},
	}
	SortChallengeEntries(entries, true)
	if entries[0].UserID != 2 {
		t.Errorf("archived boards rank by final score, got %d first", entries[0].UserID)
	}
}

func TestIsValidChallengeResult(t *testing.T) {
	if IsValidChallengeResult([]ChallengeEntry{{VoteCount: 3}, {VoteCount: 1}}) {
		t.Error("one scored member is not a valid result")
	}
	if !IsValidChallengeResult([]ChallengeEntry{{VoteCount: 2}, {VoteCount: 2}, {VoteCount: 0}}) {
		t.Error("two scored members is a valid result")
	}
}

type challengeFixture struct {
	db        *gorm.DB
	svc       *ChallengeService
	admin     models.User
	users     []models.User
	challenge *models.Challenge
}

func newChallengeFixture(t *testing.T) *challengeFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &challengeFixture{db: db}
	f.admin = createUser(t, db, "admin", models.RoleAdmin)
	for _, name := range []string{"ann", "ben", "cat"} {
		f.users = append(f.users, createUser(t, db, name, models.RoleUser))
	}
	realm := createRealm(t, db, "gym")
	commitment := createCommitment(t, db, realm.ID, 50, 1, allWeek)

	f.svc = NewChallengeService(db, FixedClock(testNow), nil)
	c, err := f.svc.Create(context.Background(), actorOf(f.admin), &CreateChallengeRequest{
		RealmID:       realm.ID,
		CommitmentID:  commitment.ID,
		Name:          "Max pushups",
		DurationHours: 24,
		MaxUnits:      100,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.challenge = c
	for _, u := range f.users {
		if _, err := f.svc.Join(context.Background(), actorOf(u), c.ID); err != nil {
			t.Fatalf("Join(%s) error = %v", u.Username, err)
		}
	}
	return f
}

func (f *challengeFixture) vote(voter, target models.User, reps int) error {
	_, err := f.svc.Vote(context.Background(), actorOf(voter), f.challenge.ID, &VoteRequest{TargetUserID: target.ID, Reps: reps})
	return err
}

func TestChallenge_CreateValidation(t *testing.T) {
	f := newChallengeFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, actorOf(f.users[0]), &CreateChallengeRequest{Name: "x", DurationHours: 1, MaxUnits: 1}); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("expected ErrAdminRequired, got %v", err)
	}
	if _, err := f.svc.Create(ctx, actorOf(f.admin), &CreateChallengeRequest{
		RealmID: f.challenge.RealmID, CommitmentID: f.challenge.CommitmentID, Name: "x", DurationHours: 0, MaxUnits: 1,
	}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for zero duration, got %v", err)
	}
	if !f.challenge.EndsAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("EndsAt = %v, expected start + 24h", f.challenge.EndsAt)
	}
}

func TestChallenge_JoinTwiceConflicts(t *testing.T) {
	f := newChallengeFixture(t)
	_, err := f.svc.Join(context.Background(), actorOf(f.users[0]), f.challenge.ID)
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestChallenge_VoteRules(t *testing.T) {
	f := newChallengeFixture(t)
	ann, ben := f.users[0], f.users[1]
	outsider := createUser(t, f.db, "dan", models.RoleUser)

	if err := f.vote(ann, ann, 10); !errors.Is(err, ErrSelfVote) {
		t.Errorf("self vote: expected ErrSelfVote, got %v", err)
	}
	if err := f.vote(ann, ben, -1); !errors.Is(err, ErrValidation) {
		t.Errorf("negative: expected validation, got %v", err)
	}
	if err := f.vote(ann, ben, 101); !errors.Is(err, ErrValidation) {
		t.Errorf("above max: expected validation, got %v", err)
	}
	if err := f.vote(outsider, ben, 10); KindOf(err) != KindNotAuthorized {
		t.Errorf("non-member voter: expected not_authorized, got %v", err)
	}
	if err := f.vote(ann, outsider, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-member target: expected not found, got %v", err)
	}

	if err := f.vote(ann, ben, 40); err != nil {
		t.Fatalf("vote error = %v", err)
	}
	if err := f.vote(ann, ben, 45); err != nil {
		t.Errorf("raising a vote should succeed, got %v", err)
	}
	if err := f.vote(ann, ben, 45); err != nil {
		t.Errorf("repeating a vote should succeed, got %v", err)
	}
	err := f.vote(ann, ben, 30)
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("lowering a vote should conflict, got %v", err)
	}

	var stored models.ChallengeVote
	if err := f.db.Where("voter_id = ?", ann.ID).First(&stored).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Reps != 45 {
		t.Errorf("stored reps = %d, expected 45", stored.Reps)
	}
}

func TestChallenge_LeaderboardAgreementAndArchive(t *testing.T) {
	f := newChallengeFixture(t)
	ctx := context.Background()
	ann, ben, cat := f.users[0], f.users[1], f.users[2]

	// ben is scored by two voters, cat by one
	for _, v := range []struct {
		voter, target models.User
		reps          int
	}{
		{ann, ben, 40},
		{cat, ben, 35},
		{ann, cat, 60},
	} {
		if err := f.vote(v.voter, v.target, v.reps); err != nil {
			t.Fatalf("vote error = %v", err)
		}
	}

	board, err := f.svc.Leaderboard(ctx, actorOf(ann), f.challenge.ID)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if board.Entries[0].UserID != ben.ID {
		t.Fatalf("ben should lead, got user %d", board.Entries[0].UserID)
	}
	if got := board.Entries[0].AgreedReps; got == nil || *got != 35 {
		t.Errorf("agreed reps = %v, expected 35", got)
	}
	for _, e := range board.Entries[1:] {
		if e.AgreedReps != nil {
			t.Errorf("user %d has %d votes and should be unscored", e.UserID, e.VoteCount)
		}
	}
	if board.IsValid {
		t.Error("only one scored member, result should be invalid")
	}

	if err := f.vote(ben, cat, 55); err != nil {
		t.Fatal(err)
	}

	archived, err := f.svc.Archive(ctx, actorOf(f.admin), f.challenge.ID)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if archived.Status != models.ChallengeStatusArchived || archived.ArchivedAt == nil {
		t.Fatalf("unexpected archived challenge: %+v", archived)
	}
	if !archived.ArchivedAt.Equal(testNow) {
		t.Errorf("ArchivedAt = %v, expected the service clock %v", archived.ArchivedAt, testNow)
	}
	if _, err := f.svc.Archive(ctx, actorOf(f.admin), f.challenge.ID); !errors.Is(err, ErrChallengeArchived) {
		t.Errorf("second archive: expected ErrChallengeArchived, got %v", err)
	}
	if err := f.vote(ann, ben, 50); !errors.Is(err, ErrChallengeInactive) {
		t.Errorf("vote after archive: expected ErrChallengeInactive, got %v", err)
	}

	board, err = f.svc.Leaderboard(ctx, actorOf(ann), f.challenge.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !board.IsValid {
		t.Error("two scored members should be a valid result")
	}
	if board.Entries[0].UserID != cat.ID || *board.Entries[0].FinalReps != 55 {
		t.Errorf("cat should lead with 55, got user %d", board.Entries[0].UserID)
	}
	last := board.Entries[len(board.Entries)-1]
	if last.UserID != ann.ID || last.FinalReps != nil {
		t.Errorf("unscored ann should be last with no final score, got user %d", last.UserID)
	}
}

func TestChallenge_EndedChallengeRejectsActivity(t *testing.T) {
	f := newChallengeFixture(t)
	later := NewChallengeService(f.db, FixedClock(testNow.Add(25*time.Hour)), nil)

	late := createUser(t, f.db, "late", models.RoleUser)
	if _, err := later.Join(context.Background(), actorOf(late), f.challenge.ID); !errors.Is(err, ErrChallengeEnded) {
		t.Errorf("join after end: expected ErrChallengeEnded, got %v", err)
	}
	_, err := later.Vote(context.Background(), actorOf(f.users[0]), f.challenge.ID, &VoteRequest{TargetUserID: f.users[1].ID, Reps: 5})
	if !errors.Is(err, ErrChallengeEnded) {
		t.Errorf("vote after end: expected ErrChallengeEnded, got %v", err)
	}

	list, err := later.List(context.Background(), actorOf(f.users[0]), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !list[0].HasEnded || !list[0].IsMember || list[0].MemberCount != 3 {
		t.Errorf("unexpected summary: %+v", list)
	}
}

func TestVoteWrites_MySQLDialect(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "dues:dues@tcp(127.0.0.1:3306)/dues?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open dry-run mysql: %v", err)
	}

	insert := insertVote(db, &models.ChallengeVote{MemberID: 1, VoterID: 2, Reps: 30}).Statement.SQL.String()
	if !strings.Contains(insert, "ON DUPLICATE KEY UPDATE") {
		t.Errorf("insert should use the mysql conflict form: %s", insert)
	}

	raise := raiseVote(db, 1, 2, 30, testNow).Statement.SQL.String()
	if !strings.HasPrefix(raise, "UPDATE `challenge_votes` SET") || !strings.Contains(raise, "reps <= ?") {
		t.Errorf("raise should be a guarded update: %s", raise)
	}

	for _, sql := range []string{insert, raise} {
		if strings.Contains(sql, "excluded") {
			t.Errorf("statement is not valid mysql: %s", sql)
		}
	}
}

func TestChallenge_FirstVoteRaceFallsBackToGuardedUpdate(t *testing.T) {
	f := newChallengeFixture(t)
	ann, ben := f.users[0], f.users[1]

	var member models.ChallengeMember
	if err := f.db.Where("challenge_id = ? AND user_id = ?", f.challenge.ID, ben.ID).First(&member).Error; err != nil {
		t.Fatal(err)
	}

	// another request from the same voter inserts its vote right before ours
	fired := false
	err := f.db.Callback().Create().Before("gorm:create").Register("vote_race", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "challenge_votes" {
			return
		}
		fired = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO challenge_votes (member_id, voter_id, reps, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			member.ID, ann.ID, 20, testNow, testNow)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.vote(ann, ben, 30); err != nil {
		t.Fatalf("vote error = %v", err)
	}
	var stored models.ChallengeVote
	if err := f.db.Where("member_id = ? AND voter_id = ?", member.ID, ann.ID).First(&stored).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Reps != 30 {
		t.Errorf("stored reps = %d, expected 30", stored.Reps)
	}

	// the racing vote was higher: ours must not lower it
	if err := f.db.Model(&stored).Update("reps", 60).Error; err != nil {
		t.Fatal(err)
	}
	if err := f.vote(ann, ben, 40); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected conflict against the higher stored vote, got %v", err)
	}
}
