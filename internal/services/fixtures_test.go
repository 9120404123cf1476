package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 2025-03-12 is a Wednesday.
var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

var allWeek = datatypes.JSONSlice[int]{0, 1, 2, 3, 4, 5, 6}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, username, role string) models.User {
	t.Helper()
	hash, err := utils.HashPassword("secret1")
	if err != nil {
		t.Fatal(err)
	}
	u := models.User{Username: username, Password: hash, Role: role, AuthType: AuthTypeLocal, IsActive: true}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func createRealm(t *testing.T, db *gorm.DB, slug string) models.Realm {
	t.Helper()
	r := models.Realm{Name: slug, Slug: slug}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("create realm: %v", err)
	}
	return r
}

func createCommitment(t *testing.T, db *gorm.DB, realmID uint, target int, multiplier float64, days datatypes.JSONSlice[int]) models.Commitment {
	t.Helper()
	c := models.Commitment{
		RealmID:              realmID,
		Name:                 "Pushups",
		DailyTarget:          target,
		Unit:                 "reps",
		ActiveDays:           days,
		PunishmentMultiplier: multiplier,
		IsActive:             true,
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	return c
}

func assign(t *testing.T, db *gorm.DB, userID, commitmentID uint) models.UserCommitment {
	t.Helper()
	uc := models.UserCommitment{UserID: userID, CommitmentID: commitmentID}
	if err := db.Create(&uc).Error; err != nil {
		t.Fatalf("assign commitment: %v", err)
	}
	return uc
}

func loadAggregate(t *testing.T, db *gorm.DB, userID, commitmentID uint) models.UserCommitment {
	t.Helper()
	var uc models.UserCommitment
	if err := db.Where("user_id = ? AND commitment_id = ?", userID, commitmentID).First(&uc).Error; err != nil {
		t.Fatalf("load aggregate: %v", err)
	}
	return uc
}

func actorOf(u models.User) Actor {
	return Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) events() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Event
	}
	return out
}

func (n *recordingNotifier) count(e EventType) int {
	c := 0
	for _, got := range n.events() {
		if got == e {
			c++
		}
	}
	return c
}

// seedChallenge stores a challenge on commitmentID with one member holding one vote.
func seedChallenge(t *testing.T, db *gorm.DB, realmID, commitmentID, userID uint) models.Challenge {
	t.Helper()
	ch := models.Challenge{
		RealmID: realmID, CommitmentID: commitmentID, Name: "Sprint", DurationHours: 24, MaxUnits: 100,
		Status: models.ChallengeStatusActive, StartsAt: testNow, EndsAt: testNow.Add(24 * time.Hour), CreatedBy: userID,
	}
	if err := db.Create(&ch).Error; err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	member := models.ChallengeMember{ChallengeID: ch.ID, UserID: userID}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("create challenge member: %v", err)
	}
	if err := db.Create(&models.ChallengeVote{MemberID: member.ID, VoterID: userID, Reps: 10}).Error; err != nil {
		t.Fatalf("create vote: %v", err)
	}
	return ch
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
