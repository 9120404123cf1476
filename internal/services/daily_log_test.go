package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dailydues/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type dailyLogFixture struct {
	db         *gorm.DB
	svc        *DailyLogService
	notifier   *recordingNotifier
	admin      models.User
	user       models.User
	realm      models.Realm
	commitment models.Commitment
}

func newDailyLogFixture(t *testing.T, multiplier float64) *dailyLogFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &dailyLogFixture{db: db, notifier: &recordingNotifier{}}
	f.admin = createUser(t, db, "admin", models.RoleAdmin)
	f.user = createUser(t, db, "alice", models.RoleUser)
	f.realm = createRealm(t, db, "team")
	f.commitment = createCommitment(t, db, f.realm.ID, 50, multiplier, allWeek)
	assign(t, db, f.user.ID, f.commitment.ID)

	clock := FixedClock(testNow)
	holidays := NewHolidayService(db, clock, NewNationalCalendar())
	f.svc = NewDailyLogService(db, clock, holidays, f.notifier, nil)
	return f
}

func (f *dailyLogFixture) submit(t *testing.T, date string, amount int) *models.DailyLog {
	t.Helper()
	log, err := f.svc.LogProgress(context.Background(), actorOf(f.user), &LogProgressRequest{
		CommitmentID:    f.commitment.ID,
		Date:            date,
		CompletedAmount: amount,
	})
	if err != nil {
		t.Fatalf("LogProgress(%s, %d) error = %v", date, amount, err)
	}
	return log
}

func (f *dailyLogFixture) approve(t *testing.T, id uint) *ReviewResult {
	t.Helper()
	r, err := f.svc.Approve(context.Background(), actorOf(f.admin), id)
	if err != nil {
		t.Fatalf("Approve(%d) error = %v", id, err)
	}
	return r
}

func TestDailyLog_FullCompletionExtendsStreak(t *testing.T) {
	f := newDailyLogFixture(t, 1.5)

	log := f.submit(t, "2025-03-10", 50)
	if log.Status != models.LogStatusPending {
		t.Errorf("status = %q, expected pending", log.Status)
	}
	if log.TargetAmount != 50 || log.CarryOverFromPrevious != 0 {
		t.Errorf("snapshot = %d+%d, expected 50+0", log.TargetAmount, log.CarryOverFromPrevious)
	}

	r := f.approve(t, log.ID)
	if !r.Approval.FullCompletion {
		t.Error("expected full completion")
	}

	agg := loadAggregate(t, f.db, f.user.ID, f.commitment.ID)
	if agg.CurrentStreak != 1 || agg.BestStreak != 1 {
		t.Errorf("streak = %d/%d, expected 1/1", agg.CurrentStreak, agg.BestStreak)
	}
	if agg.TotalCompleted != 50 || agg.PendingCarryOver != 0 {
		t.Errorf("total=%d carry=%d, expected 50/0", agg.TotalCompleted, agg.PendingCarryOver)
	}
	if f.notifier.count(EventCommitmentApproved) != 1 {
		t.Errorf("expected one approval notification, got %v", f.notifier.events())
	}
}

func TestDailyLog_PartialCompletionCarriesDebtIntoNextLog(t *testing.T) {
	f := newDailyLogFixture(t, 1.5)

	first := f.submit(t, "2025-03-10", 30)
	f.approve(t, first.ID)

	agg := loadAggregate(t, f.db, f.user.ID, f.commitment.ID)
	if agg.CurrentStreak != 0 {
		t.Errorf("streak = %d, expected 0", agg.CurrentStreak)
	}
	if agg.PendingCarryOver != 30 {
		t.Fatalf("carry over = %d, expected 30", agg.PendingCarryOver)
	}

	// the next day owes target plus debt, and nothing beyond it
	_, err := f.svc.LogProgress(context.Background(), actorOf(f.user), &LogProgressRequest{
		CommitmentID: f.commitment.ID, Date: "2025-03-11", CompletedAmount: 81,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error above max, got %v", err)
	}

	second := f.submit(t, "2025-03-11", 80)
	if second.TargetAmount != 50 || second.CarryOverFromPrevious != 30 {
		t.Errorf("snapshot = %d+%d, expected 50+30", second.TargetAmount, second.CarryOverFromPrevious)
	}
	r := f.approve(t, second.ID)
	if !r.Approval.FullCompletion {
		t.Error("paying off the debt should be a full completion")
	}

	agg = loadAggregate(t, f.db, f.user.ID, f.commitment.ID)
	if agg.CurrentStreak != 1 || agg.PendingCarryOver != 0 || agg.TotalCompleted != 110 {
		t.Errorf("agg = streak %d carry %d total %d, expected 1/0/110",
			agg.CurrentStreak, agg.PendingCarryOver, agg.TotalCompleted)
	}
}

func TestDailyLog_RejectLeavesAggregatesAndIsFinal(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	ctx := context.Background()

	log := f.submit(t, "2025-03-10", 10)
	if _, err := f.svc.Reject(ctx, actorOf(f.admin), log.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	if _, err := f.svc.Reject(ctx, actorOf(f.admin), log.ID); !errors.Is(err, ErrLogAlreadyProcessed) {
		t.Errorf("second reject: expected ErrLogAlreadyProcessed, got %v", err)
	}
	if _, err := f.svc.Approve(ctx, actorOf(f.admin), log.ID); !errors.Is(err, ErrLogAlreadyProcessed) {
		t.Errorf("approve after reject: expected ErrLogAlreadyProcessed, got %v", err)
	}

	agg := loadAggregate(t, f.db, f.user.ID, f.commitment.ID)
	if agg.TotalCompleted != 0 || agg.CurrentStreak != 0 || agg.PendingCarryOver != 0 {
		t.Errorf("reject should not touch aggregates: %+v", agg)
	}
	if f.notifier.count(EventCommitmentRejected) != 1 {
		t.Errorf("expected one rejection notification, got %v", f.notifier.events())
	}
}

func TestDailyLog_RejectedLogCanBeResubmitted(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	ctx := context.Background()

	log := f.submit(t, "2025-03-10", 10)
	if _, err := f.svc.Reject(ctx, actorOf(f.admin), log.ID); err != nil {
		t.Fatal(err)
	}

	id := log.ID
	updated, err := f.svc.LogProgress(ctx, actorOf(f.user), &LogProgressRequest{
		LogID: &id, CommitmentID: f.commitment.ID, Date: "2025-03-10", CompletedAmount: 50,
	})
	if err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	if updated.Status != models.LogStatusPending || updated.ReviewedAt != nil {
		t.Errorf("resubmitted log should be pending and unreviewed, got %q", updated.Status)
	}
	f.approve(t, id)
}

func TestDailyLog_ConcurrentApprovalAppliesOnce(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	log := f.submit(t, "2025-03-10", 50)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(context.Background(), actorOf(f.admin), log.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrLogAlreadyProcessed):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one successful approval, got %d", wins)
	}

	agg := loadAggregate(t, f.db, f.user.ID, f.commitment.ID)
	if agg.TotalCompleted != 50 || agg.CurrentStreak != 1 {
		t.Errorf("aggregates applied more than once: %+v", agg)
	}
}

func TestDailyLog_UpdateKeepsSnapshot(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	ctx := context.Background()

	log := f.submit(t, "2025-03-10", 20)

	// debt appearing after creation must not change the log's total due
	if err := f.db.Model(&models.UserCommitment{}).
		Where("user_id = ? AND commitment_id = ?", f.user.ID, f.commitment.ID).
		Update("pending_carry_over", 25).Error; err != nil {
		t.Fatal(err)
	}
	if err := f.db.Model(&models.Commitment{}).Where("id = ?", f.commitment.ID).
		Update("daily_target", 100).Error; err != nil {
		t.Fatal(err)
	}

	updated, err := f.svc.Update(ctx, actorOf(f.user), log.ID, &LogProgressRequest{CompletedAmount: 50})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.TargetAmount != 50 || updated.CarryOverFromPrevious != 0 {
		t.Errorf("snapshot changed to %d+%d", updated.TargetAmount, updated.CarryOverFromPrevious)
	}

	if _, err := f.svc.Update(ctx, actorOf(f.user), log.ID, &LogProgressRequest{CompletedAmount: 51}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation above snapshot total, got %v", err)
	}

	f.approve(t, log.ID)
	if _, err := f.svc.Update(ctx, actorOf(f.user), log.ID, &LogProgressRequest{CompletedAmount: 10}); !errors.Is(err, ErrLogApproved) {
		t.Errorf("expected ErrLogApproved, got %v", err)
	}
}

func TestDailyLog_UpdateOtherUsersLogForbidden(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	log := f.submit(t, "2025-03-10", 20)
	bob := createUser(t, f.db, "bob", models.RoleUser)

	_, err := f.svc.Update(context.Background(), actorOf(bob), log.ID, &LogProgressRequest{CompletedAmount: 30})
	if KindOf(err) != KindNotAuthorized {
		t.Errorf("expected not_authorized, got %v", err)
	}
}

func TestDailyLog_CreateRules(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	ctx := context.Background()
	f.submit(t, "2025-03-10", 20)

	tests := []struct {
		name  string
		actor Actor
		req   LogProgressRequest
		want  error
	}{
		{"anonymous", Actor{}, LogProgressRequest{CommitmentID: f.commitment.ID, Date: "2025-03-11"}, ErrNotAuthenticated},
		{"duplicate", actorOf(f.user), LogProgressRequest{CommitmentID: f.commitment.ID, Date: "2025-03-10"}, ErrLogExists},
		{"future", actorOf(f.user), LogProgressRequest{CommitmentID: f.commitment.ID, Date: "2025-03-13"}, ErrValidation},
		{"negative", actorOf(f.user), LogProgressRequest{CommitmentID: f.commitment.ID, Date: "2025-03-11", CompletedAmount: -1}, ErrValidation},
		{"bad date", actorOf(f.user), LogProgressRequest{CommitmentID: f.commitment.ID, Date: "yesterday"}, ErrValidation},
		{"unassigned", actorOf(f.admin), LogProgressRequest{CommitmentID: f.commitment.ID, Date: "2025-03-11"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.svc.Create(ctx, tt.actor, &req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDailyLog_InactiveDayAndHolidayRejected(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	ctx := context.Background()

	weekdays := createCommitment(t, f.db, f.realm.ID, 10, 1, datatypes.JSONSlice[int]{1, 2, 3, 4, 5})
	assign(t, f.db, f.user.ID, weekdays.ID)

	// 2025-03-09 is a Sunday
	_, err := f.svc.Create(ctx, actorOf(f.user), &LogProgressRequest{CommitmentID: weekdays.ID, Date: "2025-03-09"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("inactive day: expected validation error, got %v", err)
	}

	if err := f.db.Create(&models.Holiday{RealmID: f.realm.ID, Date: "2025-03-11", Description: "Team offsite"}).Error; err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Create(ctx, actorOf(f.user), &LogProgressRequest{CommitmentID: f.commitment.ID, Date: "2025-03-11"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("holiday: expected validation error, got %v", err)
	}
}

func TestDailyLog_ReviewRequiresAdmin(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	log := f.submit(t, "2025-03-10", 20)

	if _, err := f.svc.Approve(context.Background(), actorOf(f.user), log.ID); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("expected ErrAdminRequired, got %v", err)
	}
	if _, err := f.svc.Approve(context.Background(), actorOf(f.admin), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDailyLog_StreakMilestoneNotifies(t *testing.T) {
	f := newDailyLogFixture(t, 1)
	f.svc.WithMilestones([]int{2})

	f.approve(t, f.submit(t, "2025-03-10", 50).ID)
	if f.notifier.count(EventStreakMilestone) != 0 {
		t.Fatal("streak of 1 should not notify")
	}
	f.approve(t, f.submit(t, "2025-03-11", 50).ID)
	if f.notifier.count(EventStreakMilestone) != 1 {
		t.Errorf("expected a milestone notification, got %v", f.notifier.events())
	}
}

func TestDailyLog_ListDueShowsDebt(t *testing.T) {
	f := newDailyLogFixture(t, 2)
	ctx := context.Background()

	f.approve(t, f.submit(t, "2025-03-10", 40).ID)

	items, err := f.svc.ListDue(ctx, actorOf(f.user), "")
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].PendingCarryOver != 20 || items[0].TotalDue != 70 {
		t.Errorf("due = %d (+%d), expected 70 (+20)", items[0].TotalDue, items[0].PendingCarryOver)
	}
	if !items[0].IsActiveDay || items[0].Log != nil {
		t.Errorf("today should be active and unlogged: %+v", items[0])
	}

	pending, err := f.svc.ListPending(ctx, actorOf(f.admin), &PendingLogQuery{RealmID: f.realm.ID})
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending logs, got %d", len(pending))
	}
}

func TestDailyLog_ApprovalUsesAmountCommittedBeforeTheStatusWrite(t *testing.T) {
	f := newDailyLogFixture(t, 2)
	log := f.submit(t, "2025-03-10", 10)

	// the owner's edit lands while the admin's approval is in flight
	fired := false
	err := f.db.Callback().Update().Before("gorm:update").Register("edit_during_review", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "daily_logs" {
			return
		}
		fired = true
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE daily_logs SET completed_amount = ? WHERE id = ?", 50, log.ID)
	})
	if err != nil {
		t.Fatal(err)
	}

	r := f.approve(t, log.ID)
	if !fired {
		t.Fatal("edit never ran")
	}
	if r.Log.CompletedAmount != 50 || !r.Approval.FullCompletion {
		t.Errorf("approval used a stale amount: completed=%d full=%v", r.Log.CompletedAmount, r.Approval.FullCompletion)
	}
	if r.Log.ReviewedAt == nil || !r.Log.ReviewedAt.Equal(testNow) {
		t.Errorf("ReviewedAt = %v, expected the service clock %v", r.Log.ReviewedAt, testNow)
	}

	agg := loadAggregate(t, f.db, f.user.ID, f.commitment.ID)
	if agg.TotalCompleted != 50 || agg.CurrentStreak != 1 || agg.PendingCarryOver != 0 {
		t.Errorf("agg = total %d streak %d carry %d, expected 50/1/0",
			agg.TotalCompleted, agg.CurrentStreak, agg.PendingCarryOver)
	}
}
