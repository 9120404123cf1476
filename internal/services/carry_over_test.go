package services

import (
	"math"
	"testing"

	"github.com/dailydues/backend/internal/models"
)

func TestCalculateCarryOver(t *testing.T) {
	tests := []struct {
		missed     int
		multiplier float64
		want       int
	}{
		{0, 2, 0},
		{-5, 2, 0},
		{10, 1, 10},
		{20, 1.5, 30},
		{7, 1.5, 11},
		{5, 1.5, 8},
		{3, 1.25, 4},
		{1, 1.2, 1},
		{1, 1e19, MaxCarryOver},
		{math.MaxInt32, 10, MaxCarryOver},
		{10, math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := CalculateCarryOver(tt.missed, tt.multiplier); got != tt.want {
			t.Errorf("CalculateCarryOver(%d, %v) = %d, expected %d", tt.missed, tt.multiplier, got, tt.want)
		}
	}
}

func TestApplyApproval_FullCompletionClearsDebt(t *testing.T) {
	agg := &models.UserCommitment{CurrentStreak: 4, BestStreak: 4, TotalCompleted: 200, PendingCarryOver: 15}
	log := &models.DailyLog{TargetAmount: 50, CarryOverFromPrevious: 15, CompletedAmount: 65}

	r := applyApproval(agg, log, 1.5)

	if !r.FullCompletion {
		t.Error("expected full completion")
	}
	if agg.CurrentStreak != 5 || agg.BestStreak != 5 {
		t.Errorf("streak = %d/%d, expected 5/5", agg.CurrentStreak, agg.BestStreak)
	}
	if agg.PendingCarryOver != 0 {
		t.Errorf("carry over = %d, expected 0", agg.PendingCarryOver)
	}
	if agg.TotalCompleted != 265 {
		t.Errorf("total = %d, expected 265", agg.TotalCompleted)
	}
}

func TestApplyApproval_PartialResetsStreakKeepsBest(t *testing.T) {
	agg := &models.UserCommitment{CurrentStreak: 9, BestStreak: 12, TotalCompleted: 100}
	log := &models.DailyLog{TargetAmount: 50, CompletedAmount: 30}

	r := applyApproval(agg, log, 1.5)

	if r.FullCompletion {
		t.Error("expected partial completion")
	}
	if r.Missed != 20 {
		t.Errorf("missed = %d, expected 20", r.Missed)
	}
	if agg.CurrentStreak != 0 || agg.BestStreak != 12 {
		t.Errorf("streak = %d/%d, expected 0/12", agg.CurrentStreak, agg.BestStreak)
	}
	if agg.PendingCarryOver != 30 || r.NewCarryOver != 30 {
		t.Errorf("carry over = %d, expected 30", agg.PendingCarryOver)
	}
	if agg.TotalCompleted != 130 {
		t.Errorf("total = %d, expected 130", agg.TotalCompleted)
	}
}

func TestApplyApproval_PartialReplacesOldDebt(t *testing.T) {
	agg := &models.UserCommitment{PendingCarryOver: 40}
	log := &models.DailyLog{TargetAmount: 50, CarryOverFromPrevious: 40, CompletedAmount: 80}

	applyApproval(agg, log, 1)

	if agg.PendingCarryOver != 10 {
		t.Errorf("carry over = %d, expected 10", agg.PendingCarryOver)
	}
}

func TestApplyApproval_ZeroCompletedIsAMiss(t *testing.T) {
	agg := &models.UserCommitment{CurrentStreak: 3, BestStreak: 3}
	log := &models.DailyLog{TargetAmount: 10, CompletedAmount: 0}

	r := applyApproval(agg, log, 2)

	if r.FullCompletion || agg.CurrentStreak != 0 {
		t.Error("zero completed should break the streak")
	}
	if agg.PendingCarryOver != 20 {
		t.Errorf("carry over = %d, expected 20", agg.PendingCarryOver)
	}
}

func TestApplyApproval_HugeMultiplierNeverGoesNegative(t *testing.T) {
	agg := &models.UserCommitment{}
	log := &models.DailyLog{TargetAmount: 10, CompletedAmount: 9}

	applyApproval(agg, log, 1e19)

	if agg.PendingCarryOver != MaxCarryOver {
		t.Errorf("carry over = %d, expected %d", agg.PendingCarryOver, MaxCarryOver)
	}
}
