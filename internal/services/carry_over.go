package services

import (
	"math"

	"github.com/dailydues/backend/internal/models"
)

// MaxCarryOver bounds the debt a single approval can leave behind.
const MaxCarryOver = math.MaxInt32

// CalculateCarryOver turns a missed amount into the debt owed on the next due day.
// Halves round up: 7 missed at 1.5 owes 11. The result is clamped to [0, MaxCarryOver].
func CalculateCarryOver(missed int, multiplier float64) int {
	if missed <= 0 || !(multiplier > 0) {
		return 0
	}
	debt := math.Floor(float64(missed)*multiplier + 0.5)
	if debt >= MaxCarryOver {
		return MaxCarryOver
	}
	return int(debt)
}

// ApprovalResult describes what an approval did to the aggregates.
type ApprovalResult struct {
	FullCompletion bool `json:"full_completion"`
	Missed         int  `json:"missed"`
	NewCarryOver   int  `json:"new_carry_over"`
	CurrentStreak  int  `json:"current_streak"`
	BestStreak     int  `json:"best_streak"`
}

// applyApproval is the only place aggregates change on approval.
// It mutates agg in place from the log's snapshot values.
func applyApproval(agg *models.UserCommitment, log *models.DailyLog, multiplier float64) ApprovalResult {
	totalDue := log.TotalDue()
	missed := totalDue - log.CompletedAmount
	if missed < 0 {
		missed = 0
	}

	agg.TotalCompleted += log.CompletedAmount

	result := ApprovalResult{Missed: missed}
	if log.CompletedAmount >= totalDue {
		result.FullCompletion = true
		agg.CurrentStreak++
		if agg.CurrentStreak > agg.BestStreak {
			agg.BestStreak = agg.CurrentStreak
		}
		agg.PendingCarryOver = 0
	} else {
		agg.CurrentStreak = 0
		agg.PendingCarryOver = CalculateCarryOver(missed, multiplier)
	}

	result.NewCarryOver = agg.PendingCarryOver
	result.CurrentStreak = agg.CurrentStreak
	result.BestStreak = agg.BestStreak
	return result
}
