package session

import (
	"math"
	"time"

	"github.com/aura-classroom/livepoll/internal/models"
)

// RemainingTime returns the whole seconds left on q at now, rounded and floored at zero.
func RemainingTime(q *models.Question, now time.Time) int {
	if q == nil {
		return 0
	}
	elapsed := now.Sub(q.CreatedAt).Seconds()
	remaining := math.Round(q.DurationSeconds - elapsed)
	if !(remaining > 0) {
		return 0
	}
	if remaining >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(remaining)
}

// CanAskNewQuestion reports whether the active question has resolved: none is active,
// its time is up, or every registered participant has answered. With no participants
// registered only the timer can resolve a question.
func CanAskNewQuestion(active *models.Question, responseCount, participantCount int, now time.Time) bool {
	if active == nil {
		return true
	}
	if RemainingTime(active, now) == 0 {
		return true
	}
	return participantCount > 0 && responseCount == participantCount
}
