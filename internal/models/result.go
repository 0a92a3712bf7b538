package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionResult is an exported HistoryRecord as stored in question_results.
type QuestionResult struct {
	ID           uuid.UUID           `json:"id"`
	QuestionID   int64               `json:"questionId"`
	QuestionText string              `json:"questionText"`
	Options      []string            `json:"options"`
	Counts       []int               `json:"counts"`
	Percentages  []int               `json:"percentages"`
	Total        int                 `json:"total"`
	Responses    map[string]Response `json:"responses"`
	AskedAt      time.Time           `json:"askedAt"`
	ClosedAt     time.Time           `json:"closedAt"`
	S3Key        string              `json:"s3Key,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// NewQuestionResult flattens an archive entry into an export row.
func NewQuestionResult(id uuid.UUID, rec HistoryRecord) *QuestionResult {
	responses := rec.Responses
	if responses == nil {
		responses = map[string]Response{}
	}
	return &QuestionResult{
		ID:           id,
		QuestionID:   rec.Question.ID,
		QuestionText: rec.Question.Text,
		Options:      rec.Question.Options,
		Counts:       rec.Aggregate.Counts,
		Percentages:  rec.Aggregate.Percentages,
		Total:        rec.Aggregate.Total,
		Responses:    responses,
		AskedAt:      rec.Question.CreatedAt,
		ClosedAt:     rec.ClosedAt,
	}
}
