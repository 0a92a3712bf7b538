package models

import (
	"time"
)

// Question is a multiple-choice question posed by the moderator.
// ID is assigned by the session coordinator and never reused.
type Question struct {
	ID              int64     `json:"id"`
	Text            string    `json:"text"`
	Options         []string  `json:"options"`
	CreatedAt       time.Time `json:"createdAt"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// Clone returns a deep copy so snapshots never share the options slice.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	c := *q
	c.Options = append([]string(nil), q.Options...)
	return &c
}

// Response is a participant's recorded choice for the active question.
type Response struct {
	DisplayName string    `json:"displayName"`
	OptionIndex int       `json:"optionIndex"`
	AnsweredAt  time.Time `json:"answeredAt"`
}

// AggregateResult holds per-option counts and percentages, index-aligned with Question.Options.
type AggregateResult struct {
	Counts      []int `json:"counts"`
	Percentages []int `json:"percentages"`
	Total       int   `json:"total"`
}

// HistoryRecord is the immutable archive entry for a closed question.
type HistoryRecord struct {
	Question  Question            `json:"question"`
	Aggregate AggregateResult     `json:"aggregate"`
	Responses map[string]Response `json:"responses"`
	ClosedAt  time.Time           `json:"closedAt"`
}
