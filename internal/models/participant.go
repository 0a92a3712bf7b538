package models

import (
	"time"
)

// Participant is a connected respondent. ID is the transport connection id.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// Snapshot is the full session state published on every mutation and tick.
type Snapshot struct {
	ActiveQuestion    *Question           `json:"activeQuestion"`
	Responses         map[string]Response `json:"responses"`
	Participants      []Participant       `json:"participants"`
	RemainingTime     int                 `json:"remainingTime"`
	CanAskNewQuestion bool                `json:"canAskNewQuestion"`
	Aggregate         *AggregateResult    `json:"aggregate"`
}

// QuestionNotice is the payload of new_question and answer_accepted.
type QuestionNotice struct {
	ActiveQuestion *Question `json:"activeQuestion"`
	RemainingTime  int       `json:"remainingTime"`
}

// ChatMessage is relayed to every connection with a server-assigned timestamp (unix ms).
type ChatMessage struct {
	From      string `json:"from"`
	Role      string `json:"role"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
