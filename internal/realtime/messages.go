package realtime

import (
	"encoding/json"
	"errors"
	"math"
)

// Inbound event names.
const (
	EventRegisterParticipant = "register_participant"
	EventAskNewQuestion      = "ask_new_question"
	EventSubmitResponse      = "submit_response"
	EventRemoveParticipant   = "remove_participant"
	EventRequestHistory      = "request_history"
	EventChatMessage         = "chat_message"
)

var errMalformedPayload = errors.New("malformed message payload")

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterParticipantPayload is the body of register_participant.
type RegisterParticipantPayload struct {
	Name string `json:"name"`
}

// AskNewQuestionPayload is the body of ask_new_question. DurationSeconds is kept
// raw so a value of the wrong type selects the default instead of failing the payload.
type AskNewQuestionPayload struct {
	Text            string          `json:"text"`
	Options         []string        `json:"options"`
	DurationSeconds json.RawMessage `json:"durationSeconds,omitempty"`
}

// Duration returns the requested duration, or 0 to select the default.
func (p AskNewQuestionPayload) Duration() float64 {
	if len(p.DurationSeconds) == 0 || string(p.DurationSeconds) == "null" {
		return 0
	}
	var f float64
	if err := json.Unmarshal(p.DurationSeconds, &f); err != nil {
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return f
}

// SubmitResponsePayload is the body of submit_response. OptionIndex is kept raw
// so a non-numeric value reaches the coordinator as an invalid option.
type SubmitResponsePayload struct {
	OptionIndex json.RawMessage `json:"optionIndex"`
}

// Index returns the option index, or -1 when it is missing or not an integer.
func (p SubmitResponsePayload) Index() int {
	if len(p.OptionIndex) == 0 || string(p.OptionIndex) == "null" {
		return -1
	}
	var f float64
	if err := json.Unmarshal(p.OptionIndex, &f); err != nil {
		return -1
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return -1
	}
	return int(f)
}

// RemoveParticipantPayload is the body of remove_participant.
type RemoveParticipantPayload struct {
	ParticipantID string `json:"participantId"`
}

// ChatPayload is the body of chat_message.
type ChatPayload struct {
	From    string `json:"from"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// ErrorPayload is the body of error_message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// decodeData unmarshals an envelope body. A missing body decodes as an empty object.
func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errMalformedPayload
	}
	return nil
}
