package realtime

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/session"
)

// Session is the coordinator surface driven by inbound messages.
type Session interface {
	Register(id, displayName string)
	Remove(id string)
	AskNewQuestion(text string, options []string, durationSeconds float64) (*models.Question, error)
	RecordResponse(participantID string, optionIndex int) error
	History() []models.HistoryRecord
	SendSnapshot(clientID string)
}

// Dispatcher validates inbound messages and routes them to the session.
// Failures are reported to the sender only.
type Dispatcher struct {
	session Session
	hub     *Hub
	logger  *zap.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher for one session.
func NewDispatcher(s Session, hub *Hub, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{session: s, hub: hub, logger: logger, now: time.Now}
}

// Connected sends the current state to a newly registered client.
func (d *Dispatcher) Connected(c *Client) {
	d.session.SendSnapshot(c.ID)
}

// Disconnected removes the participant bound to a closed connection.
func (d *Dispatcher) Disconnected(c *Client) {
	d.session.Remove(c.ID)
}

// Handle processes one inbound message from c.
func (d *Dispatcher) Handle(c *Client, msg WSMessage) {
	switch msg.Event {
	case EventRegisterParticipant:
		var p RegisterParticipantPayload
		if err := decodeData(msg.Data, &p); err != nil {
			d.sendError(c, err)
			return
		}
		d.session.Register(c.ID, strings.TrimSpace(p.Name))

	case EventAskNewQuestion:
		var p AskNewQuestionPayload
		if err := decodeData(msg.Data, &p); err != nil {
			d.sendError(c, session.ErrInvalidQuestion)
			return
		}
		if _, err := d.session.AskNewQuestion(p.Text, p.Options, p.Duration()); err != nil {
			d.sendError(c, err)
		}

	case EventSubmitResponse:
		var p SubmitResponsePayload
		if err := decodeData(msg.Data, &p); err != nil {
			p = SubmitResponsePayload{}
		}
		if err := d.session.RecordResponse(c.ID, p.Index()); err != nil {
			d.sendError(c, err)
		}

	case EventRemoveParticipant:
		var p RemoveParticipantPayload
		if err := decodeData(msg.Data, &p); err != nil {
			d.sendError(c, err)
			return
		}
		if p.ParticipantID == "" {
			return
		}
		d.session.Remove(p.ParticipantID)

	case EventRequestHistory:
		d.hub.SendToClient(c.ID, session.EventHistory, d.session.History())

	case EventChatMessage:
		var p ChatPayload
		if err := decodeData(msg.Data, &p); err != nil {
			d.sendError(c, err)
			return
		}
		d.hub.PublishOnly(EventChatMessage, models.ChatMessage{
			From:      p.From,
			Role:      p.Role,
			Message:   p.Message,
			Timestamp: d.now().UnixMilli(),
		})

	default:
		d.logger.Debug("ignoring unknown event", zap.String("client_id", c.ID), zap.String("event", msg.Event))
	}
}

func (d *Dispatcher) sendError(c *Client, err error) {
	d.logger.Debug("rejected message", zap.String("client_id", c.ID), zap.Error(err))
	d.hub.SendToClient(c.ID, session.EventErrorMessage, ErrorPayload{Message: err.Error()})
}
