// Package session implements the live polling coordinator: participant registry,
// question lifecycle, gating, response tally, history and the broadcast tick.
package session

import (
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
)

// DefaultQuestionDuration is used when a question is asked without a positive duration.
const DefaultQuestionDuration = 60 * time.Second

// MaxQuestionDurationSeconds bounds a requested duration; anything above it gets the default.
const MaxQuestionDurationSeconds = math.MaxInt32

// Outbound event names.
const (
	EventStateUpdate    = "state_update"
	EventNewQuestion    = "new_question"
	EventAnswerAccepted = "answer_accepted"
	EventErrorMessage   = "error_message"
	EventHistory        = "history"
)

// Publisher delivers events to connected consumers. Implementations must not block.
type Publisher interface {
	Broadcast(event string, payload interface{})
	SendToClient(clientID string, event string, payload interface{})
}

// ArchiveHandler is called with every record appended to the history, while the
// coordinator lock is held. It must not block.
type ArchiveHandler func(rec models.HistoryRecord)

// Coordinator owns the session state. All public methods are mutually exclusive.
type Coordinator struct {
	mu        sync.Mutex
	pub       Publisher
	logger    *zap.Logger
	now       func() time.Time
	scheduler *Scheduler
	onArchive ArchiveHandler

	defaultDuration time.Duration
	registry        *registry
	active          *models.Question
	responses       map[string]models.Response
	history         archive
	nextID          int64
	closed          bool
}

// NewCoordinator creates a coordinator publishing through pub. The periodic
// tick starts with the first question and stops on Close.
func NewCoordinator(pub Publisher, defaultDuration, tickInterval time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultQuestionDuration
	}
	c := &Coordinator{
		pub:             pub,
		logger:          logger,
		now:             time.Now,
		defaultDuration: defaultDuration,
		registry:        newRegistry(),
		responses:       make(map[string]models.Response),
		nextID:          1,
	}
	c.scheduler = NewScheduler(tickInterval, c.Tick, logger)
	return c
}

// SetArchiveHandler sets the callback for archived questions (e.g. results export).
func (c *Coordinator) SetArchiveHandler(fn ArchiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onArchive = fn
}

// Register adds or renames a participant. It never fails.
func (c *Coordinator) Register(id, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.register(id, displayName, c.now()) {
		c.logger.Debug("participant registered", zap.String("participant_id", id), zap.String("name", displayName))
	}
	c.broadcastStateLocked()
}

// Remove drops a participant and its pending response. Unknown ids are ignored.
func (c *Coordinator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.remove(id) {
		return
	}
	delete(c.responses, id)
	c.logger.Debug("participant removed", zap.String("participant_id", id))
	c.broadcastStateLocked()
}

// Participants returns the registered participants in a stable order.
func (c *Coordinator) Participants() []models.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.all()
}

// AskNewQuestion replaces the active question once it has resolved. The previous
// question is archived with its final aggregate before responses are cleared.
// durationSeconds <= 0 selects the default duration.
func (c *Coordinator) AskNewQuestion(text string, options []string, durationSeconds float64) (*models.Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.canAskLocked(now) {
		return nil, ErrGatingViolation
	}

	text = strings.TrimSpace(text)
	if text == "" || len(options) < 2 {
		return nil, ErrInvalidQuestion
	}
	trimmed := make([]string, len(options))
	for i, o := range options {
		trimmed[i] = strings.TrimSpace(o)
		if trimmed[i] == "" {
			return nil, ErrInvalidQuestion
		}
	}
	if !(durationSeconds > 0 && durationSeconds <= MaxQuestionDurationSeconds) {
		durationSeconds = c.defaultDuration.Seconds()
	}

	if c.active != nil {
		rec := c.history.append(c.active, ComputeAggregate(c.active, c.responses), c.responses, now)
		c.logger.Info("question archived",
			zap.Int64("question_id", rec.Question.ID),
			zap.Int("responses", rec.Aggregate.Total),
		)
		if c.onArchive != nil {
			c.onArchive(rec)
		}
	}

	c.active = &models.Question{
		ID:              c.nextID,
		Text:            text,
		Options:         trimmed,
		CreatedAt:       now,
		DurationSeconds: durationSeconds,
	}
	c.nextID++
	c.responses = make(map[string]models.Response)

	c.logger.Info("question asked",
		zap.Int64("question_id", c.active.ID),
		zap.Int("options", len(trimmed)),
		zap.Float64("duration_seconds", durationSeconds),
	)

	if !c.closed {
		c.scheduler.Start()
		c.pub.Broadcast(EventNewQuestion, models.QuestionNotice{
			ActiveQuestion: c.active.Clone(),
			RemainingTime:  RemainingTime(c.active, now),
		})
	}
	c.broadcastStateLocked()
	return c.active.Clone(), nil
}

// RecordResponse stores participantID's choice for the active question,
// replacing any earlier choice.
func (c *Coordinator) RecordResponse(participantID string, optionIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ErrNoActiveQuestion
	}
	p, ok := c.registry.get(participantID)
	if !ok {
		return ErrUnknownParticipant
	}
	now := c.now()
	if RemainingTime(c.active, now) == 0 {
		return ErrWindowClosed
	}
	if optionIndex < 0 || optionIndex >= len(c.active.Options) {
		return ErrInvalidOption
	}

	c.responses[participantID] = models.Response{
		DisplayName: p.DisplayName,
		OptionIndex: optionIndex,
		AnsweredAt:  now,
	}

	if !c.closed {
		c.pub.SendToClient(participantID, EventAnswerAccepted, models.QuestionNotice{
			ActiveQuestion: c.active.Clone(),
			RemainingTime:  RemainingTime(c.active, now),
		})
	}
	c.broadcastStateLocked()
	return nil
}

// ActiveQuestion returns a copy of the active question, or nil.
func (c *Coordinator) ActiveQuestion() *models.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.Clone()
}

// RemainingTime returns the seconds left on the active question.
func (c *Coordinator) RemainingTime() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RemainingTime(c.active, c.now())
}

// CanAskNewQuestion evaluates the gating policy against the current state.
func (c *Coordinator) CanAskNewQuestion() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canAskLocked(c.now())
}

// Aggregate returns the tally for the active question, or nil.
func (c *Coordinator) Aggregate() *models.AggregateResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComputeAggregate(c.active, c.responses)
}

// History returns closed questions, oldest first. Records must be treated as read-only.
func (c *Coordinator) History() []models.HistoryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.list()
}

// Snapshot returns the current state as published in state_update.
func (c *Coordinator) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SendSnapshot sends the current state to a single client, e.g. right after it connects.
func (c *Coordinator) SendSnapshot(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pub.SendToClient(clientID, EventStateUpdate, c.snapshotLocked())
}

// Tick re-broadcasts the state while a question is active.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	c.broadcastStateLocked()
}

// Close stops the periodic tick. After Close no further events are published.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.scheduler.Stop()
}

func (c *Coordinator) canAskLocked(now time.Time) bool {
	return CanAskNewQuestion(c.active, len(c.responses), c.registry.len(), now)
}

func (c *Coordinator) snapshotLocked() models.Snapshot {
	now := c.now()
	return models.Snapshot{
		ActiveQuestion:    c.active.Clone(),
		Responses:         copyResponses(c.responses),
		Participants:      c.registry.all(),
		RemainingTime:     RemainingTime(c.active, now),
		CanAskNewQuestion: c.canAskLocked(now),
		Aggregate:         ComputeAggregate(c.active, c.responses),
	}
}

func (c *Coordinator) broadcastStateLocked() {
	if c.closed {
		return
	}
	c.pub.Broadcast(EventStateUpdate, c.snapshotLocked())
}
