package session

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/livepoll/internal/models"
)

type sentEvent struct {
	to      string // empty for broadcast
	event   string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sentEvent
}

func (p *recordingPublisher) Broadcast(event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{event: event, payload: payload})
}

func (p *recordingPublisher) SendToClient(clientID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{to: clientID, event: event, payload: payload})
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last() sentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recordingPublisher, *fakeClock) {
	t.Helper()
	pub := &recordingPublisher{}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	c := NewCoordinator(pub, 0, time.Hour, nil)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, pub, clock
}

func askColor(t *testing.T, c *Coordinator) *models.Question {
	t.Helper()
	q, err := c.AskNewQuestion("Color?", []string{"Red", "Blue"}, 60)
	require.NoError(t, err)
	return q
}

func TestScenarioA_AllAnswered(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Register("p1", "Ana")
	c.Register("p2", "Ben")
	askColor(t, c)

	require.NoError(t, c.RecordResponse("p1", 0))
	assert.False(t, c.CanAskNewQuestion())
	require.NoError(t, c.RecordResponse("p2", 1))

	agg := c.Aggregate()
	require.NotNil(t, agg)
	assert.Equal(t, []int{1, 1}, agg.Counts)
	assert.Equal(t, []int{50, 50}, agg.Percentages)
	assert.Equal(t, 2, agg.Total)
	assert.True(t, c.CanAskNewQuestion())
}

func TestScenarioB_TimeoutResolvesQuestion(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	c.Register("p1", "Ana")
	askColor(t, c)
	assert.Equal(t, 60, c.RemainingTime())
	assert.False(t, c.CanAskNewQuestion())

	clock.Advance(60 * time.Second)
	assert.Equal(t, 0, c.RemainingTime())
	assert.True(t, c.CanAskNewQuestion())
}

func TestScenarioC_NoParticipantsDoesNotOpenGate(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	first := askColor(t, c)

	clock.Advance(10 * time.Second)
	_, err := c.AskNewQuestion("Shape?", []string{"Circle", "Square"}, 60)
	require.ErrorIs(t, err, ErrGatingViolation)
	assert.Equal(t, first.ID, c.ActiveQuestion().ID)
	assert.Empty(t, c.History())
}

func TestScenarioD_ResubmissionOverwrites(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Register("p1", "Ana")
	c.Register("p2", "Ben")
	askColor(t, c)

	require.NoError(t, c.RecordResponse("p1", 0))
	require.NoError(t, c.RecordResponse("p1", 1))

	agg := c.Aggregate()
	assert.Equal(t, []int{0, 1}, agg.Counts)
	assert.Equal(t, 1, agg.Total)
	assert.Equal(t, []int{0, 100}, agg.Percentages)
}

func TestScenarioE_RemoveDiscardsPendingResponse(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Register("p1", "Ana")
	c.Register("p2", "Ben")
	askColor(t, c)
	require.NoError(t, c.RecordResponse("p1", 0))

	c.Remove("p1")

	agg := c.Aggregate()
	assert.Equal(t, []int{0, 0}, agg.Counts)
	assert.Equal(t, 0, agg.Total)
	assert.Empty(t, c.Snapshot().Responses)
	assert.Len(t, c.Participants(), 1)
}

func TestAskNewQuestionValidation(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		options []string
	}{
		{name: "empty text", text: "   ", options: []string{"a", "b"}},
		{name: "one option", text: "Q?", options: []string{"a"}},
		{name: "nil options", text: "Q?", options: nil},
		{name: "blank option", text: "Q?", options: []string{"a", "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, pub, _ := newTestCoordinator(t)
			_, err := c.AskNewQuestion(tt.text, tt.options, 30)
			require.ErrorIs(t, err, ErrInvalidQuestion)
			assert.Nil(t, c.ActiveQuestion())
			assert.Zero(t, pub.count(EventStateUpdate))
		})
	}
}

func TestAskNewQuestionTrimsAndDefaultsDuration(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)
	q, err := c.AskNewQuestion("  Pick one  ", []string{" x ", "y"}, 0)
	require.NoError(t, err)

	assert.Equal(t, "Pick one", q.Text)
	assert.Equal(t, []string{"x", "y"}, q.Options)
	assert.Equal(t, 60.0, q.DurationSeconds)
	assert.Equal(t, int64(1), q.ID)
	assert.Equal(t, 1, pub.count(EventNewQuestion))
	assert.Equal(t, EventStateUpdate, pub.last().event)
}

func TestAskNewQuestionOutOfRangeDurationFallsBack(t *testing.T) {
	for _, d := range []float64{1e20, MaxQuestionDurationSeconds + 1, math.Inf(1), math.NaN(), -5} {
		c, _, clock := newTestCoordinator(t)
		c.Register("p1", "Ada")
		q, err := c.AskNewQuestion("Q", []string{"a", "b"}, d)
		require.NoError(t, err)
		assert.Equal(t, 60.0, q.DurationSeconds, "%g", d)

		snap := c.Snapshot()
		assert.Equal(t, 60, snap.RemainingTime, "%g", d)
		assert.False(t, snap.CanAskNewQuestion)

		clock.Advance(61 * time.Second)
		assert.Equal(t, 0, c.RemainingTime())
		assert.ErrorIs(t, c.RecordResponse("p1", 0), ErrWindowClosed)
		assert.True(t, c.CanAskNewQuestion())
	}
}

func TestAskNewQuestionAcceptsLargestDuration(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	q, err := c.AskNewQuestion("Q", []string{"a", "b"}, MaxQuestionDurationSeconds)
	require.NoError(t, err)
	assert.Equal(t, float64(MaxQuestionDurationSeconds), q.DurationSeconds)
	assert.Equal(t, math.MaxInt32, c.RemainingTime())
}

func TestGatingBlocksUntilEveryoneAnswered(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Register("p1", "Ana")
	c.Register("p2", "Ben")
	askColor(t, c)

	require.NoError(t, c.RecordResponse("p1", 0))
	_, err := c.AskNewQuestion("Next?", []string{"a", "b"}, 10)
	require.ErrorIs(t, err, ErrGatingViolation)

	require.NoError(t, c.RecordResponse("p2", 0))
	_, err = c.AskNewQuestion("Next?", []string{"a", "b"}, 10)
	require.NoError(t, err)
}

func TestHistoryArchivesPreviousQuestion(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	c.Register("p1", "Ana")

	var archived []models.HistoryRecord
	c.SetArchiveHandler(func(rec models.HistoryRecord) { archived = append(archived, rec) })

	first := askColor(t, c)
	require.NoError(t, c.RecordResponse("p1", 1))
	assert.Empty(t, c.History())

	clock.Advance(5 * time.Second)
	second, err := c.AskNewQuestion("Size?", []string{"S", "M", "L"}, 20)
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	history := c.History()
	require.Len(t, history, 1)
	rec := history[0]
	assert.Equal(t, first.ID, rec.Question.ID)
	assert.Equal(t, []int{0, 1}, rec.Aggregate.Counts)
	assert.Equal(t, 1, rec.Responses["p1"].OptionIndex)
	assert.Equal(t, "Ana", rec.Responses["p1"].DisplayName)
	assert.Equal(t, clock.Now(), rec.ClosedAt)
	assert.Len(t, archived, 1)

	// responses were cleared for the new question
	assert.Empty(t, c.Snapshot().Responses)
	assert.Equal(t, []int{0, 0, 0}, c.Aggregate().Counts)

	clock.Advance(20 * time.Second)
	_, err = c.AskNewQuestion("Again?", []string{"y", "n"}, 5)
	require.NoError(t, err)
	history = c.History()
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].Question.ID)
	assert.Equal(t, second.ID, history[1].Question.ID)
	assert.False(t, history[1].ClosedAt.Before(history[0].ClosedAt))
}

func TestRecordResponseErrors(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	c.Register("p1", "Ana")

	require.ErrorIs(t, c.RecordResponse("p1", 0), ErrNoActiveQuestion)

	askColor(t, c)
	require.ErrorIs(t, c.RecordResponse("ghost", 0), ErrUnknownParticipant)
	require.ErrorIs(t, c.RecordResponse("p1", 2), ErrInvalidOption)
	require.ErrorIs(t, c.RecordResponse("p1", -1), ErrInvalidOption)

	clock.Advance(61 * time.Second)
	require.ErrorIs(t, c.RecordResponse("p1", 0), ErrWindowClosed)
	assert.Zero(t, c.Aggregate().Total)
}

func TestRecordResponseNotifiesSender(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)
	c.Register("p1", "Ana")
	askColor(t, c)
	pub.reset()

	require.NoError(t, c.RecordResponse("p1", 0))

	require.Equal(t, 1, pub.count(EventAnswerAccepted))
	pub.mu.Lock()
	accepted := pub.events[0]
	pub.mu.Unlock()
	assert.Equal(t, "p1", accepted.to)
	notice, ok := accepted.payload.(models.QuestionNotice)
	require.True(t, ok)
	assert.Equal(t, 60, notice.RemainingTime)

	state, ok := pub.last().payload.(models.Snapshot)
	require.True(t, ok)
	assert.Equal(t, 1, state.Aggregate.Total)
}

func TestRegisterUpsertsAndRemoveIsIdempotent(t *testing.T) {
	c, pub, clock := newTestCoordinator(t)
	c.Register("p1", "Ana")
	connectedAt := clock.Now()

	clock.Advance(time.Second)
	c.Register("p1", "Anna")

	list := c.Participants()
	require.Len(t, list, 1)
	assert.Equal(t, "Anna", list[0].DisplayName)
	assert.Equal(t, connectedAt, list[0].ConnectedAt)
	assert.Equal(t, clock.Now(), list[0].LastSeenAt)

	before := pub.count(EventStateUpdate)
	c.Remove("nobody")
	assert.Equal(t, before, pub.count(EventStateUpdate))

	c.Remove("p1")
	c.Remove("p1")
	assert.Empty(t, c.Participants())
	assert.Equal(t, before+1, pub.count(EventStateUpdate))
}

func TestParticipantsOrderIsStable(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	c.Register("b", "B")
	c.Register("a", "A")
	clock.Advance(time.Second)
	c.Register("0", "Zero")

	list := c.Participants()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "0"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestCanAskTurnsFalseAfterAsk(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	assert.True(t, c.CanAskNewQuestion())
	c.Register("p1", "Ana")
	askColor(t, c)
	assert.False(t, c.CanAskNewQuestion())
	assert.False(t, c.Snapshot().CanAskNewQuestion)
}

func TestAggregatePropertiesHoldAcrossActions(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for _, id := range ids {
		c.Register(id, id)
	}
	_, err := c.AskNewQuestion("Q", []string{"a", "b", "c"}, 30)
	require.NoError(t, err)

	check := func() {
		agg := c.Aggregate()
		require.NotNil(t, agg)
		sum := 0
		for _, n := range agg.Counts {
			sum += n
		}
		assert.Equal(t, agg.Total, sum)
		assert.Len(t, agg.Percentages, 3)
		for _, p := range agg.Percentages {
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)
		}
	}

	prev := c.RemainingTime()
	for i, id := range ids {
		require.NoError(t, c.RecordResponse(id, i%3))
		check()
		clock.Advance(time.Second)
		rem := c.RemainingTime()
		assert.LessOrEqual(t, rem, prev)
		assert.GreaterOrEqual(t, rem, 0)
		prev = rem
	}
	c.Remove("p3")
	check()

	assert.Equal(t, []int{33, 33, 33}, ComputeAggregate(c.ActiveQuestion(), map[string]models.Response{
		"x": {OptionIndex: 0}, "y": {OptionIndex: 1}, "z": {OptionIndex: 2},
	}).Percentages)
}

func TestTickBroadcastsUntilClosed(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCoordinator(pub, time.Minute, 5*time.Millisecond, nil)

	c.Tick()
	assert.Zero(t, pub.count(EventStateUpdate), "no tick output without an active question")

	_, err := c.AskNewQuestion("Q", []string{"a", "b"}, 30)
	require.NoError(t, err)
	assert.True(t, c.scheduler.Running())

	require.Eventually(t, func() bool {
		return pub.count(EventStateUpdate) >= 4
	}, time.Second, 5*time.Millisecond)

	c.Close()
	assert.False(t, c.scheduler.Running())
	n := pub.count(EventStateUpdate)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, pub.count(EventStateUpdate))

	c.Register("late", "Late")
	assert.Equal(t, n, pub.count(EventStateUpdate))
}

func TestSendSnapshotTargetsOneClient(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)
	c.SendSnapshot("conn-1")

	e := pub.last()
	assert.Equal(t, "conn-1", e.to)
	assert.Equal(t, EventStateUpdate, e.event)
	snap := e.payload.(models.Snapshot)
	assert.Nil(t, snap.ActiveQuestion)
	assert.Nil(t, snap.Aggregate)
	assert.True(t, snap.CanAskNewQuestion)
	assert.Equal(t, 0, snap.RemainingTime)
}
