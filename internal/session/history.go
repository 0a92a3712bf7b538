package session

import (
	"time"

	"github.com/aura-classroom/livepoll/internal/models"
)

// archive is the append-only log of closed questions, oldest first.
type archive struct {
	records []models.HistoryRecord
}

func (a *archive) append(q *models.Question, agg *models.AggregateResult, responses map[string]models.Response, closedAt time.Time) models.HistoryRecord {
	rec := models.HistoryRecord{
		Question:  *q.Clone(),
		Responses: copyResponses(responses),
		ClosedAt:  closedAt,
	}
	if agg != nil {
		rec.Aggregate = *agg
	}
	a.records = append(a.records, rec)
	return rec
}

// list returns a copy of the log; never nil.
func (a *archive) list() []models.HistoryRecord {
	out := make([]models.HistoryRecord, len(a.records))
	copy(out, a.records)
	return out
}

func copyResponses(src map[string]models.Response) map[string]models.Response {
	dst := make(map[string]models.Response, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
