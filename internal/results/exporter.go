package results

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/pkg/queue"
)

const (
	// DefaultExportBuffer is how many archived questions may wait for the queue.
	DefaultExportBuffer = 64
	enqueueTimeout      = 5 * time.Second
)

// Enqueuer hands export jobs to the worker queue.
type Enqueuer interface {
	EnqueueResultExport(ctx context.Context, payload queue.ResultExportPayload) error
}

// Exporter forwards archived questions to the export queue off the session's lock.
type Exporter struct {
	queue   Enqueuer
	pending chan models.HistoryRecord
	logger  *zap.Logger
	newID   func() uuid.UUID
}

// NewExporter creates an exporter with room for buffer pending records.
func NewExporter(q Enqueuer, buffer int, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = DefaultExportBuffer
	}
	return &Exporter{
		queue:   q,
		pending: make(chan models.HistoryRecord, buffer),
		logger:  logger,
		newID:   uuid.New,
	}
}

// Archive accepts a closed question. It never blocks; a full buffer drops the record.
func (e *Exporter) Archive(rec models.HistoryRecord) {
	select {
	case e.pending <- rec:
	default:
		e.logger.Warn("export buffer full, dropping archived question", zap.Int64("question_id", rec.Question.ID))
	}
}

// Run enqueues pending records until ctx is done.
func (e *Exporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("result exporter stopping", zap.Int("pending", len(e.pending)))
			return
		case rec := <-e.pending:
			e.enqueue(ctx, rec)
		}
	}
}

func (e *Exporter) enqueue(ctx context.Context, rec models.HistoryRecord) {
	payload := queue.ResultExportPayload{ExportID: e.newID(), Record: rec}
	enqCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := e.queue.EnqueueResultExport(enqCtx, payload); err != nil {
		e.logger.Error("enqueue result export failed",
			zap.Error(err),
			zap.Int64("question_id", rec.Question.ID),
			zap.String("export_id", payload.ExportID.String()),
		)
		return
	}
	e.logger.Info("archived question queued for export",
		zap.Int64("question_id", rec.Question.ID),
		zap.String("export_id", payload.ExportID.String()),
	)
}
