package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/pkg/queue"
	"github.com/aura-classroom/livepoll/pkg/storage"
)

// JobQueue is the queue side the processor needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ResultStore persists exported results.
type ResultStore interface {
	Insert(ctx context.Context, res *models.QuestionResult) error
}

// ObjectUploader writes the JSON copy of an exported result.
type ObjectUploader interface {
	UploadResult(ctx context.Context, key string, body io.Reader, contentLength int64) error
}

// ResultProcessor processes result export jobs: upload the JSON copy, then record the row.
type ResultProcessor struct {
	store    ResultStore    // optional
	uploader ObjectUploader // optional
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewResultProcessor creates a result export processor. Either sink may be nil.
func NewResultProcessor(store ResultStore, uploader ObjectUploader, q JobQueue, logger *zap.Logger) *ResultProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultProcessor{store: store, uploader: uploader, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one result export job. Replaying a job is harmless: the
// object key and row id both derive from the export id.
func (p *ResultProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeResultExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ResultExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	res := models.NewQuestionResult(payload.ExportID, payload.Record)

	if p.uploader != nil {
		body, err := json.Marshal(payload.Record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		key := storage.ResultKey(payload.ExportID.String(), payload.Record.ClosedAt)
		if err := p.uploader.UploadResult(ctx, key, bytes.NewReader(body), int64(len(body))); err != nil {
			return fmt.Errorf("s3 upload: %w", err)
		}
		res.S3Key = key
	}

	if p.store != nil {
		if err := p.store.Insert(ctx, res); err != nil {
			p.logger.Error("insert question result failed", zap.Error(err), zap.String("export_id", res.ID.String()))
			return fmt.Errorf("insert result: %w", err)
		}
	}

	p.logger.Info("result export completed",
		zap.String("export_id", res.ID.String()),
		zap.Int64("question_id", res.QuestionID),
		zap.String("s3_key", res.S3Key),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ResultProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("result worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ResultProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
