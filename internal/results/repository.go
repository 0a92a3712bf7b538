package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-classroom/livepoll/internal/models"
)

// DefaultListLimit bounds GET /results when no limit is given.
const DefaultListLimit = 50

// Repository handles question_results persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a results repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, question_id, question_text, options, counts, percentages, total, responses, asked_at, closed_at, COALESCE(s3_key,''), created_at`

// Insert stores an exported result. Re-delivered jobs with the same id are ignored.
func (r *Repository) Insert(ctx context.Context, res *models.QuestionResult) error {
	options, err := json.Marshal(res.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	counts, err := json.Marshal(res.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	percentages, err := json.Marshal(res.Percentages)
	if err != nil {
		return fmt.Errorf("marshal percentages: %w", err)
	}
	responses, err := json.Marshal(res.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	var s3Key *string
	if res.S3Key != "" {
		s3Key = &res.S3Key
	}

	const q = `INSERT INTO question_results (id, question_id, question_text, options, counts, percentages, total, responses, asked_at, closed_at, s3_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`
	_, err = r.pool.Exec(ctx, q, res.ID, res.QuestionID, res.QuestionText,
		string(options), string(counts), string(percentages), res.Total, string(responses),
		res.AskedAt, res.ClosedAt, s3Key)
	return err
}

// List returns the most recently closed results first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.QuestionResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := `SELECT ` + selectColumns + ` FROM question_results ORDER BY closed_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.QuestionResult{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *res)
	}
	return list, rows.Err()
}

// GetByID returns a result by export id, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.QuestionResult, error) {
	q := `SELECT ` + selectColumns + ` FROM question_results WHERE id = $1`
	res, err := scanResult(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func scanResult(row pgx.Row) (*models.QuestionResult, error) {
	var (
		res                                     models.QuestionResult
		options, counts, percentages, responses []byte
	)
	if err := row.Scan(&res.ID, &res.QuestionID, &res.QuestionText, &options, &counts, &percentages,
		&res.Total, &responses, &res.AskedAt, &res.ClosedAt, &res.S3Key, &res.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &res.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(counts, &res.Counts); err != nil {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	if err := json.Unmarshal(percentages, &res.Percentages); err != nil {
		return nil, fmt.Errorf("decode percentages: %w", err)
	}
	if err := json.Unmarshal(responses, &res.Responses); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}
	return &res, nil
}
