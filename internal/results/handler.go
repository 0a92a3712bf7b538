package results

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/pkg/response"
)

const maxListLimit = 500

// Store reads exported results.
type Store interface {
	List(ctx context.Context, limit int) ([]models.QuestionResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.QuestionResult, error)
}

// Presigner signs download URLs for exported result objects. Optional.
type Presigner interface {
	PresignResultDownload(ctx context.Context, key string) (string, error)
}

// Handler serves exported results over HTTP.
type Handler struct {
	store     Store
	presigner Presigner
	logger    *zap.Logger
}

// NewHandler creates a results handler. A nil store answers 503; a nil presigner disables downloads.
func NewHandler(store Store, presigner Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, presigner: presigner, logger: logger}
}

// List handles GET /results?limit=N.
func (h *Handler) List(c *gin.Context) {
	if h.store == nil {
		response.ServiceUnavailable(c, "results export is not configured")
		return
	}
	limit := DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			response.BadRequest(c, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	list, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list results failed", zap.Error(err))
		response.Internal(c, "failed to list results")
		return
	}
	response.OK(c, list)
}

// DownloadURL handles GET /results/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.store == nil || h.presigner == nil {
		response.ServiceUnavailable(c, "results download is not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid result id")
		return
	}
	res, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get result failed", zap.Error(err), zap.String("result_id", id.String()))
		response.Internal(c, "failed to load result")
		return
	}
	if res == nil || res.S3Key == "" {
		response.NotFound(c, "result not found")
		return
	}
	url, err := h.presigner.PresignResultDownload(c.Request.Context(), res.S3Key)
	if err != nil {
		h.logger.Error("presign result failed", zap.Error(err), zap.String("result_id", id.String()))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url})
}
