package polls

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// Session is the read side of the poll coordinator.
type Session interface {
	Snapshot() models.Snapshot
	History() []models.HistoryRecord
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	session Session
}

// NewHandler creates a polls handler.
func NewHandler(s Session) *Handler {
	return &Handler{session: s}
}

// State handles GET /state: the same snapshot carried by state_update frames.
func (h *Handler) State(c *gin.Context) {
	response.OK(c, h.session.Snapshot())
}

// History handles GET /history: closed questions, oldest first.
func (h *Handler) History(c *gin.Context) {
	response.OK(c, h.session.History())
}
