package session

import (
	"sort"
	"time"

	"github.com/aura-classroom/livepoll/internal/models"
)

// registry tracks connected participants by connection id. Not safe for
// concurrent use; the Coordinator serialises access.
type registry struct {
	participants map[string]*models.Participant
}

func newRegistry() *registry {
	return &registry{participants: make(map[string]*models.Participant)}
}

// register upserts id, refreshing LastSeenAt for known participants.
// Reports whether the participant is new.
func (r *registry) register(id, displayName string, now time.Time) bool {
	if p, ok := r.participants[id]; ok {
		p.DisplayName = displayName
		p.LastSeenAt = now
		return false
	}
	r.participants[id] = &models.Participant{
		ID:          id,
		DisplayName: displayName,
		ConnectedAt: now,
		LastSeenAt:  now,
	}
	return true
}

func (r *registry) remove(id string) bool {
	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	return true
}

func (r *registry) get(id string) (*models.Participant, bool) {
	p, ok := r.participants[id]
	return p, ok
}

func (r *registry) len() int {
	return len(r.participants)
}

// all returns copies ordered by ConnectedAt, then id.
func (r *registry) all() []models.Participant {
	list := make([]models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].ConnectedAt.Equal(list[j].ConnectedAt) {
			return list[i].ConnectedAt.Before(list[j].ConnectedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}
