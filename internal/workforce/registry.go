package workforce

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
)

// Registry tracks workers and the queue of complaints waiting for one.
type Registry struct {
	mu      sync.Mutex
	workers map[types.ID]*Worker
	queue   []string
	now     func() time.Time
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		workers: make(map[types.ID]*Worker),
		now:     time.Now,
		log:     log.With("service", "workforce"),
	}
}

func (r *Registry) Register(name string) (Worker, error) {
	if name == "" {
		return Worker{}, apperrors.Validation("worker name is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w := &Worker{
		ID:           types.NewID(),
		Name:         name,
		Availability: Available,
		IdleSince:    r.now().UTC(),
	}
	r.workers[w.ID] = w
	r.log.Info("worker registered", slog.String("worker_id", w.ID.String()), slog.String("name", name))
	return *w, nil
}

func (r *Registry) Get(id types.ID) (Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return Worker{}, apperrors.NotFound("worker", id.String())
	}
	return *w, nil
}

func (r *Registry) List() []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetAvailability switches a worker between available and off_duty. Busy is
// set only through assignment.
func (r *Registry) SetAvailability(id types.ID, a Availability) (Worker, error) {
	if a == Busy {
		return Worker{}, apperrors.BadRequest("busy is set by assignment")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return Worker{}, apperrors.NotFound("worker", id.String())
	}
	if w.Availability == Busy {
		return Worker{}, apperrors.Conflict(fmt.Sprintf("worker is assigned to %s", w.Assignment))
	}
	if a == Available && w.Availability != Available {
		w.IdleSince = r.now().UTC()
	}
	w.Availability = a
	return *w, nil
}

// Acquire picks the longest-idle available worker for complaintID. When no
// worker is free the complaint joins the queue and ok is false.
func (r *Registry) Acquire(complaintID string) (Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pick *Worker
	for _, w := range r.workers {
		if w.Availability != Available {
			continue
		}
		if pick == nil || w.IdleSince.Before(pick.IdleSince) ||
			(w.IdleSince.Equal(pick.IdleSince) && w.ID.String() < pick.ID.String()) {
			pick = w
		}
	}
	if pick == nil {
		r.enqueue(complaintID)
		r.log.Info("no worker available, complaint queued",
			slog.String("complaint_id", complaintID),
			slog.Int("queue_length", len(r.queue)),
		)
		return Worker{}, false
	}

	r.dequeue(complaintID)
	pick.Availability = Busy
	pick.Assignment = complaintID
	return *pick, true
}

// AssignTo binds a specific worker to complaintID. The worker must be
// available or already assigned to the same complaint.
func (r *Registry) AssignTo(id types.ID, complaintID string) (Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return Worker{}, apperrors.NotFound("worker", id.String())
	}
	switch {
	case w.Availability == Busy && w.Assignment == complaintID:
		return *w, nil
	case w.Availability != Available:
		return Worker{}, apperrors.Conflict(fmt.Sprintf("worker %s is %s", w.Name, w.Availability))
	}

	r.dequeue(complaintID)
	w.Availability = Busy
	w.Assignment = complaintID
	return *w, nil
}

// Release frees the worker. If complaints are queued, the oldest one is
// returned so the caller can assign it; the worker stays available until
// then.
func (r *Registry) Release(id types.ID) (next string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, found := r.workers[id]
	if !found || w.Availability != Busy {
		return "", false
	}
	w.Availability = Available
	w.Assignment = ""
	w.IdleSince = r.now().UTC()

	if len(r.queue) == 0 {
		return "", false
	}
	return r.queue[0], true
}

// Unqueue drops complaintID from the waiting queue.
func (r *Registry) Unqueue(complaintID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dequeue(complaintID)
}

// Queued returns the complaints waiting for a worker, oldest first.
func (r *Registry) Queued() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queue...)
}

func (r *Registry) enqueue(complaintID string) {
	for _, id := range r.queue {
		if id == complaintID {
			return
		}
	}
	r.queue = append(r.queue, complaintID)
}

func (r *Registry) dequeue(complaintID string) {
	for i, id := range r.queue {
		if id == complaintID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}
