package audit

import (
	"context"
	"sync"
	"time"
)

// Recorder persists audit entries. Implementations must tolerate being
// called from request handlers; recording failures are logged by callers
// but never fail the underlying operation.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	// Purge removes entries created before cutoff and returns how many
	// were deleted.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryRecorder keeps entries in memory. Used by tests and by deployments
// that have not configured a database.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []*Entry
	nextID  int64
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{nextID: 1}
}

func (r *MemoryRecorder) Record(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	cp.ID = r.nextID
	r.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryRecorder) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var purged int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return purged, nil
}

// Entries returns a snapshot of all recorded entries in insertion order.
func (r *MemoryRecorder) Entries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
