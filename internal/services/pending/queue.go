// Package pending is the operator's durable queue of scanned but not yet
// dispatched units.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/scan"
	"github.com/BearBump/PassportDesk/internal/services/events"
	"github.com/BearBump/PassportDesk/internal/storage/snapshot"
	"github.com/pkg/errors"
)

var (
	ErrInvalidFormat = errors.New("no unit identifier in scanned value")
	ErrDuplicate     = errors.New("unit is already queued")
	ErrNotFound      = errors.New("unit is not queued")
)

// Queue is newest-first. Every mutation is persisted to the snapshot store
// before it becomes visible in memory; if persisting fails the mutation is
// dropped, so memory and snapshot never diverge.
type Queue struct {
	mu    sync.Mutex
	items []models.ScannedItem

	store  snapshot.Store
	bus    *events.Bus
	now    func() time.Time
	logger *slog.Logger
}

func New(store snapshot.Store, bus *events.Bus, logger *slog.Logger) *Queue {
	if store == nil {
		store = snapshot.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:  store,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "pending_queue"),
	}
}

func (q *Queue) WithClock(now func() time.Time) *Queue {
	if now != nil {
		q.now = now
	}
	return q
}

func (q *Queue) Enqueue(ctx context.Context, raw string) (models.ScannedItem, error) {
	id, ok := scan.Extract(raw)
	if !ok {
		q.bus.Publish(events.Event{Kind: events.KindRejected, Raw: raw, Err: ErrInvalidFormat})
		return models.ScannedItem{}, ErrInvalidFormat
	}

	q.mu.Lock()
	if q.indexLocked(id) >= 0 {
		q.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrDuplicate, id)
		q.bus.Publish(events.Event{Kind: events.KindDuplicate, Raw: raw, Err: err})
		return models.ScannedItem{}, err
	}

	item := models.ScannedItem{
		ID:         id,
		RawValue:   raw,
		CapturedAt: q.now(),
	}
	next := make([]models.ScannedItem, 0, len(q.items)+1)
	next = append(next, item)
	next = append(next, q.items...)
	if err := q.commitLocked(ctx, next); err != nil {
		q.mu.Unlock()
		return models.ScannedItem{}, err
	}
	n := len(q.items)
	q.mu.Unlock()

	q.logger.Debug("unit queued", "id", id, "queue_len", n)
	q.bus.Publish(events.Event{Kind: events.KindAccepted, Item: &item, Raw: raw, Count: n})
	return item, nil
}

// Remove drops a unit by operator request (e.g. mis-scan cleanup).
func (q *Queue) Remove(ctx context.Context, id string) error {
	if norm, ok := scan.Normalize(id); ok {
		id = norm
	}

	q.mu.Lock()
	idx := q.indexLocked(id)
	if idx < 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := q.items[idx]
	next := make([]models.ScannedItem, 0, len(q.items)-1)
	next = append(next, q.items[:idx]...)
	next = append(next, q.items[idx+1:]...)
	if err := q.commitLocked(ctx, next); err != nil {
		q.mu.Unlock()
		return err
	}
	n := len(q.items)
	q.mu.Unlock()

	q.logger.Info("unit removed", "id", id, "queue_len", n)
	q.bus.Publish(events.Event{Kind: events.KindRemoved, Item: &removed, Count: n})
	return nil
}

// ApplyDispatch folds a bulk transition result into the queue. Units in
// submitted that are not in failures succeeded and are dropped; units in
// failures are kept and annotated. Units queued after the batch was taken are
// not touched. It returns the annotated failed items.
func (q *Queue) ApplyDispatch(ctx context.Context, submitted []string, failures map[string]string) ([]models.ScannedItem, error) {
	inBatch := make(map[string]struct{}, len(submitted))
	for _, id := range submitted {
		inBatch[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]models.ScannedItem, 0, len(q.items))
	var failed []models.ScannedItem
	for _, it := range q.items {
		if _, ok := inBatch[it.ID]; !ok {
			next = append(next, it)
			continue
		}
		msg, isFailed := failures[it.ID]
		if !isFailed {
			continue
		}
		it.Failed = true
		it.Error = msg
		next = append(next, it)
		failed = append(failed, it)
	}
	if err := q.commitLocked(ctx, next); err != nil {
		return nil, err
	}
	return failed, nil
}

func (q *Queue) Items() []models.ScannedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.ScannedItem, len(q.items))
	copy(out, q.items)
	return out
}

// IDs returns unit ids in queue order.
func (q *Queue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it.ID)
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot re-writes the durable copy from memory.
func (q *Queue) Snapshot(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persistLocked(ctx, q.items)
}

// Restore replaces memory with the durable snapshot. A snapshot that cannot
// be parsed is erased and the queue starts empty; corruption is never fatal.
func (q *Queue) Restore(ctx context.Context) (int, error) {
	data, ok, err := q.store.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load pending snapshot")
	}

	q.mu.Lock()
	if !ok {
		q.items = nil
		q.mu.Unlock()
		return 0, nil
	}

	var stored []models.ScannedItem
	if err := json.Unmarshal(data, &stored); err != nil {
		q.logger.Warn("pending snapshot is corrupted, discarding", "error", err.Error(), "bytes", len(data))
		q.items = nil
		delErr := q.store.Delete(ctx)
		q.mu.Unlock()
		if delErr != nil {
			q.logger.Warn("discard corrupted snapshot", "error", delErr.Error())
		}
		return 0, nil
	}

	clean, dropped := sanitize(stored)
	if dropped > 0 || len(clean) == 0 {
		// приводим снапшот к инварианту: без мусора и без пустого массива
		if err := q.persistLocked(ctx, clean); err != nil {
			q.logger.Warn("rewrite sanitized snapshot", "error", err.Error())
		}
	}
	q.items = clean
	n := len(clean)
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("dropped invalid snapshot entries", "dropped", dropped)
	}
	if n > 0 {
		q.logger.Info("pending queue restored", "items", n)
		q.bus.Publish(events.Event{Kind: events.KindRestored, Count: n})
	}
	return n, nil
}

func sanitize(stored []models.ScannedItem) ([]models.ScannedItem, int) {
	out := make([]models.ScannedItem, 0, len(stored))
	seen := make(map[string]struct{}, len(stored))
	dropped := 0
	for _, it := range stored {
		id, ok := scan.Normalize(it.ID)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[id]; dup {
			dropped++
			continue
		}
		seen[id] = struct{}{}
		it.ID = id
		out = append(out, it)
	}
	return out, dropped
}

func (q *Queue) indexLocked(id string) int {
	for i, it := range q.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) commitLocked(ctx context.Context, next []models.ScannedItem) error {
	if err := q.persistLocked(ctx, next); err != nil {
		q.logger.Error("persist pending queue", "error", err.Error())
		return err
	}
	q.items = next
	return nil
}

// persistLocked writes items, or erases the snapshot when there are none.
func (q *Queue) persistLocked(ctx context.Context, items []models.ScannedItem) error {
	if len(items) == 0 {
		return errors.Wrap(q.store.Delete(ctx), "erase pending snapshot")
	}
	b, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "marshal pending queue")
	}
	return errors.Wrap(q.store.Save(ctx, b), "save pending snapshot")
}
