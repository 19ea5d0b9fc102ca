// Package memory provides an in-process store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/store"
)

type state struct {
	filters   map[string]modguard.ContentFilter
	windows   map[string]modguard.RateLimitWindow
	queue     map[string]modguard.QueueItem
	statuses  map[string]modguard.UserModerationStatus
	actions   []modguard.ModerationAction
	repEvents []modguard.ReputationEvent
}

func newState() *state {
	return &state{
		filters:  make(map[string]modguard.ContentFilter),
		windows:  make(map[string]modguard.RateLimitWindow),
		queue:    make(map[string]modguard.QueueItem),
		statuses: make(map[string]modguard.UserModerationStatus),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.filters {
		c.filters[k] = v
	}
	for k, v := range s.windows {
		c.windows[k] = v
	}
	for k, v := range s.queue {
		c.queue[k] = v
	}
	for k, v := range s.statuses {
		c.statuses[k] = v
	}
	c.actions = append([]modguard.ModerationAction(nil), s.actions...)
	c.repEvents = append([]modguard.ReputationEvent(nil), s.repEvents...)
	return c
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Store implements store.Store in memory. Transactions run against a
// snapshot that replaces the live state on commit; they are serialized
// with every other operation.
type Store struct {
	mu    sync.Locker
	root  *sync.Mutex
	data  *state
	clock store.Clock
	inTx  bool
}

// New creates an empty memory store.
func New() *Store {
	return NewWithClock(store.SystemClock)
}

// NewWithClock creates an empty memory store that reads time from clock.
func NewWithClock(clock store.Clock) *Store {
	m := &sync.Mutex{}
	return &Store{mu: m, root: m, data: newState(), clock: clock}
}

var _ store.Store = (*Store)(nil)

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.clock()
}

// WithTx executes fn against a snapshot and commits it when fn succeeds.
// fn must only use the store it is given.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.root.Lock()
	defer s.root.Unlock()

	tx := &Store{mu: nopLocker{}, root: s.root, data: s.data.clone(), clock: s.clock, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// ListFilters returns all filters ordered by id.
func (s *Store) ListFilters(ctx context.Context) ([]modguard.ContentFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]modguard.ContentFilter, 0, len(s.data.filters))
	for _, f := range s.data.filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetFilter gets a filter by id.
func (s *Store) GetFilter(ctx context.Context, id string) (*modguard.ContentFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.data.filters[id]
	if !ok {
		return nil, modguard.ErrNotFound
	}
	return &f, nil
}

// UpsertFilter creates or replaces a filter.
func (s *Store) UpsertFilter(ctx context.Context, f modguard.ContentFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UnixMilli()
	if existing, ok := s.data.filters[f.ID]; ok {
		f.CreatedAt = existing.CreatedAt
	} else {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	s.data.filters[f.ID] = f
	return nil
}

// DeleteFilter removes a filter.
func (s *Store) DeleteFilter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.filters[id]; !ok {
		return modguard.ErrNotFound
	}
	delete(s.data.filters, id)
	return nil
}

// IncrementWindow counts a hit under the store lock.
func (s *Store) IncrementWindow(ctx context.Context, identifier, actionType string, window time.Duration, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := actionType + ":" + identifier
	w, ok := s.data.windows[key]
	if !ok || w.Expired(now, window) {
		w = modguard.RateLimitWindow{
			Identifier:  identifier,
			ActionType:  actionType,
			WindowStart: now.UnixMilli(),
		}
	}
	w.Count++
	s.data.windows[key] = w
	return w.Count, nil
}

// CreateQueueItem inserts a queue item.
func (s *Store) CreateQueueItem(ctx context.Context, item modguard.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.queue[item.ID]; ok {
		return modguard.NewStoreError("create", "moderation_queue", modguard.ErrDuplicate)
	}
	s.data.queue[item.ID] = item
	return nil
}

// GetQueueItem gets a queue item by id.
func (s *Store) GetQueueItem(ctx context.Context, id string) (*modguard.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.queue[id]
	if !ok {
		return nil, modguard.ErrQueueItemNotFound
	}
	return &item, nil
}

// TransitionQueueItem moves a pending item.
func (s *Store) TransitionQueueItem(ctx context.Context, id string, status modguard.QueueStatus, priority int, notes string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.queue[id]
	if !ok {
		return false, modguard.ErrQueueItemNotFound
	}
	if item.Status != modguard.QueuePending {
		return false, nil
	}
	item.Status = status
	item.PriorityLevel = priority
	if notes != "" {
		item.ModeratorNotes = notes
	}
	item.UpdatedAt = now.UnixMilli()
	s.data.queue[id] = item
	return true, nil
}

// NextPendingQueueItem returns the next item to review.
func (s *Store) NextPendingQueueItem(ctx context.Context) (*modguard.QueueItem, error) {
	items, err := s.ListPendingQueueItems(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, modguard.ErrQueueEmpty
	}
	return &items[0], nil
}

// ListPendingQueueItems lists pending items in dequeue order.
func (s *Store) ListPendingQueueItems(ctx context.Context, limit int) ([]modguard.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []modguard.QueueItem
	for _, item := range s.data.queue {
		if item.Status == modguard.QueuePending {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityLevel != out[j].PriorityLevel {
			return out[i].PriorityLevel > out[j].PriorityLevel
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetUserStatus gets a user's moderation status.
func (s *Store) GetUserStatus(ctx context.Context, userID string) (*modguard.UserModerationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data.statuses[userID]
	if !ok {
		return nil, modguard.ErrNotFound
	}
	return &st, nil
}

// UpsertUserStatus writes the sanction fields of a status record.
func (s *Store) UpsertUserStatus(ctx context.Context, st modguard.UserModerationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data.statuses[st.UserID]; ok {
		st.ReputationScore = existing.ReputationScore
	}
	s.data.statuses[st.UserID] = st
	return nil
}

// CreateAction appends an audit record.
func (s *Store) CreateAction(ctx context.Context, a modguard.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.actions = append(s.data.actions, a)
	return nil
}

// ListActions lists a user's actions, newest first.
func (s *Store) ListActions(ctx context.Context, userID string, limit int) ([]modguard.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []modguard.ModerationAction
	for i := len(s.data.actions) - 1; i >= 0; i-- {
		if s.data.actions[i].TargetUserID == userID {
			out = append(out, s.data.actions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// AddReputation adjusts a user's score.
func (s *Store) AddReputation(ctx context.Context, userID string, delta int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data.statuses[userID]
	if !ok {
		st = modguard.NewUserModerationStatus(userID)
	}
	st.ReputationScore += delta
	st.UpdatedAt = now.UnixMilli()
	s.data.statuses[userID] = st
	return st.ReputationScore, nil
}

// CreateReputationEvent appends a reputation change.
func (s *Store) CreateReputationEvent(ctx context.Context, e modguard.ReputationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.repEvents = append(s.data.repEvents, e)
	return nil
}

// ReputationEvents returns a copy of the recorded reputation changes.
func (s *Store) ReputationEvents() []modguard.ReputationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]modguard.ReputationEvent(nil), s.data.repEvents...)
}
