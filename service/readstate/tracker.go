package readstate

import (
	"context"
	"sync"

	"GProject/logger"
	"GProject/tools/safe"
)

// RoomReader is the REST slice the tracker needs.
type RoomReader interface {
	MarkRead(ctx context.Context, roomID, userID string) error
}

// Tracker keeps per-message read counters, independent of message
// content. Counters come from broker read receipts; MarkRoomRead tells
// the backend this user is caught up.
type Tracker struct {
	mu     sync.RWMutex
	counts map[string]int
	api    RoomReader
}

func NewTracker(api RoomReader) *Tracker {
	return &Tracker{
		counts: make(map[string]int),
		api:    api,
	}
}

// MarkRoomRead is fire-and-forget: failures are logged and not retried
// here (the call is idempotent, callers may retry on the next room entry).
func (t *Tracker) MarkRoomRead(ctx context.Context, roomID, userID string) {
	if userID == "" {
		return
	}
	safe.Go(func() {
		if err := t.api.MarkRead(ctx, roomID, userID); err != nil {
			logger.Infof("[readstate] mark read room=%s: %v", roomID, err)
		}
	})
}

// ApplyReadEvent folds a broker-pushed read receipt into the counter.
func (t *Tracker) ApplyReadEvent(messageID string, delta int) {
	if messageID == "" || delta == 0 {
		return
	}
	t.mu.Lock()
	t.counts[messageID] += delta
	t.mu.Unlock()
}

// SetCount overwrites the counter, used when history reports an absolute
// value.
func (t *Tracker) SetCount(messageID string, n int) {
	t.mu.Lock()
	t.counts[messageID] = n
	t.mu.Unlock()
}

func (t *Tracker) ReadCount(messageID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[messageID]
}
