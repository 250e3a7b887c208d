package chat

import (
	"sync"
	"time"

	"GProject/tools/ids"
)

// echoWindow bounds the sender+content fallback match for broker echoes
// that carry no correlation id.
const echoWindow = 60 * time.Second

// Timeline is the authoritative ordered, deduplicated message sequence
// for one room. Three sources feed it: the REST history fetch, optimistic
// local sends, and broker pushes. All mutations go through the ingest
// methods; both the REST confirm and the broker echo may try to resolve
// the same optimistic entry, so every ingest is idempotent.
type Timeline struct {
	mu        sync.Mutex
	roomID    string
	localUser string
	msgs      []*Message
	byID      map[string]*Message // server or temp id -> entry
	pending   map[string]*Message // correlation id -> unresolved optimistic entry
	resolved  map[string]string   // correlation id -> entry id once resolved
	onChange  func()
}

func NewTimeline(roomID, localUser string) *Timeline {
	return &Timeline{
		roomID:    roomID,
		localUser: localUser,
		byID:      make(map[string]*Message),
		pending:   make(map[string]*Message),
		resolved:  make(map[string]string),
	}
}

// OnChange registers a single coalesced change callback (the room handle
// uses it to wake observers). Must be set before the timeline is shared.
func (t *Timeline) OnChange(fn func()) { t.onChange = fn }

func (t *Timeline) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}

// Snapshot returns a copy of the ordered timeline.
func (t *Timeline) Snapshot() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Seed ingests a history fetch. Re-running with the same input does not
// grow the timeline.
func (t *Timeline) Seed(history []Message) {
	t.mu.Lock()
	for i := range history {
		m := history[i]
		t.resolveLocked(&m)
	}
	t.mu.Unlock()
	t.notify()
}

// AppendOptimistic creates the local echo for an outbound send and
// appends it immediately; no network involved. The returned message
// carries the correlation id the send path must transmit.
func (t *Timeline) AppendOptimistic(content string) Message {
	corr := ids.ClientMsgID()
	m := &Message{
		ID:          corr,
		ClientMsgID: corr,
		RoomID:      t.roomID,
		Sender:      t.localUser,
		Content:     content,
		CreatedAt:   time.Now(),
		Origin:      OriginOptimistic,
	}
	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.byID[m.ID] = m
	t.pending[corr] = m
	t.mu.Unlock()
	t.notify()
	return *m
}

// IngestConfirm folds in the canonical message returned by the REST send.
func (t *Timeline) IngestConfirm(m Message) {
	m.Origin = OriginConfirmed
	t.mu.Lock()
	t.resolveLocked(&m)
	t.mu.Unlock()
	t.notify()
}

// IngestPush folds in a broker-delivered message. Echoes of the local
// user's own sends replace the matching optimistic entry instead of
// appending a duplicate.
func (t *Timeline) IngestPush(m Message) {
	m.Origin = OriginPushed
	t.mu.Lock()
	t.resolveLocked(&m)
	t.mu.Unlock()
	t.notify()
}

// MarkFailed flags an unresolved optimistic entry after a failed REST
// send. The message stays visible so the user can retry.
func (t *Timeline) MarkFailed(clientMsgID string) {
	t.mu.Lock()
	if m, ok := t.pending[clientMsgID]; ok {
		m.Failed = true
	}
	t.mu.Unlock()
	t.notify()
}

// Failed lists optimistic entries whose send failed.
func (t *Timeline) Failed() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, m := range t.msgs {
		if m.Failed {
			out = append(out, *m)
		}
	}
	return out
}

// ApplyRead updates the read counter of an entry in place.
func (t *Timeline) ApplyRead(messageID string, count int) {
	t.mu.Lock()
	if m, ok := t.byID[messageID]; ok {
		m.ReadCount = count
	}
	t.mu.Unlock()
	t.notify()
}

// resolveLocked is the reconciliation step. Order of checks:
//  1. known server id -> already resolved by the other path, no-op
//  2. known correlation id -> already resolved, even if this copy was
//     persisted under a different server id, no-op
//  3. correlation id match -> replace the optimistic entry in place,
//     preserving its position
//  4. echo heuristic (own sender, same content, close in time) when the
//     broker did not echo a correlation id
//  5. otherwise insert by timestamp order
func (t *Timeline) resolveLocked(m *Message) {
	if m.ID != "" {
		if existing, ok := t.byID[m.ID]; ok {
			// second arm of the confirm/echo race; keep the first result
			if existing.ReadCount < m.ReadCount {
				existing.ReadCount = m.ReadCount
			}
			return
		}
	}

	if m.ClientMsgID != "" {
		if id, ok := t.resolved[m.ClientMsgID]; ok {
			if existing, ok := t.byID[id]; ok && existing.ReadCount < m.ReadCount {
				existing.ReadCount = m.ReadCount
			}
			return
		}
		if opt, ok := t.pending[m.ClientMsgID]; ok {
			t.replaceLocked(opt, m)
			return
		}
	}

	if m.Sender != "" && m.Sender == t.localUser {
		if opt := t.matchEchoLocked(m); opt != nil {
			t.replaceLocked(opt, m)
			return
		}
	}

	t.insertLocked(m)
}

// replaceLocked overwrites an optimistic entry with its resolved
// counterpart, keeping the slice position.
func (t *Timeline) replaceLocked(opt *Message, m *Message) {
	delete(t.byID, opt.ID)
	delete(t.pending, opt.ClientMsgID)

	opt.Origin = m.Origin
	opt.Failed = false
	if m.ID != "" {
		opt.ID = m.ID
	}
	if m.Content != "" {
		opt.Content = m.Content
	}
	if !m.CreatedAt.IsZero() {
		opt.CreatedAt = m.CreatedAt
	}
	if m.ReadCount > opt.ReadCount {
		opt.ReadCount = m.ReadCount
	}
	t.byID[opt.ID] = opt
	if opt.ClientMsgID != "" {
		t.resolved[opt.ClientMsgID] = opt.ID
	}
}

// matchEchoLocked finds the oldest unresolved optimistic entry with the
// same content close enough in time. Fragile by nature; only used when
// the echo lacks a correlation id.
func (t *Timeline) matchEchoLocked(m *Message) *Message {
	var best *Message
	for _, opt := range t.pending {
		if opt.Content != m.Content {
			continue
		}
		if !m.CreatedAt.IsZero() {
			d := m.CreatedAt.Sub(opt.CreatedAt)
			if d < -echoWindow || d > echoWindow {
				continue
			}
		}
		if best == nil || opt.CreatedAt.Before(best.CreatedAt) {
			best = opt
		}
	}
	return best
}

// insertLocked places a new entry keeping timestamp order with id
// tie-break. Messages arrive roughly in order, so the scan starts from
// the tail.
func (t *Timeline) insertLocked(m *Message) {
	if m.ID == "" {
		m.ID = ids.GenerateString()
	}
	i := len(t.msgs)
	for i > 0 {
		prev := t.msgs[i-1]
		if prev.CreatedAt.Before(m.CreatedAt) {
			break
		}
		if prev.CreatedAt.Equal(m.CreatedAt) && prev.ID <= m.ID {
			break
		}
		i--
	}
	t.msgs = append(t.msgs, nil)
	copy(t.msgs[i+1:], t.msgs[i:])
	t.msgs[i] = m
	t.byID[m.ID] = m
	if m.ClientMsgID != "" {
		t.resolved[m.ClientMsgID] = m.ID
	}
}
