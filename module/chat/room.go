package chat

import (
	"context"
	"encoding/json"

	"GProject/logger"
	"GProject/service/rest"
	"GProject/service/transport"
	"GProject/tools/safe"
)

// pushPayload is the JSON body of a broker MESSAGE frame on a room topic.
type pushPayload struct {
	ID          string `json:"id"`
	ChatRoomID  string `json:"chatRoomId"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	ClientMsgID string `json:"clientMsgId"`
}

// Room is the handle a screen holds while it is active: the reconciled
// timeline plus a send path. Obtained from Client.OpenRoom, released with
// Client.CloseRoom.
type Room struct {
	ID string

	tl      *Timeline
	client  *Client
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan struct{}
}

func newRoom(ctx context.Context, c *Client, roomID string) *Room {
	roomCtx, cancel := context.WithCancel(ctx)
	r := &Room{
		ID:      roomID,
		tl:      NewTimeline(roomID, c.cfg.UserID),
		client:  c,
		ctx:     roomCtx,
		cancel:  cancel,
		updates: make(chan struct{}, 1),
	}
	r.tl.OnChange(r.wake)
	return r
}

// Messages returns the current reconciled timeline.
func (r *Room) Messages() []Message { return r.tl.Snapshot() }

// Failed returns optimistic sends that errored, for retry affordances.
func (r *Room) Failed() []Message { return r.tl.Failed() }

// Updates signals (coalesced) whenever the timeline changes.
func (r *Room) Updates() <-chan struct{} { return r.updates }

func (r *Room) wake() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// Send appends the optimistic echo synchronously and returns it; the REST
// send and broker publish run in the background. A failed REST send marks
// the entry Failed instead of rolling it back.
func (r *Room) Send(text string) Message {
	m := r.tl.AppendOptimistic(text)
	safe.Go(func() { r.deliver(m) })
	return m
}

func (r *Room) deliver(m Message) {
	confirmed, err := r.client.api.SendMessage(r.ctx, r.ID, m.Content, m.ClientMsgID)
	if err != nil {
		logger.Infof("[room %s] send failed: %v", r.ID, err)
		r.tl.MarkFailed(m.ClientMsgID)
		return
	}
	if confirmed.ClientMsgID == "" {
		// backend is not guaranteed to echo the correlation id
		confirmed.ClientMsgID = m.ClientMsgID
	}
	r.tl.IngestConfirm(fromDTO(confirmed, OriginConfirmed))

	body, _ := json.Marshal(pushPayload{
		ChatRoomID:  r.ID,
		Sender:      m.Sender,
		Content:     m.Content,
		ClientMsgID: m.ClientMsgID,
	})
	r.client.tr.Send(roomPublish(r.ID), body)
}

// Retry re-sends a failed optimistic entry, reusing its correlation id.
func (r *Room) Retry(clientMsgID string) {
	for _, m := range r.tl.Failed() {
		if m.ClientMsgID == clientMsgID {
			safe.Go(func() { r.deliver(m) })
			return
		}
	}
}

// handleFrame ingests a broker push on this room's topic. Malformed
// payloads are dropped, never fatal.
func (r *Room) handleFrame(f *transport.Frame) {
	if f.Command != transport.CmdMessage {
		return
	}
	var p pushPayload
	if err := json.Unmarshal(f.Body, &p); err != nil {
		logger.Infof("[room %s] drop malformed push: %v", r.ID, err)
		return
	}
	dto := rest.MessageDTO{
		ID:          p.ID,
		ChatRoomID:  r.ID,
		Sender:      p.Sender,
		Content:     p.Content,
		ClientMsgID: p.ClientMsgID,
	}
	if p.Timestamp != "" {
		if ts, err := rest.ParseWireTime(p.Timestamp); err == nil {
			dto.Timestamp = rest.Timestamp{Time: ts}
		}
	}
	r.tl.IngestPush(fromDTO(dto, OriginPushed))
}

func (r *Room) close() {
	r.cancel()
	r.wake()
}
