package chat

import (
	"time"

	"GProject/service/rest"
)

// Origin records which path produced a timeline entry.
type Origin int

const (
	OriginOptimistic Origin = iota // local echo, not yet confirmed
	OriginConfirmed                // canonical object from the REST send
	OriginPushed                   // delivered by the broker
)

func (o Origin) String() string {
	switch o {
	case OriginConfirmed:
		return "server-confirmed"
	case OriginPushed:
		return "broker-pushed"
	default:
		return "local-optimistic"
	}
}

// Message is one chat event in a room timeline. Before confirmation ID
// holds the client-generated temp id; after reconciliation it is the
// server id.
type Message struct {
	ID          string
	ClientMsgID string
	RoomID      string
	Sender      string
	Content     string
	CreatedAt   time.Time
	Origin      Origin
	ReadCount   int
	Failed      bool
}

func fromDTO(d rest.MessageDTO, origin Origin) Message {
	m := Message{
		ID:          d.ID,
		ClientMsgID: d.ClientMsgID,
		RoomID:      d.ChatRoomID,
		Sender:      d.Sender,
		Content:     d.Content,
		CreatedAt:   d.Timestamp.Time,
		Origin:      origin,
	}
	if d.ReadStatus {
		m.ReadCount = 1
	}
	return m
}
