package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"GProject/tools/errs"

	"github.com/go-resty/resty/v2"
)

// MessageDTO mirrors the gateway's chat message JSON.
type MessageDTO struct {
	ID          string    `json:"id"`
	ChatRoomID  string    `json:"chatRoomId"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Timestamp   Timestamp `json:"timestamp"`
	ReadStatus  bool      `json:"readStatus"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
}

// RoomDTO is a chat room summary from the room list endpoint.
type RoomDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

type sendRequest struct {
	Content     string `json:"content"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type readRequest struct {
	UserID string `json:"userId"`
}

// Client wraps the gateway's chat REST surface. Timeouts map to
// errs.ErrTimeout so the caller can show "request timed out" instead of
// "network unreachable"; everything else maps to errs.ErrFetch.
type Client struct {
	rc *resty.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Client{rc: rc}
}

// History returns the ordered message list for a room.
func (c *Client) History(ctx context.Context, roomID string) ([]MessageDTO, error) {
	var out []MessageDTO
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(fmt.Sprintf("/api/chat/rooms/%s/messages", roomID))
	if err != nil {
		return nil, classify(err, "history")
	}
	if resp.IsError() {
		return nil, errs.ErrFetch.WrapMsg("history", "status", resp.StatusCode())
	}
	return out, nil
}

// SendMessage posts a message and returns the server's canonical object.
func (c *Client) SendMessage(ctx context.Context, roomID, content, clientMsgID string) (MessageDTO, error) {
	var out MessageDTO
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(sendRequest{Content: content, ClientMsgID: clientMsgID}).
		SetResult(&out).
		ForceContentType("application/json").
		Post(fmt.Sprintf("/api/chat/rooms/%s/messages", roomID))
	if err != nil {
		return out, classify(err, "send")
	}
	if resp.IsError() {
		return out, errs.ErrFetch.WrapMsg("send", "status", resp.StatusCode())
	}
	return out, nil
}

// MarkRead reports the user as caught up in a room. Safe to retry.
func (c *Client) MarkRead(ctx context.Context, roomID, userID string) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(readRequest{UserID: userID}).
		Post(fmt.Sprintf("/api/chat/rooms/%s/read", roomID))
	if err != nil {
		return classify(err, "mark read")
	}
	if resp.IsError() {
		return errs.ErrFetch.WrapMsg("mark read", "status", resp.StatusCode())
	}
	return nil
}

// Rooms returns the caller's chat room list.
func (c *Client) Rooms(ctx context.Context) ([]RoomDTO, error) {
	var out []RoomDTO
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/api/chat/rooms")
	if err != nil {
		return nil, classify(err, "rooms")
	}
	if resp.IsError() {
		return nil, errs.ErrFetch.WrapMsg("rooms", "status", resp.StatusCode())
	}
	return out, nil
}

func classify(err error, op string) error {
	if isTimeout(err) {
		return errs.ErrTimeout.WrapMsg(op, "err", err)
	}
	return errs.ErrFetch.WrapMsg(op, "err", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return true
	}
	return false
}
