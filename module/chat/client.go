package chat

import (
	"context"
	"encoding/json"
	"sync"

	"GProject/config"
	"GProject/logger"
	"GProject/service/readstate"
	"GProject/service/rest"
	"GProject/service/session"
	"GProject/service/subs"
	"GProject/service/transport"
	"GProject/tools/safe"

	"github.com/cenkalti/backoff/v4"
)

// Notification is a per-user push from /user/queue/notifications.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	ReadCount int    `json:"readCount"`
}

// Client is the entry point for the messaging layer. It owns the single
// transport connection, the subscription registry, the session controller
// and the per-room timelines; screens only hold Room handles and state
// observers, never the session itself.
type Client struct {
	cfg   config.Config
	tr    *transport.Adapter
	reg   *subs.Registry
	sess  *session.Controller
	api   *rest.Client
	reads *readstate.Tracker

	mu        sync.Mutex
	rooms     map[string]*Room
	notifyFns []func(Notification)
}

// Option tweaks client construction.
type Option func(*options)

type options struct {
	boff backoff.BackOff
}

// WithBackoff overrides the reconnect policy (default: constant delay of
// Config.ReconnectDelay).
func WithBackoff(b backoff.BackOff) Option {
	return func(o *options) { o.boff = b }
}

func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.boff == nil {
		o.boff = backoff.NewConstantBackOff(cfg.ReconnectDelay)
	}

	tr := transport.NewAdapter(transport.Config{
		URL:               cfg.WebsocketURL,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SendQueueSize:     cfg.SendQueueSize,
	})
	api := rest.NewClient(cfg.APIBaseURL, cfg.Token, cfg.HTTPTimeout)
	reg := subs.NewRegistry(tr)
	sess := session.NewController(tr, cfg.Token, o.boff)

	c := &Client{
		cfg:   cfg,
		tr:    tr,
		reg:   reg,
		sess:  sess,
		api:   api,
		reads: readstate.NewTracker(api),
		rooms: make(map[string]*Room),
	}

	tr.OnFrame(reg.Dispatch)
	sess.OnReady(reg.ResubscribeAll)
	reg.Subscribe(notificationsTopic, c.handleNotification)
	return c, nil
}

// Start brings the session up and keeps it up until Close. Non-blocking.
func (c *Client) Start(ctx context.Context) {
	c.sess.Connect(ctx)
}

// Close is the logout/teardown path: terminal for this client.
func (c *Client) Close() {
	c.mu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[string]*Room)
	c.mu.Unlock()

	for _, r := range rooms {
		c.reg.Unsubscribe(roomTopic(r.ID))
		r.close()
	}
	c.sess.Logout()
}

// State returns the session state, for connectivity banners.
func (c *Client) State() session.State { return c.sess.State() }

// LastError returns the most recent session-level error.
func (c *Client) LastError() error { return c.sess.LastError() }

// OnState registers a session state observer.
func (c *Client) OnState(fn func(session.State)) { c.sess.OnState(fn) }

// OnNotification registers an observer for per-user pushes.
func (c *Client) OnNotification(fn func(Notification)) {
	c.mu.Lock()
	c.notifyFns = append(c.notifyFns, fn)
	c.mu.Unlock()
}

// Rooms fetches the caller's chat room list.
func (c *Client) Rooms(ctx context.Context) ([]rest.RoomDTO, error) {
	return c.api.Rooms(ctx)
}

// ReadCount exposes the delivery/read counter for a message id.
func (c *Client) ReadCount(messageID string) int {
	return c.reads.ReadCount(messageID)
}

// OpenRoom activates a room: subscribes its topic, seeds the timeline
// from history (empty on fetch failure rather than blocking the screen)
// and reports the user as caught up. Idempotent per room id.
func (c *Client) OpenRoom(ctx context.Context, roomID string) *Room {
	c.mu.Lock()
	if r, ok := c.rooms[roomID]; ok {
		c.mu.Unlock()
		return r
	}
	r := newRoom(ctx, c, roomID)
	c.rooms[roomID] = r
	c.mu.Unlock()

	c.reg.Subscribe(roomTopic(roomID), r.handleFrame)

	safe.Go(func() { c.loadHistory(r) })
	c.reads.MarkRoomRead(r.ctx, roomID, c.cfg.UserID)
	return r
}

// CloseRoom deactivates a room: unsubscribes, cancels the in-flight
// history fetch and drops the timeline wholesale.
func (c *Client) CloseRoom(roomID string) {
	c.mu.Lock()
	r, ok := c.rooms[roomID]
	if ok {
		delete(c.rooms, roomID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.reg.Unsubscribe(roomTopic(roomID))
	r.close()
}

func (c *Client) loadHistory(r *Room) {
	hist, err := c.api.History(r.ctx, r.ID)
	if err != nil {
		// degrade to an empty timeline; pushes still arrive
		logger.Infof("[room %s] history fetch failed: %v", r.ID, err)
		return
	}
	if r.ctx.Err() != nil {
		return // room closed while the fetch was in flight
	}
	msgs := make([]Message, 0, len(hist))
	for _, d := range hist {
		msgs = append(msgs, fromDTO(d, OriginConfirmed))
	}
	r.tl.Seed(msgs)
}

// handleNotification parses per-user queue frames. Read receipts carry an
// absolute count, delivered receipts increment by one; everything is
// forwarded to the registered observers.
func (c *Client) handleNotification(f *transport.Frame) {
	if f.Command != transport.CmdMessage {
		return
	}
	var n Notification
	if err := json.Unmarshal(f.Body, &n); err != nil {
		logger.Infof("drop malformed notification: %v", err)
		return
	}
	if n.MessageID != "" {
		switch n.Type {
		case "read":
			c.reads.SetCount(n.MessageID, n.ReadCount)
			c.applyRoomRead(n.RoomID, n.MessageID)
		case "delivered":
			c.reads.ApplyReadEvent(n.MessageID, 1)
			c.applyRoomRead(n.RoomID, n.MessageID)
		}
	}
	c.mu.Lock()
	fns := c.notifyFns
	c.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// applyRoomRead pushes the tracker's current counter into the room
// timeline, when the room is open.
func (c *Client) applyRoomRead(roomID, messageID string) {
	c.mu.Lock()
	r := c.rooms[roomID]
	c.mu.Unlock()
	if r != nil {
		r.tl.ApplyRead(messageID, c.reads.ReadCount(messageID))
	}
}
