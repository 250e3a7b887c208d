package mockgate

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"GProject/logger"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Message mirrors the Spring gateway's chat message JSON.
type Message struct {
	ID          string    `json:"id"`
	ChatRoomID  string    `json:"chatRoomId"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	ReadStatus  bool      `json:"readStatus"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
}

// Room is a room summary for the room list endpoint.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

type Config struct {
	// Secret enables JWT bearer validation when non-empty (HS256).
	// With an empty secret the gateway accepts anonymous callers.
	Secret string
}

// Gateway is an in-memory stand-in for the chat backend: the chat REST
// surface plus a minimal STOMP broker on /ws. Used by cmd/mockgate and
// the integration-style tests; not a production server.
type Gateway struct {
	cfg Config

	mu     sync.Mutex
	seq    int64
	rooms  map[string][]Message
	names  map[string]Room
	broker *broker
}

func NewGateway(cfg Config) *Gateway {
	g := &Gateway{
		cfg:   cfg,
		rooms: make(map[string][]Message),
		names: make(map[string]Room),
	}
	g.broker = newBroker(g)
	return g
}

// Router builds the gin engine with REST routes and the /ws endpoint.
func (g *Gateway) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	api := e.Group("/api/chat", g.authMiddleware())
	api.GET("/rooms", g.listRooms)
	api.GET("/rooms/:id/messages", g.listMessages)
	api.POST("/rooms/:id/messages", g.postMessage)
	api.POST("/rooms/:id/read", g.markRead)

	e.GET("/ws", g.broker.handleWS)
	return e
}

// SeedRoom pre-populates a room, for tests.
func (g *Gateway) SeedRoom(room Room, history ...Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.names[room.ID] = room
	g.rooms[room.ID] = append(g.rooms[room.ID], history...)
}

// NotifyUser pushes a payload to the user's notification queue.
func (g *Gateway) NotifyUser(userID string, payload any) {
	g.broker.notifyUser(userID, payload)
}

// Publish stores a server-originated message and fans it out, as if a
// peer had published it.
func (g *Gateway) Publish(roomID, sender, content string) Message {
	m, _ := g.save(roomID, sender, content, "")
	g.broker.fanout(roomTopic(roomID), m)
	return m
}

// DropConnections closes every broker connection, simulating a network
// blip. For tests.
func (g *Gateway) DropConnections() {
	g.broker.dropAll()
}

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.cfg.Secret == "" {
			c.Next()
			return
		}
		user, err := g.userFromBearer(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

// userFromBearer validates "Bearer <jwt>" and returns the subject claim.
func (g *Gateway) userFromBearer(authz string) (string, error) {
	authz = strings.TrimSpace(authz)
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimSpace(authz[len("bearer "):])
	tok, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(g.cfg.Secret), nil
	})
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	sub, _ := tok.Claims.GetSubject()
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// IssueToken mints a token the gateway will accept, for tests and the
// probe CLI.
func (g *Gateway) IssueToken(userID string, ttl time.Duration) (string, error) {
	claims := jwtlib.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return tok.SignedString([]byte(g.cfg.Secret))
}

func (g *Gateway) listRooms(c *gin.Context) {
	g.mu.Lock()
	out := make([]Room, 0, len(g.names))
	for _, r := range g.names {
		out = append(out, r)
	}
	g.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (g *Gateway) listMessages(c *gin.Context) {
	roomID := c.Param("id")
	g.mu.Lock()
	msgs := append([]Message(nil), g.rooms[roomID]...)
	g.mu.Unlock()
	c.JSON(http.StatusOK, msgs)
}

type postMessageReq struct {
	Content     string `json:"content"`
	ClientMsgID string `json:"clientMsgId"`
}

func (g *Gateway) postMessage(c *gin.Context) {
	roomID := c.Param("id")
	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	sender := c.GetString("user")
	if sender == "" {
		sender = "anonymous"
	}
	m, isNew := g.save(roomID, sender, req.Content, req.ClientMsgID)
	if isNew {
		g.broker.fanout(roomTopic(roomID), m)
	}
	c.JSON(http.StatusOK, m)
}

type markReadReq struct {
	UserID string `json:"userId"`
}

func (g *Gateway) markRead(c *gin.Context) {
	roomID := c.Param("id")
	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	g.mu.Lock()
	for i := range g.rooms[roomID] {
		g.rooms[roomID][i].ReadStatus = true
	}
	g.mu.Unlock()
	logger.Debug("room " + roomID + " read by " + req.UserID)
	c.Status(http.StatusOK)
}

// save persists a message unless one with the same correlation id already
// exists in the room; the REST POST and the STOMP publish of the same send
// must not produce two rows. Returns the stored message and whether it is
// new.
func (g *Gateway) save(roomID, sender, content, clientMsgID string) (Message, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if clientMsgID != "" {
		for _, m := range g.rooms[roomID] {
			if m.ClientMsgID == clientMsgID {
				return m, false
			}
		}
	}
	g.seq++
	m := Message{
		ID:          fmt.Sprintf("m%d", g.seq),
		ChatRoomID:  roomID,
		Sender:      sender,
		Content:     content,
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
		ClientMsgID: clientMsgID,
	}
	g.rooms[roomID] = append(g.rooms[roomID], m)
	return m, true
}

func roomTopic(roomID string) string { return "/topic/chat/" + roomID }
