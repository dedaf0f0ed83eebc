package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nonprofit-site/backend/ai"
	"nonprofit-site/backend/internal/models"
	apperrors "nonprofit-site/backend/pkg/errors"
	"nonprofit-site/backend/pkg/i18n"
	"nonprofit-site/backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8 * 1024
)

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, sessionID, text string) (ai.Reply, error)
}

// Limiter throttles frames per session.
type Limiter interface {
	Allow(key string) bool
}

// Hub tracks open connections.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ActiveConnections returns the number of open connections.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Client is one websocket connection bound to one chat session.
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
	SessionID string

	done           chan struct{}
	handler        *Handler
	acceptLanguage string
	log            *logger.Logger
}

// Options tunes a Handler.
type Options struct {
	AllowedOrigins   []string
	MaxMessageLength int
}

// Handler upgrades chat connections.
type Handler struct {
	hub      *Hub
	chat     Chatter
	limiter  Limiter
	tr       *i18n.Translator
	opts     Options
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler creates a websocket chat handler. limiter and tr may be nil.
func NewHandler(hub *Hub, chat Chatter, limiter Limiter, tr *i18n.Translator, opts Options, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Handler{
		hub:     hub,
		chat:    chat,
		limiter: limiter,
		tr:      tr,
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(opts.AllowedOrigins),
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request and binds the connection to sessionID. header is sent
// with the upgrade response, which is how a fresh session cookie reaches the browser.
func (h *Handler) Serve(c *gin.Context, sessionID string, header http.Header) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		// the upgrader already wrote an error response
		logger.FromGin(c).Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		ID:             uuid.NewString(),
		Conn:           conn,
		Send:           make(chan []byte, 16),
		Hub:            h.hub,
		SessionID:      sessionID,
		done:           make(chan struct{}),
		handler:        h,
		acceptLanguage: c.GetHeader("Accept-Language"),
		log:            h.log.WithRequestID(c.GetString("requestID")).WithSessionID(sessionID),
	}

	if !h.hub.add(client) {
		conn.Close()
		return
	}
	client.log.Info("websocket connected", "client_id", client.ID)

	lang := ""
	if h.tr != nil {
		lang = h.tr.DialogflowLanguage(client.acceptLanguage)
	}
	ctx := ai.WithLanguage(logger.NewContext(context.Background(), client.log), lang)

	go client.WritePump()
	go client.ReadPump(ctx)
}

// ReadPump answers frames in order until the peer goes away.
func (c *Client) ReadPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(c.done)
		c.Hub.remove(c)
		c.Conn.Close()
		c.log.Info("websocket disconnected", "client_id", c.ID)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "error", err.Error())
			}
			return
		}

		out, err := json.Marshal(c.handleFrame(ctx, data))
		if err != nil {
			c.log.LogError(err, "failed to encode websocket frame")
			continue
		}
		select {
		case c.Send <- out:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) any {
	var req models.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return c.errorFrame(apperrors.ErrInvalidJSON(err))
	}

	if c.handler.limiter != nil && !c.handler.limiter.Allow("session:"+c.SessionID) {
		return c.errorFrame(apperrors.NewTooManyRequestsError("too many requests"))
	}

	reply, err := c.handler.chat.Chat(ctx, c.SessionID, req.Message)
	if err != nil {
		return c.errorFrame(apperrors.FromError(err))
	}

	resp := models.ChatResponse{SessionID: c.SessionID}
	if reply.Answered() {
		text := reply.Text
		resp.Message = &text
	}
	return resp
}

func (c *Client) errorFrame(appErr *apperrors.AppError) models.ErrorResponse {
	if appErr.MessageID == i18n.MsgMessageTooLong {
		appErr.WithData(map[string]any{"Max": c.handler.opts.MaxMessageLength})
	}
	return models.ErrorResponse{Error: appErr.Localized(c.handler.tr, c.acceptLanguage)}
}

// WritePump sends replies and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
