package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nonprofit-site/backend/ai"
	"nonprofit-site/backend/internal/models"
	"nonprofit-site/backend/internal/service"
	apperrors "nonprofit-site/backend/pkg/errors"
	"nonprofit-site/backend/pkg/i18n"
	"nonprofit-site/backend/pkg/logger"
	"nonprofit-site/backend/pkg/middleware"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	MaxAge int
	Secure bool
}

// WebSocketServer upgrades a request into a chat connection.
type WebSocketServer interface {
	Serve(c *gin.Context, sessionID string, header http.Header)
}

// ChatController handles the chat endpoints
type ChatController struct {
	chat             *service.ChatService
	resolver         *service.SessionResolver
	tr               *i18n.Translator
	cookie           CookieConfig
	maxMessageLength int
	ws               WebSocketServer
}

// NewChatController creates a new chat controller. ws may be nil to disable websockets.
func NewChatController(
	chat *service.ChatService,
	resolver *service.SessionResolver,
	tr *i18n.Translator,
	cookie CookieConfig,
	maxMessageLength int,
	ws WebSocketServer,
) *ChatController {
	if cookie.Name == "" {
		cookie.Name = "chat_session"
	}
	return &ChatController{
		chat:             chat,
		resolver:         resolver,
		tr:               tr,
		cookie:           cookie,
		maxMessageLength: maxMessageLength,
		ws:               ws,
	}
}

// RegisterRoutes registers the chat routes. guards run before every message-sending
// route (rate limiting, request validation).
func (cc *ChatController) RegisterRoutes(router gin.IRouter, guards ...gin.HandlerFunc) {
	send := append(append([]gin.HandlerFunc{}, guards...), cc.Chat)
	router.POST("/chatbot", send...)
	router.POST("/send-msg", send...)
	router.POST("/api/v1/chat", send...)

	predict := append(append([]gin.HandlerFunc{}, guards...), cc.Predict)
	router.POST("/predict", predict...)

	router.GET("/chatbot/session", cc.GetSession)
	router.GET("/chatbot/session/history", cc.GetHistory)
	router.DELETE("/chatbot/session", cc.EndSession)

	if cc.ws != nil {
		router.GET("/chatbot/ws", cc.WebSocket)
	}
}

// Chat answers {"message": ...} with {"message": text|null, "sessionId": ...}
func (cc *ChatController) Chat(c *gin.Context) {
	reply, sessionID, ok := cc.turn(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.ChatResponse{
		Message:   replyText(reply),
		SessionID: sessionID,
	})
}

// Predict is the older route shape and answers {"answer": text|null}
func (cc *ChatController) Predict(c *gin.Context) {
	reply, _, ok := cc.turn(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.PredictResponse{Answer: replyText(reply)})
}

func (cc *ChatController) turn(c *gin.Context) (ai.Reply, string, bool) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			c.Error(apperrors.ErrRequestTooLarge(err))
		} else {
			c.Error(apperrors.ErrInvalidJSON(err))
		}
		return ai.Reply{}, "", false
	}

	token := req.SessionID
	if token == "" {
		token = c.GetHeader(middleware.SessionHeader)
	}
	sessionID, err := cc.resolve(c, token)
	if err != nil {
		c.Error(apperrors.NewInternalServerError("SESSION_ERROR", "failed to resolve session").Wrap(err))
		return ai.Reply{}, "", false
	}

	ctx := c.Request.Context()
	if cc.tr != nil {
		ctx = ai.WithLanguage(ctx, cc.tr.DialogflowLanguage(c.GetHeader("Accept-Language")))
	}

	reply, err := cc.chat.Chat(ctx, sessionID, req.Message)
	if err != nil {
		appErr := apperrors.FromError(err)
		if appErr.MessageID == i18n.MsgMessageTooLong {
			appErr.WithData(map[string]any{"Max": cc.maxMessageLength})
		}
		c.Error(appErr)
		return ai.Reply{}, "", false
	}

	return reply, sessionID, true
}

// GetSession returns the caller's session record
func (cc *ChatController) GetSession(c *gin.Context) {
	sessionID, ok := cc.existing(c)
	if !ok {
		c.Error(apperrors.ErrSessionNotFound())
		return
	}

	rec, err := cc.chat.Session(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.Error(apperrors.ErrSessionNotFound())
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetHistory returns the recorded turns of the caller's session
func (cc *ChatController) GetHistory(c *gin.Context) {
	sessionID, ok := cc.existing(c)
	if !ok {
		c.Error(apperrors.ErrSessionNotFound())
		return
	}

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.Error(apperrors.NewBadRequestError("INVALID_LIMIT", i18n.MsgInvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	turns, err := cc.chat.History(c.Request.Context(), sessionID, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "turns": turns})
}

// EndSession forgets the caller's conversation and clears the cookie
func (cc *ChatController) EndSession(c *gin.Context) {
	if sessionID, ok := cc.existing(c); ok {
		if err := cc.chat.EndSession(c.Request.Context(), sessionID); err != nil {
			c.Error(err)
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cc.cookie.Name, "", -1, "/", "", cc.cookie.Secure, true)
	c.Status(http.StatusNoContent)
}

// WebSocket upgrades to the chat socket; every frame on the connection shares one session
func (cc *ChatController) WebSocket(c *gin.Context) {
	header := http.Header{}
	res, err := cc.resolver.Resolve(requestToken(c), cc.cookieValue(c))
	if err != nil {
		c.Error(apperrors.NewInternalServerError("SESSION_ERROR", "failed to resolve session").Wrap(err))
		return
	}
	if res.Cookie != "" {
		header.Add("Set-Cookie", cc.sessionCookie(res.Cookie).String())
	}
	c.Set("sessionID", res.ID)

	cc.ws.Serve(c, res.ID, header)
}

// resolve finds the session for this request and refreshes the cookie.
func (cc *ChatController) resolve(c *gin.Context, token string) (string, error) {
	res, err := cc.resolver.Resolve(token, cc.cookieValue(c))
	if err != nil {
		return "", err
	}
	if res.Cookie != "" {
		http.SetCookie(c.Writer, cc.sessionCookie(res.Cookie))
	}
	c.Set("sessionID", res.ID)
	logger.FromGin(c).Debug("session resolved", "session_id", res.ID, "source", string(res.Source))
	return res.ID, nil
}

// existing resolves the session without minting a new one.
func (cc *ChatController) existing(c *gin.Context) (string, bool) {
	res, err := cc.resolver.Resolve(requestToken(c), cc.cookieValue(c))
	if err != nil || res.Source == service.SourceNew {
		return "", false
	}
	c.Set("sessionID", res.ID)
	return res.ID, true
}

// requestToken reads the session token from the header, falling back to the sessionId query parameter.
func requestToken(c *gin.Context) string {
	if token := c.GetHeader(middleware.SessionHeader); token != "" {
		return token
	}
	return c.Query("sessionId")
}

func (cc *ChatController) cookieValue(c *gin.Context) string {
	v, err := c.Cookie(cc.cookie.Name)
	if err != nil {
		return ""
	}
	return v
}

func (cc *ChatController) sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     cc.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   cc.cookie.MaxAge,
		Secure:   cc.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func replyText(reply ai.Reply) *string {
	if !reply.Answered() {
		return nil
	}
	text := reply.Text
	return &text
}
