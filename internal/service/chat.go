package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nonprofit-site/backend/ai"
	"nonprofit-site/backend/internal/models"
	"nonprofit-site/backend/internal/repository"
	"nonprofit-site/backend/pkg/logger"
)

const persistTimeout = 2 * time.Second

// Sender is the part of ai.Bridge the chat service needs.
type Sender interface {
	SendMessage(ctx context.Context, sessionID, text string) (ai.Reply, error)
}

// ChatService runs one chat turn and keeps the session record and transcript current.
type ChatService struct {
	bridge   Sender
	sessions SessionStore
	turns    repository.TurnRepository
	log      *logger.Logger
	now      func() time.Time
}

// NewChatService wires the chat turn. turns may be nil when history is disabled.
func NewChatService(bridge Sender, sessions SessionStore, turns repository.TurnRepository, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &ChatService{
		bridge:   bridge,
		sessions: sessions,
		turns:    turns,
		log:      log,
		now:      time.Now,
	}
}

// Chat sends text in sessionID and returns the reply. Bookkeeping failures are logged
// and never fail the turn.
func (s *ChatService) Chat(ctx context.Context, sessionID, text string) (ai.Reply, error) {
	start := s.now()
	reply, err := s.bridge.SendMessage(ctx, sessionID, text)
	if err != nil {
		return ai.Reply{}, err
	}
	elapsed := s.now().Sub(start)

	// The reply is already paid for; finish bookkeeping even if the client hung up.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	log := logger.FromContext(ctx).WithSessionID(sessionID)
	if err := s.touch(bg, sessionID, reply); err != nil {
		log.LogError(err, "failed to update session record")
	}
	if s.turns != nil {
		turn := &models.ChatTurn{
			SessionID: sessionID,
			UserText:  text,
			ReplyText: reply.Text,
			Intent:    reply.Intent,
			Outcome:   string(reply.Outcome),
			LatencyMS: elapsed.Milliseconds(),
			CreatedAt: start,
		}
		if err := s.turns.Create(bg, turn); err != nil {
			log.LogError(err, "failed to record chat turn")
		}
	}

	return reply, nil
}

func (s *ChatService) touch(ctx context.Context, sessionID string, reply ai.Reply) error {
	now := s.now()
	rec, err := s.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		rec = &models.Session{ID: sessionID, CreatedAt: now}
	case err != nil:
		return err
	}

	rec.LastActive = now
	rec.Turns++
	if reply.Intent != "" {
		rec.LastIntent = reply.Intent
	}
	return s.sessions.Save(ctx, rec)
}

// Session returns the record of sessionID or ErrSessionNotFound.
func (s *ChatService) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// History returns up to limit recorded turns of sessionID, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string, limit int) ([]models.ChatTurn, error) {
	if s.turns == nil {
		return []models.ChatTurn{}, nil
	}
	return s.turns.ListBySession(ctx, sessionID, limit)
}

// EndSession forgets the session record and its transcript.
func (s *ChatService) EndSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.turns != nil {
		n, err := s.turns.DeleteBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete transcript: %w", err)
		}
		logger.FromContext(ctx).WithSessionID(sessionID).Info("session ended", "turns_deleted", n)
	}
	return nil
}

// Ping checks the session store.
func (s *ChatService) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}
