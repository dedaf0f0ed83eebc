package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"nonprofit-site/backend/pkg/jwt"
)

// Dialogflow rejects session ids longer than this.
const maxSessionIDLength = 36

// SessionSource says how a request's session was found.
type SessionSource string

const (
	SourceToken  SessionSource = "token"
	SourceCookie SessionSource = "cookie"
	SourceNew    SessionSource = "new"
)

// Resolution is the session chosen for one request.
type Resolution struct {
	ID     string
	Source SessionSource
	// Cookie is a freshly signed cookie value to send back, empty when the client
	// supplied its own token.
	Cookie string
}

// SessionResolver maps client identity onto upstream session ids.
type SessionResolver struct {
	key    []byte
	tokens *jwt.Service
}

// NewSessionResolver derives the token hashing key from secret.
func NewSessionResolver(secret string, tokens *jwt.Service) (*SessionResolver, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if tokens == nil {
		return nil, errors.New("session token service is nil")
	}
	key := blake2b.Sum256([]byte(secret))
	return &SessionResolver{key: key[:], tokens: tokens}, nil
}

// RandomSecret returns a throwaway secret for development runs without SESSION_SECRET.
func RandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Resolve picks the session for a request: a client token wins, then a valid cookie,
// else a new session is minted.
func (r *SessionResolver) Resolve(token, cookie string) (Resolution, error) {
	if token = strings.TrimSpace(token); token != "" {
		return Resolution{ID: r.DeriveID(token), Source: SourceToken}, nil
	}

	if cookie != "" {
		if claims, err := r.tokens.ValidateToken(cookie); err == nil && validSessionID(claims.SessionID) {
			// Re-sign so the cookie lives as long as the conversation does
			fresh, err := r.tokens.GenerateToken(claims.SessionID)
			if err != nil {
				return Resolution{}, fmt.Errorf("failed to sign session cookie: %w", err)
			}
			return Resolution{ID: claims.SessionID, Source: SourceCookie, Cookie: fresh}, nil
		}
	}

	id := uuid.NewString()
	signed, err := r.tokens.GenerateToken(id)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return Resolution{ID: id, Source: SourceNew, Cookie: signed}, nil
}

// DeriveID hashes a client token into a stable session id that reveals nothing about
// the token and cannot be chosen by another client.
func (r *SessionResolver) DeriveID(token string) string {
	h, err := blake2b.New(16, r.key)
	if err != nil {
		// only fails for keys over 64 bytes
		panic(err)
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

func validSessionID(id string) bool {
	return id != "" && len(id) <= maxSessionIDLength
}
