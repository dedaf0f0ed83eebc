package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Query is one text turn sent to the intent detection service.
type Query struct {
	SessionID    string
	Text         string
	LanguageCode string
}

// Answer is what the intent detection service returned for a Query.
type Answer struct {
	FulfillmentText string
	Intent          string
	Confidence      float32
}

// IntentDetector is the remote conversational service. Implementations must be safe
// for concurrent use.
type IntentDetector interface {
	DetectIntent(ctx context.Context, q Query) (Answer, error)
}

// Outcome separates an answered turn from a successful turn with no reply text.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeNoAnswer Outcome = "no_answer"
)

// Reply is the result of a successful bridge call.
type Reply struct {
	SessionID string
	Text      string
	Intent    string
	Outcome   Outcome
}

// Answered reports whether the service produced reply text.
func (r Reply) Answered() bool {
	return r.Outcome == OutcomeAnswered
}

// ErrorKind classifies bridge failures.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindTimeout      ErrorKind = "timeout"
	KindUnavailable  ErrorKind = "unavailable"
	KindUpstream     ErrorKind = "upstream"
	// KindCanceled means the caller went away before the service answered.
	KindCanceled ErrorKind = "canceled"
)

// Error is returned by the bridge for every failed turn.
type Error struct {
	Kind ErrorKind
	// Code is the gRPC status of the remote call, codes.OK when no call was made.
	Code codes.Code
	Err  error
}

func (e *Error) Error() string {
	if e.Code != codes.OK {
		return fmt.Sprintf("bridge %s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("bridge %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrNoSession      = errors.New("session id is empty")
)

// KindOf returns the ErrorKind of err, or "" when err is not a bridge error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

type languageKey struct{}

// WithLanguage sets the language code the bridge should query with.
func WithLanguage(ctx context.Context, code string) context.Context {
	if code == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey{}, code)
}

// LanguageFrom returns the language code stored by WithLanguage.
func LanguageFrom(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(languageKey{}).(string)
	return code, ok && code != ""
}
