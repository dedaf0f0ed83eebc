package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nonprofit-site/backend/pkg/logger"
	"nonprofit-site/backend/pkg/resilience"
)

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) DetectIntent(ctx context.Context, q Query) (Answer, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(Answer), args.Error(1)
}

type detectorFunc func(ctx context.Context, q Query) (Answer, error)

func (f detectorFunc) DetectIntent(ctx context.Context, q Query) (Answer, error) {
	return f(ctx, q)
}

func newTestBridge(d IntentDetector, breaker *resilience.CircuitBreaker) *Bridge {
	return NewBridge(d, breaker, BridgeConfig{
		Timeout:          time.Second,
		LanguageCode:     "en-US",
		MaxMessageLength: 256,
	}, logger.Discard())
}

func TestSendMessageForwardsQuery(t *testing.T) {
	d := new(mockDetector)
	d.On("DetectIntent", mock.Anything, Query{SessionID: "S", Text: "hello", LanguageCode: "en-US"}).
		Return(Answer{FulfillmentText: "Hi! How can we help?", Intent: "Default Welcome Intent"}, nil).Once()

	reply, err := newTestBridge(d, nil).SendMessage(context.Background(), "S", "  hello ")

	require.NoError(t, err)
	assert.Equal(t, "Hi! How can we help?", reply.Text)
	assert.Equal(t, "S", reply.SessionID)
	assert.True(t, reply.Answered())
	d.AssertExpectations(t)
}

func TestSendMessageKeepsSessionAcrossTurns(t *testing.T) {
	var sessions []string
	d := detectorFunc(func(_ context.Context, q Query) (Answer, error) {
		sessions = append(sessions, q.SessionID)
		return Answer{FulfillmentText: "ok"}, nil
	})
	b := newTestBridge(d, nil)

	_, err := b.SendMessage(context.Background(), "S", "hello")
	require.NoError(t, err)
	_, err = b.SendMessage(context.Background(), "S", "what are your hours?")
	require.NoError(t, err)

	assert.Equal(t, []string{"S", "S"}, sessions)
}

func TestSendMessageUsesContextLanguage(t *testing.T) {
	d := new(mockDetector)
	d.On("DetectIntent", mock.Anything, Query{SessionID: "S", Text: "hola", LanguageCode: "es"}).
		Return(Answer{FulfillmentText: "¡Hola!"}, nil).Once()

	reply, err := newTestBridge(d, nil).SendMessage(WithLanguage(context.Background(), "es"), "S", "hola")

	require.NoError(t, err)
	assert.Equal(t, "¡Hola!", reply.Text)
	d.AssertExpectations(t)
}

func TestSendMessageRejectsInvalidInput(t *testing.T) {
	long := make([]rune, 257)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name    string
		session string
		text    string
		want    error
	}{
		{"empty", "S", "", ErrEmptyMessage},
		{"whitespace", "S", " \t\n", ErrEmptyMessage},
		{"too long", "S", string(long), ErrMessageTooLong},
		{"no session", "", "hello", ErrNoSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(mockDetector)
			_, err := newTestBridge(d, nil).SendMessage(context.Background(), tt.session, tt.text)

			assert.Equal(t, KindInvalidInput, KindOf(err))
			assert.ErrorIs(t, err, tt.want)
			d.AssertNotCalled(t, "DetectIntent", mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessageNoAnswer(t *testing.T) {
	d := new(mockDetector)
	d.On("DetectIntent", mock.Anything, mock.Anything).Return(Answer{FulfillmentText: "  "}, nil)

	reply, err := newTestBridge(d, nil).SendMessage(context.Background(), "S", "asdf")

	require.NoError(t, err)
	assert.False(t, reply.Answered())
	assert.Equal(t, OutcomeNoAnswer, reply.Outcome)
	assert.Empty(t, reply.Text)
}

func TestSendMessageTimeout(t *testing.T) {
	d := detectorFunc(func(ctx context.Context, _ Query) (Answer, error) {
		<-ctx.Done()
		return Answer{}, status.Error(codes.DeadlineExceeded, "context deadline exceeded")
	})
	b := NewBridge(d, nil, BridgeConfig{Timeout: 20 * time.Millisecond}, logger.Discard())

	_, err := b.SendMessage(context.Background(), "S", "hello")

	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestSendMessageCallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := detectorFunc(func(ctx context.Context, _ Query) (Answer, error) {
		cancel()
		return Answer{}, status.Error(codes.Canceled, "context canceled")
	})

	_, err := newTestBridge(d, nil).SendMessage(ctx, "S", "hello")

	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestSendMessageClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantCode codes.Code
	}{
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), KindUnavailable, codes.Unavailable},
		{"permission denied", status.Error(codes.PermissionDenied, "bad credentials"), KindUpstream, codes.PermissionDenied},
		{"quota", status.Error(codes.ResourceExhausted, "quota"), KindUpstream, codes.ResourceExhausted},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), KindTimeout, codes.DeadlineExceeded},
		{"plain error", errors.New("transport closed"), KindUpstream, codes.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(mockDetector)
			d.On("DetectIntent", mock.Anything, mock.Anything).Return(Answer{}, tt.err)

			_, err := newTestBridge(d, nil).SendMessage(context.Background(), "S", "hello")

			var be *Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantKind, be.Kind)
			assert.Equal(t, tt.wantCode, be.Code)
		})
	}
}

func TestSendMessageOpenBreakerSkipsCall(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "dialogflow",
		FailureThreshold: 1,
		RetryTimeout:     time.Minute,
	}, logger.Discard())

	d := new(mockDetector)
	d.On("DetectIntent", mock.Anything, mock.Anything).
		Return(Answer{}, status.Error(codes.Internal, "boom")).Once()
	b := newTestBridge(d, breaker)

	_, err := b.SendMessage(context.Background(), "S", "hello")
	require.Equal(t, KindUpstream, KindOf(err))
	require.Equal(t, resilience.StateOpen, breaker.GetState())

	_, err = b.SendMessage(context.Background(), "S", "hello again")

	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	d.AssertNumberOfCalls(t, "DetectIntent", 1)
}
