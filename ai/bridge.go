package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nonprofit-site/backend/pkg/logger"
	"nonprofit-site/backend/pkg/resilience"
)

const instrumentationName = "nonprofit-site/backend/ai"

// BridgeConfig tunes a Bridge.
type BridgeConfig struct {
	// Timeout bounds every outbound call.
	Timeout time.Duration
	// LanguageCode is used when the request context carries none.
	LanguageCode string
	// MaxMessageLength is the rune limit for a message; zero disables the check.
	MaxMessageLength int
}

// Bridge translates chat messages into intent detection calls and returns the reply text.
type Bridge struct {
	detector IntentDetector
	breaker  *resilience.CircuitBreaker
	cfg      BridgeConfig
	log      *logger.Logger

	tracer   trace.Tracer
	turns    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewBridge creates a Bridge over detector. breaker may be nil.
func NewBridge(detector IntentDetector, breaker *resilience.CircuitBreaker, cfg BridgeConfig, log *logger.Logger) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	meter := otel.Meter(instrumentationName)
	turns, err := meter.Int64Counter("chat.bridge.turns",
		metric.WithDescription("Chat turns forwarded to the intent detection service, by outcome"))
	if err != nil {
		log.LogError(err, "failed to create bridge turn counter")
	}
	duration, err := meter.Float64Histogram("chat.bridge.duration",
		metric.WithDescription("Latency of intent detection calls"),
		metric.WithUnit("s"))
	if err != nil {
		log.LogError(err, "failed to create bridge latency histogram")
	}

	return &Bridge{
		detector: detector,
		breaker:  breaker,
		cfg:      cfg,
		log:      log,
		tracer:   otel.Tracer(instrumentationName),
		turns:    turns,
		duration: duration,
	}
}

// SendMessage forwards text in the given session and waits for the single reply.
// Every failure comes back as *Error; a reply without text is a successful
// Reply with OutcomeNoAnswer.
func (b *Bridge) SendMessage(ctx context.Context, sessionID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return Reply{}, &Error{Kind: KindInvalidInput, Err: ErrNoSession}
	}
	if text == "" {
		return Reply{}, &Error{Kind: KindInvalidInput, Err: ErrEmptyMessage}
	}
	if b.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > b.cfg.MaxMessageLength {
		return Reply{}, &Error{Kind: KindInvalidInput, Err: ErrMessageTooLong}
	}

	lang := b.cfg.LanguageCode
	if l, ok := LanguageFrom(ctx); ok {
		lang = l
	}

	ctx, span := b.tracer.Start(ctx, "bridge.SendMessage", trace.WithAttributes(
		attribute.String("chat.session_id", sessionID),
		attribute.String("chat.language", lang),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	q := Query{SessionID: sessionID, Text: text, LanguageCode: lang}
	var answer Answer
	call := func(ctx context.Context) error {
		a, err := b.detector.DetectIntent(ctx, q)
		if err != nil {
			return err
		}
		answer = a
		return nil
	}

	start := time.Now()
	var err error
	if b.breaker != nil {
		err = b.breaker.ExecuteContext(callCtx, call)
	} else {
		err = call(callCtx)
	}
	elapsed := time.Since(start)

	log := logger.FromContext(ctx).WithSessionID(sessionID)

	if err != nil {
		bridgeErr := classify(callCtx, err)
		b.record(ctx, string(bridgeErr.Kind), elapsed)
		span.RecordError(bridgeErr)
		span.SetStatus(codes.Error, string(bridgeErr.Kind))
		log.Warn("intent detection failed",
			"kind", string(bridgeErr.Kind),
			"code", bridgeErr.Code.String(),
			"error", err.Error(),
			"latency_ms", elapsed.Milliseconds(),
		)
		return Reply{}, bridgeErr
	}

	reply := Reply{
		SessionID: sessionID,
		Text:      answer.FulfillmentText,
		Intent:    answer.Intent,
		Outcome:   OutcomeAnswered,
	}
	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = ""
		reply.Outcome = OutcomeNoAnswer
	}

	b.record(ctx, string(reply.Outcome), elapsed)
	span.SetAttributes(
		attribute.String("chat.intent", reply.Intent),
		attribute.String("chat.outcome", string(reply.Outcome)),
	)
	log.Debug("intent detected",
		"intent", reply.Intent,
		"outcome", string(reply.Outcome),
		"latency_ms", elapsed.Milliseconds(),
	)
	return reply, nil
}

func (b *Bridge) record(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if b.turns != nil {
		b.turns.Add(ctx, 1, attrs)
	}
	if b.duration != nil {
		b.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// classify maps a failed call to a bridge error. ctx is the bounded call context.
func classify(ctx context.Context, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &Error{Kind: KindUnavailable, Err: err}
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Code: grpccodes.DeadlineExceeded, Err: err}
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Code: grpccodes.Canceled, Err: err}
	}

	st, ok := status.FromError(err)
	if !ok {
		return &Error{Kind: KindUpstream, Code: grpccodes.Unknown, Err: err}
	}

	switch st.Code() {
	case grpccodes.DeadlineExceeded:
		return &Error{Kind: KindTimeout, Code: st.Code(), Err: err}
	case grpccodes.Unavailable:
		return &Error{Kind: KindUnavailable, Code: st.Code(), Err: err}
	case grpccodes.Canceled:
		return &Error{Kind: KindCanceled, Code: st.Code(), Err: err}
	case grpccodes.OK:
		// status.FromError reports OK only for nil errors
		return &Error{Kind: KindUpstream, Code: grpccodes.Unknown, Err: err}
	default:
		return &Error{Kind: KindUpstream, Code: st.Code(), Err: err}
	}
}
