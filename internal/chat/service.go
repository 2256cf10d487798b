package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dietnavigator/nutrition-chat/internal/agent"
	"github.com/dietnavigator/nutrition-chat/internal/event"
	"github.com/dietnavigator/nutrition-chat/internal/identity"
	"github.com/dietnavigator/nutrition-chat/internal/session"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Transcript channels.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
)

// DeltaFunc receives incremental reply text while a turn streams. Returning
// an error aborts the turn.
type DeltaFunc func(text string) error

// Service runs chat turns: bind session, build message, stream, fold.
type Service struct {
	binder  *session.Binder
	builder *Builder
	runtime agent.Runtime
	policy  event.Policy
	log     ConversationLogger
	logger  *slog.Logger
}

// NewService wires a Service. A nil policy disables the blind-image filter
// and a nil conversation logger discards transcripts.
func NewService(binder *session.Binder, builder *Builder, runtime agent.Runtime, policy event.Policy, conversationLogger ConversationLogger, logger *slog.Logger) *Service {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		binder:  binder,
		builder: builder,
		runtime: runtime,
		policy:  policy,
		log:     conversationLogger,
		logger:  logger,
	}
}

// Ask runs one turn to completion and returns the aggregated reply.
func (s *Service) Ask(ctx context.Context, store session.Store, req Request) (string, error) {
	return s.run(ctx, store, req, ChannelHTTP, nil)
}

// Stream runs one turn, calling onDelta for each incremental fragment, and
// returns the aggregated reply.
func (s *Service) Stream(ctx context.Context, store session.Store, req Request, onDelta DeltaFunc) (string, error) {
	return s.run(ctx, store, req, ChannelWebSocket, onDelta)
}

// Bind makes sure the visitor has a remote session without sending a turn.
func (s *Service) Bind(ctx context.Context, store session.Store) (session.Pair, error) {
	pair, err := s.binder.Ensure(ctx, store)
	if err != nil {
		return session.Pair{}, fmt.Errorf("bind session: %w", err)
	}
	return pair, nil
}

// Reset forgets the visitor's remote session.
func (s *Service) Reset(ctx context.Context, store session.Store) error {
	return session.Reset(ctx, store)
}

func (s *Service) run(ctx context.Context, store session.Store, req Request, channel string, onDelta DeltaFunc) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	pair, err := s.Bind(ctx, store)
	if err != nil {
		return "", err
	}

	msg, err := s.builder.Build(ctx, req)
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	reqID := chiMiddleware.GetReqID(ctx)
	s.logger.Info("Agent chat request",
		"user_id", pair.UserID,
		"session_id", pair.SessionID,
		"email", identity.UserEmailFromContext(ctx),
		"prompt_length", len(req.Prompt),
		"image", req.HasImage(),
	)
	s.log.Log(ConversationLogEvent{
		UserID:     pair.UserID,
		SessionID:  pair.SessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Prompt,
		Meta: map[string]any{
			"request_id": reqID,
			"image":      req.HasImage(),
		},
	})

	agg := event.NewAggregator(s.policy, req.HasImage())
	q := agent.Query{UserID: pair.UserID, SessionID: pair.SessionID, Message: msg}
	events := 0
	for ev, err := range s.runtime.StreamQuery(ctx, q) {
		if err != nil {
			s.logAssistantMessage(pair, channel, agg.Reply(), events, true, err.Error(), reqID)
			return "", fmt.Errorf("stream query: %w", err)
		}
		events++
		agg.Add(ev)
		if onDelta != nil && ev.Kind == event.KindDelta && ev.Text != "" {
			if err := onDelta(ev.Text); err != nil {
				s.logAssistantMessage(pair, channel, agg.Reply(), events, true, err.Error(), reqID)
				return "", fmt.Errorf("deliver delta: %w", err)
			}
		}
	}

	reply := agg.Reply()
	s.logAssistantMessage(pair, channel, reply, events, false, "", reqID)
	return reply, nil
}

func (s *Service) logAssistantMessage(pair session.Pair, channel, content string, events int, partial bool, streamErrMsg, requestID string) {
	s.log.Log(ConversationLogEvent{
		UserID:     pair.UserID,
		SessionID:  pair.SessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Meta: map[string]any{
			"stream_events": events,
			"partial":       partial,
			"stream_error":  streamErrMsg,
			"request_id":    requestID,
		},
	})
}
