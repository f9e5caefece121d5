package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/matiasleandrokruk/llmhub/internal/domain/audit"
	"github.com/matiasleandrokruk/llmhub/internal/infra/eventbus"
)

// TopicTurnCompleted is published once per SendMessage, after the assistant
// turn is stored.
const TopicTurnCompleted = "chat.turn_completed"

// AuditActionSendMessage is the audit action recorded for each turn.
const AuditActionSendMessage = "chat.send_message"

// TurnCompletedEvent is the payload of TopicTurnCompleted. Error is empty on success.
type TurnCompletedEvent struct {
	UserID         string
	ConversationID string
	Provider       string
	Model          string
	Error          string
	Latency        time.Duration
	OccurredAt     time.Time
}

type AuditLogger interface {
	LogWithDetails(
		ctx context.Context,
		actorID string,
		actorType audit.ActorType,
		action string,
		entityType *string,
		entityID *string,
		details *audit.EventDetails,
		outcome audit.Outcome,
	) error
}

// AuditRecorder turns TurnCompletedEvents into audit rows.
type AuditRecorder struct {
	events <-chan eventbus.Event
	audit  AuditLogger
	logger *slog.Logger
}

// NewAuditRecorder subscribes immediately so no event published after it
// returns is missed.
func NewAuditRecorder(bus eventbus.EventBus, auditLog AuditLogger, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{
		events: bus.Subscribe(TopicTurnCompleted),
		audit:  auditLog,
		logger: logger,
	}
}

// Run consumes events until ctx is done or the bus is closed.
func (r *AuditRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-r.events:
			if !ok {
				return
			}
			turn, ok := evt.Payload.(TurnCompletedEvent)
			if !ok {
				continue
			}
			r.record(ctx, turn)
		}
	}
}

func (r *AuditRecorder) record(ctx context.Context, turn TurnCompletedEvent) {
	entityType := "conversation"
	entityID := turn.ConversationID
	outcome := audit.OutcomeSuccess
	meta := map[string]any{
		"provider":   turn.Provider,
		"model":      turn.Model,
		"latency_ms": turn.Latency.Milliseconds(),
	}
	if turn.Error != "" {
		outcome = audit.OutcomeError
		meta["error"] = turn.Error
	}

	err := r.audit.LogWithDetails(ctx, turn.UserID, audit.ActorTypeUser, AuditActionSendMessage,
		&entityType, &entityID, &audit.EventDetails{Metadata: meta}, outcome)
	if err != nil {
		r.logger.Warn("audit record failed",
			"action", AuditActionSendMessage,
			"conversation_id", turn.ConversationID,
			"error", err)
	}
}
