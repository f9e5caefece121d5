package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/matiasleandrokruk/llmhub/internal/domain/settings"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

// ErrorTurnPrefix starts the content of every assistant turn recording a failure.
const ErrorTurnPrefix = "Error: "

type MessageStore interface {
	AppendMessage(ctx context.Context, userID string, in AppendMessageInput) (*Message, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]Message, error)
}

type ProviderLookup interface {
	Lookup(provider string) (llm.Adapter, error)
}

type CredentialSource interface {
	Resolve(ctx context.Context, userID string, info llm.ProviderInfo) (string, error)
}

type ParamResolver interface {
	ResolveParams(ctx context.Context, userID, provider, model string) (settings.ModelSettings, error)
}

type Publisher interface {
	Publish(topic string, payload any)
}

// OrchestratorDeps wires an Orchestrator. Events and Logger are optional.
type OrchestratorDeps struct {
	Messages    MessageStore
	Providers   ProviderLookup
	Credentials CredentialSource
	Params      ParamResolver
	Events      Publisher
	Logger      *slog.Logger
}

// Orchestrator runs one chat turn: store the user message, call the provider,
// store exactly one assistant message.
type Orchestrator struct {
	messages    MessageStore
	providers   ProviderLookup
	credentials CredentialSource
	params      ParamResolver
	events      Publisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		messages:    deps.Messages,
		providers:   deps.Providers,
		credentials: deps.Credentials,
		params:      deps.Params,
		events:      deps.Events,
		logger:      logger,
		now:         time.Now,
	}
}

type SendMessageInput struct {
	UserID         string
	ConversationID string
	Text           string
	Provider       string
	Model          string
}

// SendMessage returns the assistant reply. If the user turn cannot be stored
// nothing is recorded. Any later failure is stored as an "Error: " assistant
// turn tagged with the requested provider and model, and returned.
func (o *Orchestrator) SendMessage(ctx context.Context, in SendMessageInput) (string, error) {
	if strings.TrimSpace(in.Text) == "" {
		return "", ErrEmptyContent
	}

	if _, err := o.messages.AppendMessage(ctx, in.UserID, AppendMessageInput{
		ConversationID: in.ConversationID,
		Role:           llm.RoleUser,
		Content:        in.Text,
	}); err != nil {
		return "", err
	}

	// The user turn is stored; the assistant turn must follow even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	start := o.now()

	reply, genErr := o.generate(ctx, in)

	content := reply
	if genErr != nil {
		content = ErrorTurnPrefix + genErr.Error()
	}
	_, appendErr := o.messages.AppendMessage(ctx, in.UserID, AppendMessageInput{
		ConversationID: in.ConversationID,
		Role:           llm.RoleAssistant,
		Content:        content,
		ModelProvider:  in.Provider,
		ModelName:      in.Model,
	})

	latency := o.now().Sub(start)
	o.publish(in, genErr, latency)

	if genErr != nil {
		o.logger.Warn("chat turn failed",
			"conversation_id", in.ConversationID,
			"provider", in.Provider,
			"model", in.Model,
			"latency_ms", latency.Milliseconds(),
			"error", genErr)
		if appendErr != nil {
			return "", errors.Join(genErr, fmt.Errorf("chat: store error turn: %w", appendErr))
		}
		return "", genErr
	}
	if appendErr != nil {
		return "", fmt.Errorf("chat: store assistant turn: %w", appendErr)
	}

	o.logger.Info("chat turn completed",
		"conversation_id", in.ConversationID,
		"provider", in.Provider,
		"model", in.Model,
		"latency_ms", latency.Milliseconds())
	return reply, nil
}

func (o *Orchestrator) generate(ctx context.Context, in SendMessageInput) (string, error) {
	history, err := o.messages.ListMessages(ctx, in.UserID, in.ConversationID)
	if err != nil {
		return "", err
	}

	adapter, err := o.providers.Lookup(in.Provider)
	if err != nil {
		return "", err
	}
	info := adapter.Info()

	key, err := o.credentials.Resolve(ctx, in.UserID, info)
	if err != nil {
		return "", err
	}

	ms, err := o.params.ResolveParams(ctx, in.UserID, in.Provider, in.Model)
	if err != nil {
		return "", err
	}

	return adapter.Generate(ctx, llm.GenerateRequest{
		Model:  in.Model,
		APIKey: key,
		Input:  llm.Normalize(toLLMMessages(history), ms.SystemPrompt, info.Shape),
		Params: ms.Params(),
	})
}

func (o *Orchestrator) publish(in SendMessageInput, genErr error, latency time.Duration) {
	if o.events == nil {
		return
	}
	evt := TurnCompletedEvent{
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		Provider:       in.Provider,
		Model:          in.Model,
		Latency:        latency,
		OccurredAt:     o.now().UTC(),
	}
	if genErr != nil {
		evt.Error = genErr.Error()
	}
	o.events.Publish(TopicTurnCompleted, evt)
}

func toLLMMessages(history []Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
