package chat

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/llmhub/internal/domain/audit"
	"github.com/matiasleandrokruk/llmhub/internal/domain/settings"
	"github.com/matiasleandrokruk/llmhub/internal/infra/eventbus"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

type fakeAdapter struct {
	info  llm.ProviderInfo
	reply string
	err   error
	// onGenerate runs before the reply is returned.
	onGenerate func(ctx context.Context)

	mu    sync.Mutex
	calls int
	last  llm.GenerateRequest
}

func (f *fakeAdapter) Info() llm.ProviderInfo { return f.info }

func (f *fakeAdapter) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()
	if f.onGenerate != nil {
		f.onGenerate(ctx)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	db       *sql.DB
	store    *Store
	settings *settings.Service
	registry *llm.Registry
	orch     *Orchestrator
	convID   string
}

func newHarness(t *testing.T, env map[string]string, adapters ...llm.Adapter) *harness {
	t.Helper()
	db := mustOpenDB(t)
	mustCreateUser(t, db, "user-x")
	mustCreateUser(t, db, "user-y")

	store := NewStore(db)
	settingsSvc := settings.NewService(db)
	registry := llm.NewRegistry(adapters...)
	orch := NewOrchestrator(OrchestratorDeps{
		Messages:    store,
		Providers:   registry,
		Credentials: NewCredentialResolver("", settingsSvc, envFrom(env)),
		Params:      settingsSvc,
	})

	conv, err := store.CreateConversation(context.Background(), "user-x", CreateConversationInput{
		Title: "test", ModelProvider: "openai", ModelName: "gpt-4o-mini",
	})
	require.NoError(t, err)

	return &harness{db: db, store: store, settings: settingsSvc, registry: registry, orch: orch, convID: conv.ID}
}

func (h *harness) transcript(t *testing.T) []Message {
	t.Helper()
	msgs, err := h.store.ListMessages(context.Background(), "user-x", h.convID)
	require.NoError(t, err)
	return msgs
}

func fakeProvider(id string) *fakeAdapter {
	return &fakeAdapter{
		info:  llm.ProviderInfo{ID: id, Name: strings.ToUpper(id), EnvKey: strings.ToUpper(id) + "_API_KEY", RequiresKey: true},
		reply: "hi there",
	}
}

func TestSendMessage_SuccessAppendsTwoTurns(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("mistral")
	h := newHarness(t, map[string]string{"MISTRAL_API_KEY": "env-key"}, adapter)

	reply, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "mistral", Model: "mistral-small-latest",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Content)
	require.NotNil(t, msgs[1].ModelProvider)
	require.NotNil(t, msgs[1].ModelName)
	assert.Equal(t, "mistral", *msgs[1].ModelProvider)
	assert.Equal(t, "mistral-small-latest", *msgs[1].ModelName)

	assert.Equal(t, "env-key", adapter.last.APIKey)
	assert.Equal(t, "mistral-small-latest", adapter.last.Model)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}, adapter.last.Input.Messages)
	assert.Equal(t, settings.Defaults().Params(), adapter.last.Params)
}

func TestSendMessage_UsesStoredSettingsAndHistory(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("mistral")
	h := newHarness(t, map[string]string{"MISTRAL_API_KEY": "k"}, adapter)
	ctx := context.Background()

	ms := settings.ModelSettings{Temperature: 0.1, MaxTokens: 64, TopP: 0.5, SystemPrompt: "Be brief"}
	require.NoError(t, h.settings.SaveModelSettings(ctx, "user-x", "mistral", "m", ms))

	in := SendMessageInput{UserID: "user-x", ConversationID: h.convID, Provider: "mistral", Model: "m"}
	in.Text = "first"
	_, err := h.orch.SendMessage(ctx, in)
	require.NoError(t, err)
	in.Text = "second"
	_, err = h.orch.SendMessage(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "Be brief"},
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "hi there"},
		{Role: llm.RoleUser, Content: "second"},
	}, adapter.last.Input.Messages)
	assert.Equal(t, ms.Params(), adapter.last.Params)
	assert.Len(t, h.transcript(t), 4)
}

func TestSendMessage_ProviderErrorBecomesErrorTurn(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("mistral")
	adapter.err = &llm.ProviderError{Provider: "mistral", Name: "Mistral", StatusCode: 429, Body: `{"message":"rate limited"}`}
	h := newHarness(t, map[string]string{"MISTRAL_API_KEY": "k"}, adapter)

	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "mistral", Model: "m",
	})
	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 429, perr.StatusCode)

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, `Error: Mistral API error: {"message":"rate limited"}`, msgs[1].Content)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Error:"))
	assert.Equal(t, "mistral", *msgs[1].ModelProvider)
}

func TestSendMessage_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "acme", Model: "x",
	})
	var unsupported *llm.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error: Unsupported provider: acme", msgs[1].Content)
	assert.Equal(t, "acme", *msgs[1].ModelProvider)
	assert.Equal(t, "x", *msgs[1].ModelName)
}

func TestSendMessage_MissingOpenAIKeyEndToEnd(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, nil, llm.NewOpenAIAdapter(srv.URL+"/v1", srv.Client()))

	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "openai", Model: "gpt-4o-mini",
	})
	var missing *MissingCredentialError
	require.ErrorAs(t, err, &missing)
	assert.Zero(t, hits.Load(), "no request may leave without a key")

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Error: OpenAI API key not configured. Please add your API key in settings.", msgs[1].Content)
}

func TestSendMessage_UserKeyFromSettings(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("cohere")
	h := newHarness(t, map[string]string{"COHERE_API_KEY": "env"}, adapter)
	require.NoError(t, h.settings.SaveUserSettings(context.Background(), "user-x", settings.APIKeys{Cohere: "stored"}))

	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "cohere", Model: "command-r",
	})
	require.NoError(t, err)
	assert.Equal(t, "stored", adapter.last.APIKey)
}

func TestSendMessage_ForeignConversationRecordsNothing(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("mistral")
	h := newHarness(t, map[string]string{"MISTRAL_API_KEY": "k"}, adapter)

	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-y", ConversationID: h.convID, Text: "Hello", Provider: "mistral", Model: "m",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Zero(t, adapter.Calls())
	assert.Empty(t, h.transcript(t))
}

func TestSendMessage_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "  ", Provider: "openai", Model: "m",
	})
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, h.transcript(t))
}

func TestSendMessage_CallerCancelStillStoresAssistantTurn(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := fakeProvider("mistral")
	adapter.onGenerate = func(genCtx context.Context) {
		cancel()
		assert.NoError(t, genCtx.Err(), "provider call must not see caller cancellation")
	}
	h := newHarness(t, map[string]string{"MISTRAL_API_KEY": "k"}, adapter)

	reply, err := h.orch.SendMessage(ctx, SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "mistral", Model: "m",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Len(t, h.transcript(t), 2)
}

func TestSendMessage_PublishesTurnAndAudits(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("mistral")
	h := newHarness(t, nil, adapter)

	bus := eventbus.New()
	t.Cleanup(bus.Close)
	auditSvc := audit.NewService(h.db)
	recorder := NewAuditRecorder(bus, auditSvc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go recorder.Run(ctx)

	h.orch.events = bus

	// No MISTRAL_API_KEY: the turn fails with a missing credential.
	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "mistral", Model: "m",
	})
	var missing *MissingCredentialError
	require.ErrorAs(t, err, &missing)

	var events []*audit.Event
	require.Eventually(t, func() bool {
		events, err = auditSvc.ListByEntity(context.Background(), "conversation", h.convID, 10)
		return err == nil && len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	evt := events[0]
	assert.Equal(t, AuditActionSendMessage, evt.Action)
	assert.Equal(t, "user-x", evt.ActorID)
	assert.Equal(t, audit.OutcomeError, evt.Outcome)
	assert.Contains(t, evt.Details, `"provider":"mistral"`)
	assert.Contains(t, evt.Details, "MISTRAL_API_KEY")
}

func TestSendMessage_StoreFailureAfterGenerateIsJoined(t *testing.T) {
	t.Parallel()

	adapter := fakeProvider("mistral")
	adapter.err = errors.New("upstream broke")
	h := newHarness(t, map[string]string{"MISTRAL_API_KEY": "k"}, adapter)
	adapter.onGenerate = func(context.Context) {
		_, err := h.db.Exec(`ALTER TABLE message RENAME TO message_gone`)
		require.NoError(t, err)
	}

	_, err := h.orch.SendMessage(context.Background(), SendMessageInput{
		UserID: "user-x", ConversationID: h.convID, Text: "Hello", Provider: "mistral", Model: "m",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.err)
	assert.Contains(t, err.Error(), "store error turn")
}
