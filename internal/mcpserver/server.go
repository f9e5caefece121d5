// Package mcpserver exposes the chat services as Model Context Protocol tools
// so MCP clients can browse models and converse on behalf of one user.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matiasleandrokruk/llmhub/internal/app"
	"github.com/matiasleandrokruk/llmhub/internal/domain/catalog"
	"github.com/matiasleandrokruk/llmhub/internal/domain/chat"
	"github.com/matiasleandrokruk/llmhub/internal/version"
)

var errNoUser = errors.New("mcpserver: user id is required")

type ListModelsInput struct {
	Category string `json:"category,omitempty" jsonschema:"only models in this category"`
	All      bool   `json:"all,omitempty" jsonschema:"include disabled models"`
}

type ListModelsOutput struct {
	Models []catalog.Model `json:"models"`
}

type ListConversationsInput struct{}

type ListConversationsOutput struct {
	Conversations []chat.Conversation `json:"conversations"`
}

type CreateConversationInput struct {
	Title    string `json:"title" jsonschema:"conversation title"`
	Provider string `json:"provider" jsonschema:"provider id such as openai or anthropic"`
	Model    string `json:"model" jsonschema:"provider model name"`
}

type CreateConversationOutput struct {
	Conversation chat.Conversation `json:"conversation"`
}

type SendMessageInput struct {
	ConversationID string `json:"conversationId" jsonschema:"conversation to append to"`
	Message        string `json:"message" jsonschema:"user message text"`
	Provider       string `json:"provider,omitempty" jsonschema:"overrides the conversation provider"`
	Model          string `json:"model,omitempty" jsonschema:"overrides the conversation model"`
}

type SendMessageOutput struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type tools struct {
	app    *app.App
	userID string
	logger *slog.Logger
}

// New builds an MCP server whose tools act as userID.
func New(a *app.App, userID string) (*mcp.Server, error) {
	if userID == "" {
		return nil, errNoUser
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &tools{app: a, userID: userID, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{Name: version.Name, Version: version.Version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_models",
		Description: "List catalog models. Only enabled models unless all is set.",
	}, t.listModels)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_conversations",
		Description: "List the user's most recently updated conversations.",
	}, t.listConversations)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_conversation",
		Description: "Start a conversation bound to a provider and model.",
	}, t.createConversation)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a user message and return the assistant reply. Both turns are stored.",
	}, t.sendMessage)
	return server, nil
}

// Serve runs the MCP server over stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, a *app.App, userID string) error {
	server, err := New(a, userID)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (t *tools) listModels(ctx context.Context, _ *mcp.CallToolRequest, in ListModelsInput) (*mcp.CallToolResult, ListModelsOutput, error) {
	var (
		models []catalog.Model
		err    error
	)
	switch {
	case in.Category != "":
		models, err = t.app.Catalog.ListByCategory(ctx, in.Category)
	case in.All:
		models, err = t.app.Catalog.ListAll(ctx)
	default:
		models, err = t.app.Catalog.ListEnabled(ctx)
	}
	if err != nil {
		return nil, ListModelsOutput{}, err
	}
	if models == nil {
		models = []catalog.Model{}
	}
	return nil, ListModelsOutput{Models: models}, nil
}

func (t *tools) listConversations(ctx context.Context, _ *mcp.CallToolRequest, _ ListConversationsInput) (*mcp.CallToolResult, ListConversationsOutput, error) {
	convs, err := t.app.Chat.ListConversations(ctx, t.userID)
	if err != nil {
		return nil, ListConversationsOutput{}, err
	}
	return nil, ListConversationsOutput{Conversations: convs}, nil
}

func (t *tools) createConversation(ctx context.Context, _ *mcp.CallToolRequest, in CreateConversationInput) (*mcp.CallToolResult, CreateConversationOutput, error) {
	conv, err := t.app.Chat.CreateConversation(ctx, t.userID, chat.CreateConversationInput{
		Title:         in.Title,
		ModelProvider: in.Provider,
		ModelName:     in.Model,
	})
	if err != nil {
		return nil, CreateConversationOutput{}, err
	}
	return nil, CreateConversationOutput{Conversation: *conv}, nil
}

func (t *tools) sendMessage(ctx context.Context, _ *mcp.CallToolRequest, in SendMessageInput) (*mcp.CallToolResult, SendMessageOutput, error) {
	provider, model := in.Provider, in.Model
	if provider == "" || model == "" {
		conv, err := t.app.Chat.GetConversation(ctx, t.userID, in.ConversationID)
		if err != nil {
			return nil, SendMessageOutput{}, err
		}
		if provider == "" {
			provider = conv.ModelProvider
		}
		if model == "" {
			model = conv.ModelName
		}
	}

	reply, err := t.app.Orchestrator.SendMessage(ctx, chat.SendMessageInput{
		UserID:         t.userID,
		ConversationID: in.ConversationID,
		Text:           in.Message,
		Provider:       provider,
		Model:          model,
	})
	if err != nil {
		t.logger.Warn("mcp send_message failed", "conversation_id", in.ConversationID, "error", err)
		return nil, SendMessageOutput{}, err
	}
	return nil, SendMessageOutput{Content: reply, Provider: provider, Model: model}, nil
}
