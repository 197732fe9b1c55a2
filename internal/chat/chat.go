// Package chat provides session-scoped conversation with the model,
// with history persisted through the run-state store.
package chat

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/store"
	"github.com/sells-group/market-intel/pkg/anthropic"
)

const (
	systemPrompt = "You are a helpful assistant. Respond to the user's query based on the provided chat history."

	// errorReply is persisted and returned when the model call fails,
	// so the transcript stays consistent for the next turn.
	errorReply = "Sorry, I encountered an error while processing your message."

	historyLimit = 50
)

// Service answers chat messages with full session history as context.
type Service struct {
	store  store.Store
	client anthropic.Client
	model  string
}

func NewService(st store.Store, client anthropic.Client, modelName string) *Service {
	if modelName == "" {
		modelName = anthropic.DefaultModel
	}
	return &Service{store: st, client: client, model: modelName}
}

// Send records the user message, completes a reply over the session
// history and records that too. Model failures yield a canned reply
// rather than an error; only invalid input or a broken store fail.
func (s *Service) Send(ctx context.Context, sessionID, message string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return "", eris.New("chat: session id is required")
	}
	if message == "" {
		return "", eris.New("chat: message is empty")
	}
	log := zap.L().With(zap.String("session_id", sessionID))

	history, err := s.store.ListTurns(ctx, sessionID, historyLimit)
	if err != nil {
		return "", eris.Wrap(err, "chat: load history")
	}
	if err := s.store.AppendTurn(ctx, model.ChatTurn{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   message,
	}); err != nil {
		return "", eris.Wrap(err, "chat: persist user turn")
	}

	reply := s.complete(ctx, history, message)

	if err := s.store.AppendTurn(ctx, model.ChatTurn{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   reply,
	}); err != nil {
		return "", eris.Wrap(err, "chat: persist assistant turn")
	}
	log.Info("chat turn complete", zap.Int("history", len(history)), zap.Int("reply_chars", len(reply)))
	return reply, nil
}

func (s *Service) complete(ctx context.Context, history []model.ChatTurn, message string) string {
	if s.client == nil {
		zap.L().Warn("chat has no model configured")
		return errorReply
	}
	messages := make([]anthropic.Message, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role != model.RoleUser && turn.Role != model.RoleAssistant {
			continue
		}
		messages = append(messages, anthropic.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, anthropic.Message{Role: model.RoleUser, Content: message})

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:    s.model,
		System:   systemPrompt,
		Messages: messages,
	})
	if err != nil {
		zap.L().Error("chat completion failed", zap.Error(err))
		return errorReply
	}
	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		zap.L().Warn("chat completion returned empty reply")
		return errorReply
	}
	return reply
}

// History returns the most recent turns of a session in ascending
// time order.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]model.ChatTurn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, eris.New("chat: session id is required")
	}
	return s.store.ListTurns(ctx, sessionID, limit)
}
