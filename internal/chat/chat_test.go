package chat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/store"
	"github.com/sells-group/market-intel/pkg/anthropic"
)

type stubModel struct {
	reply   string
	err     error
	lastReq anthropic.MessageRequest
}

func (s *stubModel) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.reply}},
	}, nil
}

func newTestService(t *testing.T, client anthropic.Client) *Service {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, client, "")
}

func TestSendPersistsBothTurns(t *testing.T) {
	m := &stubModel{reply: "Hello there."}
	svc := newTestService(t, m)
	ctx := context.Background()

	reply, err := svc.Send(ctx, "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", reply)

	turns, err := svc.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello there.", turns[1].Content)
}

func TestSendCarriesHistoryIntoRequest(t *testing.T) {
	m := &stubModel{reply: "Second answer."}
	svc := newTestService(t, m)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", "first question")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "s1", "second question")
	require.NoError(t, err)

	// The last request contains both prior turns plus the new message.
	require.Len(t, m.lastReq.Messages, 3)
	assert.Equal(t, "first question", m.lastReq.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, m.lastReq.Messages[1].Role)
	assert.Equal(t, "second question", m.lastReq.Messages[2].Content)
	assert.Contains(t, m.lastReq.System, "chat history")
}

func TestSendModelFailureYieldsCannedReply(t *testing.T) {
	m := &stubModel{err: eris.New("model down")}
	svc := newTestService(t, m)
	ctx := context.Background()

	reply, err := svc.Send(ctx, "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, errorReply, reply)

	// The canned reply is persisted so the transcript stays coherent.
	turns, err := svc.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, errorReply, turns[1].Content)
}

func TestSendValidation(t *testing.T) {
	svc := newTestService(t, &stubModel{reply: "x"})
	ctx := context.Background()

	_, err := svc.Send(ctx, "", "hi")
	require.Error(t, err)
	_, err = svc.Send(ctx, "s1", "   ")
	require.Error(t, err)
}

func TestSessionsAreIsolated(t *testing.T) {
	m := &stubModel{reply: "ok"}
	svc := newTestService(t, m)
	ctx := context.Background()

	_, err := svc.Send(ctx, "a", "question for a")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "b", "question for b")
	require.NoError(t, err)

	// Session b's request must not include session a's turns.
	require.Len(t, m.lastReq.Messages, 1)
	assert.Equal(t, "question for b", m.lastReq.Messages[0].Content)
}
