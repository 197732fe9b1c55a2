package synthesis

import (
	"context"

	"github.com/sells-group/market-intel/pkg/anthropic"
)

// Completer produces a text completion from a system instruction and a
// user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ModelCompleter backs Completer with the Anthropic messages API. The
// same value also serves the retrieval answerer and the chat service.
type ModelCompleter struct {
	client anthropic.Client
	model  string
}

// NewModelCompleter wraps client for the given model. An empty model
// falls back to the package default.
func NewModelCompleter(client anthropic.Client, model string) *ModelCompleter {
	if model == "" {
		model = anthropic.DefaultModel
	}
	return &ModelCompleter{client: client, model: model}
}

func (m *ModelCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return anthropic.Complete(ctx, m.client, m.model, system, user)
}
