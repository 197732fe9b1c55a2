package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

// Completer generates text from a system instruction and a user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const answerSystem = "You are a market intelligence analyst. Answer the question using ONLY the provided context. If the context does not contain the answer, say so explicitly. Cite the source title for each claim."

// Answerer runs the retrieval-grounded answer stage.
type Answerer struct {
	registry  *Registry
	completer Completer
	topK      int
	threshold float64
}

// NewAnswerer creates an Answerer over a registry and a text completer,
// retrieving the default number of passages at the default threshold.
func NewAnswerer(registry *Registry, completer Completer) *Answerer {
	return &Answerer{
		registry:  registry,
		completer: completer,
		topK:      DefaultTopK,
		threshold: DefaultScoreThreshold,
	}
}

// Answer retrieves passages for the run's question, grounds a completion on
// them, and records the exchange in the run workspace. It never returns an
// error: a failed retrieval or completion yields an answer string describing
// the failure, so the pipeline continues to the report.
func (a *Answerer) Answer(ctx context.Context, state *model.RunState) string {
	question := state.Question

	passages, err := a.registry.Query(state.IndexHandle, question, a.topK, a.threshold)
	if err != nil {
		zap.L().Warn("retrieval failed", zap.String("run_id", state.RunID), zap.Error(err))
		return fmt.Sprintf("Could not answer the question: retrieval failed (%v).", err)
	}
	if len(passages) == 0 {
		answer := "Could not answer the question: no sufficiently relevant content was found in the collected data."
		a.logExchange(state, question, answer, nil)
		return answer
	}

	if a.completer == nil {
		answer := "Could not answer the question: no model is configured."
		a.logExchange(state, question, answer, passages)
		return answer
	}

	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, p.Title, p.Source, p.Text)
	}
	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", b.String(), question)

	answer, err := a.completer.Complete(ctx, answerSystem, user)
	switch {
	case err != nil:
		zap.L().Warn("answer completion failed", zap.String("run_id", state.RunID), zap.Error(err))
		answer = fmt.Sprintf("Could not answer the question: model call failed (%v).", err)
	case strings.TrimSpace(answer) == "":
		zap.L().Warn("answer completion empty", zap.String("run_id", state.RunID))
		answer = "Could not answer the question: the model returned an empty response."
	}

	a.logExchange(state, question, answer, passages)
	return answer
}

// logExchange appends a structured record of the question/answer pair to the
// run workspace. Failures are logged and swallowed.
func (a *Answerer) logExchange(state *model.RunState, question, answer string, passages []Passage) {
	if state.OutputDir == "" {
		return
	}

	sources := make([]string, 0, len(passages))
	for _, p := range passages {
		if p.URL != "" {
			sources = append(sources, p.URL)
		} else if p.Title != "" {
			sources = append(sources, p.Title)
		}
	}

	record := map[string]any{
		"time":     time.Now().UTC().Format(time.RFC3339),
		"question": question,
		"answer":   answer,
		"sources":  sources,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	path := filepath.Join(state.OutputDir, fmt.Sprintf("rag_responses_%s.log", state.ShortID()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		zap.L().Warn("could not write answer log", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}
