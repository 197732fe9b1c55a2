// Package synthesis turns collected market data into structured
// analysis through a sequence of model-backed stages. Every stage
// degrades to a documented default instead of failing: a run always
// leaves each stage with usable, typed output.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/parse"
)

// sampleSize caps how many items of each collection are embedded into
// a prompt.
const sampleSize = 5

// Synthesizer runs the four synthesis stages over a run state.
type Synthesizer struct {
	completer Completer
}

func New(completer Completer) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// runStage completes a prompt and decodes the result into a typed
// slice. Any failure along the way, including an unconfigured
// completer, commits the stage default instead.
func runStage[T any](ctx context.Context, c Completer, name, system, user string, def []T) []T {
	if c == nil {
		zap.L().Warn("synthesis stage has no model configured, using default", zap.String("stage", name))
		return def
	}
	out, err := c.Complete(ctx, system, user)
	if err != nil {
		zap.L().Error("synthesis stage completion failed, using default", zap.String("stage", name), zap.Error(err))
		return def
	}
	raw := parse.ListOfObjects(out, nil)
	if len(raw) == 0 {
		zap.L().Warn("synthesis stage output had no object list, using default",
			zap.String("stage", name), zap.String("output_head", head(out, 200)))
		return def
	}
	data, err := json.Marshal(raw)
	if err != nil {
		zap.L().Error("synthesis stage re-encode failed, using default", zap.String("stage", name), zap.Error(err))
		return def
	}
	var typed []T
	if err := json.Unmarshal(data, &typed); err != nil {
		zap.L().Error("synthesis stage decode failed, using default", zap.String("stage", name), zap.Error(err))
		return def
	}
	zap.L().Info("synthesis stage complete", zap.String("stage", name), zap.Int("items", len(typed)))
	return typed
}

// Trends identifies market trends from the collected documents.
func (s *Synthesizer) Trends(ctx context.Context, state *model.RunState) {
	system := fmt.Sprintf("You are an expert market analyst for %s. Identify key trends from the provided data. "+
		"Return a JSON array of objects, each with 'trend_name' (string), 'description' (string), "+
		"'supporting_evidence' (string, cite sources if possible), 'estimated_impact' ('High'/'Medium'/'Low'), "+
		"'timeframe' ('Short-term'/'Medium-term'/'Long-term'). Aim for 3-5 trends.", state.Domain)
	user := fmt.Sprintf("Data for %s (Query: %s):\n\nNews/Competitor Info (sample):\n%s",
		state.Domain, state.QueryOrDomain(), sampleJSON("news_sample", state.CollectedDocuments))
	state.Trends = runStage(ctx, s.completer, "trends", system, user, model.DefaultTrends())
}

// Opportunities derives market opportunities from the trends and data.
func (s *Synthesizer) Opportunities(ctx context.Context, state *model.RunState) {
	system := fmt.Sprintf("Identify market opportunities for %s based on trends, news, and competitor data. "+
		"Return JSON array: 'opportunity_name', 'description', 'target_segment', 'competitive_advantage', "+
		"'estimated_potential' (High/Medium/Low), 'timeframe_to_capture'. Min 2-3.", state.Domain)
	user := fmt.Sprintf("Context for %s:\nTrends: %s\nNews/Competitors (sample):\n%s",
		state.Domain, marshalHead(state.Trends), sampleJSON("news_sample", state.CollectedDocuments))
	state.Opportunities = runStage(ctx, s.completer, "opportunities", system, user, model.DefaultOpportunities())
}

// Recommendations turns trends and opportunities into strategy
// recommendations.
func (s *Synthesizer) Recommendations(ctx context.Context, state *model.RunState) {
	system := fmt.Sprintf("Recommend strategies for %s based on opportunities, trends, and competitor data. "+
		"Return JSON array: 'strategy_title', 'description', 'implementation_steps' (list), 'expected_outcome', "+
		"'resource_requirements', 'priority_level', 'success_metrics'. Min 2-3.", state.Domain)
	user := fmt.Sprintf("Context for %s:\nOpportunities: %s\nTrends: %s\nCompetitors (sample):\n%s",
		state.Domain, marshalHead(state.Opportunities), marshalHead(state.Trends),
		sampleJSON("competitors_sample", state.CollectedDocuments))
	state.Recommendations = runStage(ctx, s.completer, "recommendations", system, user, model.DefaultRecommendations())
}

// Template generates the markdown report template. Unlike the typed
// stages this is a plain-text completion; an empty or failed result
// falls back to a minimal skeleton.
func (s *Synthesizer) Template(ctx context.Context, state *model.RunState) {
	fallback := DefaultTemplate(state.Domain)
	if s.completer == nil {
		zap.L().Warn("template stage has no model configured, using skeleton")
		state.ReportTemplate = fallback
		return
	}
	system := fmt.Sprintf("Create a markdown report template for %s on query '%s'. "+
		"Sections: Title, Date, Prepared By, Executive Summary, Key Trends (name, desc, impact, timeframe), "+
		"Opportunities (name, desc, potential), Recommendations (title, desc, priority), Competitive Landscape, "+
		"Visualizations (placeholders like ![Chart Description](filename.png)), Appendix. No markdown fences.",
		state.Domain, state.QueryOrDomain())
	user := fmt.Sprintf("Generate template for market: %s, query: %s", state.Domain, state.QueryOrDomain())

	out, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		zap.L().Error("template stage completion failed, using skeleton", zap.Error(err))
		state.ReportTemplate = fallback
		return
	}
	tmpl := parse.StripFences(out)
	if tmpl == "" {
		zap.L().Warn("template stage returned empty output, using skeleton")
		tmpl = fallback
	}
	state.ReportTemplate = tmpl
	zap.L().Info("template stage complete", zap.Int("length", len(state.ReportTemplate)))
}

// DefaultTemplate is the minimal report skeleton used when template
// generation fails.
func DefaultTemplate(domain string) string {
	return fmt.Sprintf(`# Market Intelligence Report: %s

## Executive Summary

## Key Trends

## Opportunities

## Strategic Recommendations

## Competitive Landscape

## Appendix
`, domain)
}

// sampleJSON renders the first few documents as a keyed JSON object
// for prompt embedding.
func sampleJSON(key string, docs []model.Document) string {
	if len(docs) > sampleSize {
		docs = docs[:sampleSize]
	}
	data, err := json.Marshal(map[string]any{key: docs})
	if err != nil {
		return "{}"
	}
	return string(data)
}

// marshalHead renders up to sampleSize items of a typed collection.
func marshalHead[T any](items []T) string {
	if len(items) > sampleSize {
		items = items[:sampleSize]
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
