package synthesis

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
)

type stubCompleter struct {
	out     string
	err     error
	lastSys string
	lastUsr string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.lastSys = system
	s.lastUsr = user
	return s.out, s.err
}

func testState(t *testing.T) *model.RunState {
	t.Helper()
	state, err := model.NewRunState("Technology", "AI adoption", "")
	require.NoError(t, err)
	return state
}

func TestTrendsParsesModelOutput(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{out: "Here you go:\n```json\n[" +
		`{"trend_name":"Edge AI","description":"Inference moves on-device.","supporting_evidence":"vendor launches","estimated_impact":"High","timeframe":"Short-term"}` +
		"]\n```"}
	state := testState(t)

	New(c).Trends(context.Background(), state)

	require.Len(t, state.Trends, 1)
	assert.Equal(t, "Edge AI", state.Trends[0].Name)
	assert.Equal(t, "High", state.Trends[0].Impact)
	assert.Contains(t, c.lastSys, "Technology")
	assert.Contains(t, c.lastUsr, "AI adoption")
}

func TestTrendsDefaultsOnCompletionError(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{err: eris.New("model unavailable")}
	state := testState(t)

	New(c).Trends(context.Background(), state)

	require.Len(t, state.Trends, 1)
	assert.Equal(t, "Default Trend", state.Trends[0].Name)
	assert.Equal(t, "N/A", state.Trends[0].Evidence)
}

func TestTrendsDefaultsOnGarbageOutput(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{out: "I could not find any structured data, sorry."}
	state := testState(t)

	New(c).Trends(context.Background(), state)

	require.Len(t, state.Trends, 1)
	assert.Equal(t, "Default Trend", state.Trends[0].Name)
}

func TestTrendsDefaultsWithoutCompleter(t *testing.T) {
	t.Parallel()
	state := testState(t)

	New(nil).Trends(context.Background(), state)

	require.Len(t, state.Trends, 1)
	assert.Equal(t, "Default Trend", state.Trends[0].Name)
}

func TestOpportunitiesCarriesTrendContext(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{out: `[{"opportunity_name":"SMB automation","description":"Underserved segment.","estimated_potential":"Medium"}]`}
	state := testState(t)
	state.Trends = []model.Trend{{Name: "Edge AI", Description: "on-device"}}

	New(c).Opportunities(context.Background(), state)

	require.Len(t, state.Opportunities, 1)
	assert.Equal(t, "SMB automation", state.Opportunities[0].Name)
	assert.Contains(t, c.lastUsr, "Edge AI")
}

func TestRecommendationsDecodeSteps(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{out: `[{"strategy_title":"Partner program","description":"Build channel.","implementation_steps":["recruit","train"],"priority_level":"High"}]`}
	state := testState(t)

	New(c).Recommendations(context.Background(), state)

	require.Len(t, state.Recommendations, 1)
	assert.Equal(t, "Partner program", state.Recommendations[0].Title)
	assert.Equal(t, []string{"recruit", "train"}, state.Recommendations[0].Steps)
}

func TestRecommendationsDefaultOnFailure(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{err: eris.New("timeout")}
	state := testState(t)

	New(c).Recommendations(context.Background(), state)

	require.Len(t, state.Recommendations, 1)
	assert.Equal(t, "Default Strategy", state.Recommendations[0].Title)
}

func TestTemplateStripsFences(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{out: "```markdown\n# Market Intelligence Report: Technology\n\n## Executive Summary\n```"}
	state := testState(t)

	New(c).Template(context.Background(), state)

	assert.Contains(t, state.ReportTemplate, "# Market Intelligence Report: Technology")
	assert.NotContains(t, state.ReportTemplate, "```")
}

func TestTemplateFallsBackToSkeleton(t *testing.T) {
	t.Parallel()
	cases := map[string]*stubCompleter{
		"error":  {err: eris.New("down")},
		"empty":  {out: "   "},
		"fences": {out: "```\n```"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			state := testState(t)
			New(c).Template(context.Background(), state)
			assert.Contains(t, state.ReportTemplate, "# Market Intelligence Report: Technology")
			assert.Contains(t, state.ReportTemplate, "## Executive Summary")
		})
	}
}

func TestPromptSamplesAreCapped(t *testing.T) {
	t.Parallel()
	c := &stubCompleter{out: `[{"trend_name":"x"}]`}
	state := testState(t)
	for i := 0; i < 10; i++ {
		state.CollectedDocuments = append(state.CollectedDocuments, model.Document{
			Title: fmt.Sprintf("doc-%02d", i),
		})
	}

	New(c).Trends(context.Background(), state)

	assert.Contains(t, c.lastUsr, "doc-04")
	assert.NotContains(t, c.lastUsr, "doc-05")
}
