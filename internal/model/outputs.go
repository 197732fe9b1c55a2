package model

import "encoding/json"

// Synthesis outputs are typed shapes with explicit required fields plus an
// Extra map catching provider-specific keys the model volunteers beyond the
// requested schema. Custom JSON round-tripping keeps the original wire keys.

// Trend is one market trend identified by the trend-analysis stage.
type Trend struct {
	Name        string         `json:"-"`
	Description string         `json:"-"`
	Evidence    string         `json:"-"`
	Impact      string         `json:"-"` // High / Medium / Low
	Timeframe   string         `json:"-"` // Short-term / Medium-term / Long-term
	Extra       map[string]any `json:"-"`
}

// Opportunity is one market opportunity identified by the opportunity stage.
type Opportunity struct {
	Name          string         `json:"-"`
	Description   string         `json:"-"`
	TargetSegment string         `json:"-"`
	Advantage     string         `json:"-"`
	Potential     string         `json:"-"` // High / Medium / Low
	Timeframe     string         `json:"-"`
	Extra         map[string]any `json:"-"`
}

// Recommendation is one strategic recommendation from the strategy stage.
type Recommendation struct {
	Title       string         `json:"-"`
	Description string         `json:"-"`
	Steps       []string       `json:"-"`
	Outcome     string         `json:"-"`
	Resources   string         `json:"-"`
	Priority    string         `json:"-"`
	Metrics     string         `json:"-"`
	Extra       map[string]any `json:"-"`
}

// DefaultTrends is the safe placeholder committed when trend analysis fails.
func DefaultTrends() []Trend {
	return []Trend{{
		Name:        "Default Trend",
		Description: "No specific trends identified.",
		Evidence:    "N/A",
		Impact:      "Unknown",
		Timeframe:   "Unknown",
	}}
}

// DefaultOpportunities is the placeholder for a failed opportunity stage.
func DefaultOpportunities() []Opportunity {
	return []Opportunity{{
		Name:        "Default Opportunity",
		Description: "N/A",
	}}
}

// DefaultRecommendations is the placeholder for a failed strategy stage.
func DefaultRecommendations() []Recommendation {
	return []Recommendation{{
		Title:       "Default Strategy",
		Description: "N/A",
	}}
}

func popString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	s, _ := v.(string)
	return s
}

func popStrings(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	delete(m, key)
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

func extraOrNil(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// UnmarshalJSON decodes a trend object, capturing unknown keys into Extra.
func (t *Trend) UnmarshalJSON(data []byte) error {
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	t.Name = popString(m, "trend_name")
	t.Description = popString(m, "description")
	t.Evidence = popString(m, "supporting_evidence")
	t.Impact = popString(m, "estimated_impact")
	t.Timeframe = popString(m, "timeframe")
	t.Extra = extraOrNil(m)
	return nil
}

// MarshalJSON encodes a trend using the original wire keys.
func (t Trend) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"trend_name":          t.Name,
		"description":         t.Description,
		"supporting_evidence": t.Evidence,
		"estimated_impact":    t.Impact,
		"timeframe":           t.Timeframe,
	}
	for k, v := range t.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes an opportunity object, capturing unknown keys into Extra.
func (o *Opportunity) UnmarshalJSON(data []byte) error {
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	o.Name = popString(m, "opportunity_name")
	o.Description = popString(m, "description")
	o.TargetSegment = popString(m, "target_segment")
	o.Advantage = popString(m, "competitive_advantage")
	o.Potential = popString(m, "estimated_potential")
	o.Timeframe = popString(m, "timeframe_to_capture")
	o.Extra = extraOrNil(m)
	return nil
}

// MarshalJSON encodes an opportunity using the original wire keys.
func (o Opportunity) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"opportunity_name":      o.Name,
		"description":           o.Description,
		"target_segment":        o.TargetSegment,
		"competitive_advantage": o.Advantage,
		"estimated_potential":   o.Potential,
		"timeframe_to_capture":  o.Timeframe,
	}
	for k, v := range o.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a recommendation object, capturing unknown keys into Extra.
func (r *Recommendation) UnmarshalJSON(data []byte) error {
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.Title = popString(m, "strategy_title")
	r.Description = popString(m, "description")
	r.Steps = popStrings(m, "implementation_steps")
	r.Outcome = popString(m, "expected_outcome")
	r.Resources = popString(m, "resource_requirements")
	r.Priority = popString(m, "priority_level")
	r.Metrics = popString(m, "success_metrics")
	r.Extra = extraOrNil(m)
	return nil
}

// MarshalJSON encodes a recommendation using the original wire keys.
func (r Recommendation) MarshalJSON() ([]byte, error) {
	steps := r.Steps
	if steps == nil {
		steps = []string{}
	}
	m := map[string]any{
		"strategy_title":        r.Title,
		"description":           r.Description,
		"implementation_steps":  steps,
		"expected_outcome":      r.Outcome,
		"resource_requirements": r.Resources,
		"priority_level":        r.Priority,
		"success_metrics":       r.Metrics,
	}
	for k, v := range r.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}
