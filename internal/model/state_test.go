package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunState(t *testing.T) {
	st, err := NewRunState("Technology", "AI regulation", "")
	require.NoError(t, err)
	assert.Equal(t, "Technology", st.Domain)
	assert.Equal(t, "AI regulation", st.Query)
	assert.Empty(t, st.Question)
	assert.Len(t, st.RunID, 36)
	assert.NotNil(t, st.CollectedDocuments)
	assert.NotNil(t, st.Trends)
	assert.NotNil(t, st.Opportunities)
	assert.NotNil(t, st.Recommendations)
}

func TestNewRunStateTrimsInput(t *testing.T) {
	st, err := NewRunState("  Healthcare  ", "  telehealth adoption  ", "  what changed  ")
	require.NoError(t, err)
	assert.Equal(t, "Healthcare", st.Domain)
	assert.Equal(t, "telehealth adoption", st.Query)
	assert.Equal(t, "what changed", st.Question)
}

func TestNewRunStateRejectsBadDomain(t *testing.T) {
	cases := []string{"", "   ", "tech<script>", "domain;drop", "a\tb"}
	for _, domain := range cases {
		_, err := NewRunState(domain, "some query", "")
		assert.Error(t, err, "domain %q", domain)
	}
}

func TestNewRunStateRejectsShortQuery(t *testing.T) {
	_, err := NewRunState("Technology", "ab", "")
	assert.Error(t, err)

	_, err = NewRunState("Technology", "good query", "hm")
	assert.Error(t, err)
}

func TestQueryOrDomain(t *testing.T) {
	st, err := NewRunState("Retail", "grocery delivery", "")
	require.NoError(t, err)
	assert.Equal(t, "grocery delivery", st.QueryOrDomain())

	st.Query = ""
	assert.Equal(t, "Retail", st.QueryOrDomain())
}

func TestShortID(t *testing.T) {
	st, err := NewRunState("Retail", "grocery delivery", "")
	require.NoError(t, err)
	assert.Len(t, st.ShortID(), 4)
	assert.Equal(t, st.RunID[:4], st.ShortID())
}
