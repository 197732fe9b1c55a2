// Package model defines the run-state record threaded through the
// intelligence pipeline and the structured values produced by its stages.
package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// domainPattern restricts market domains to letters, digits, spaces and hyphens.
var domainPattern = regexp.MustCompile(`^[A-Za-z0-9 -]+$`)

// minQueryLen is the minimum trimmed length for an optional query or question.
const minQueryLen = 3

// Document is a single collected source document.
type Document struct {
	Source   string `json:"source"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	FullText string `json:"full_text"`
	URL      string `json:"url"`
}

// FinancialRecord is a provider-tagged structured data point for a symbol.
type FinancialRecord struct {
	Provider string         `json:"provider"`
	Kind     string         `json:"kind"` // e.g. "company_profile", "stock_quote"
	Symbol   string         `json:"symbol"`
	Data     map[string]any `json:"data"`
}

// RunState is the single mutable record threaded through one pipeline run.
// It is created once at run start, mutated by exactly one stage at a time in
// strict pipeline order, and checkpointed to the store after every stage.
type RunState struct {
	RunID    string `json:"run_id"`
	Domain   string `json:"domain"`
	Query    string `json:"query,omitempty"`
	Question string `json:"question,omitempty"`

	CollectedDocuments []Document        `json:"collected_documents"`
	FinancialItems     []FinancialRecord `json:"financial_items"`

	Trends          []Trend          `json:"trends"`
	Opportunities   []Opportunity    `json:"opportunities"`
	Recommendations []Recommendation `json:"recommendations"`

	ReportTemplate string `json:"report_template,omitempty"`
	IndexHandle    string `json:"index_handle,omitempty"`
	Answer         string `json:"answer,omitempty"`

	OutputDir string   `json:"output_dir,omitempty"`
	ChartRefs []string `json:"chart_refs"`
}

// NewRunState validates and normalizes the run inputs and assigns a fresh
// run ID. Inputs are NFC-normalized and trimmed before validation.
func NewRunState(domain, query, question string) (*RunState, error) {
	domain = strings.TrimSpace(norm.NFC.String(domain))
	query = strings.TrimSpace(norm.NFC.String(query))
	question = strings.TrimSpace(norm.NFC.String(question))

	if domain == "" {
		return nil, eris.New("model: market domain cannot be empty")
	}
	if !domainPattern.MatchString(domain) {
		return nil, eris.Errorf("model: market domain %q must contain only letters, numbers, spaces, or hyphens", domain)
	}
	if query != "" && len(query) < minQueryLen {
		return nil, eris.Errorf("model: query must be at least %d characters", minQueryLen)
	}
	if question != "" && len(question) < minQueryLen {
		return nil, eris.Errorf("model: question must be at least %d characters", minQueryLen)
	}

	return &RunState{
		RunID:              uuid.New().String(),
		Domain:             domain,
		Query:              query,
		Question:           question,
		CollectedDocuments: []Document{},
		FinancialItems:     []FinancialRecord{},
		Trends:             []Trend{},
		Opportunities:      []Opportunity{},
		Recommendations:    []Recommendation{},
		ChartRefs:          []string{},
	}, nil
}

// QueryOrDomain returns the run's query, falling back to the domain when no
// query was supplied. Used as the search term for direct-fetch providers.
func (s *RunState) QueryOrDomain() string {
	if s.Query != "" {
		return s.Query
	}
	return s.Domain
}

// ShortID returns the first four characters of the run ID, used in
// artifact filenames.
func (s *RunState) ShortID() string {
	if len(s.RunID) < 4 {
		return s.RunID
	}
	return s.RunID[:4]
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one append-only conversational message, independent of any run.
type ChatTurn struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StateRecord is a summary row describing a persisted run state.
type StateRecord struct {
	RunID     string    `json:"run_id"`
	Domain    string    `json:"domain"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunSummary is the structured result returned for every run, success or not.
// A run never surfaces a raw panic or error to callers; it surfaces this.
type RunSummary struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Error   string `json:"error,omitempty"`

	Answer string `json:"answer,omitempty"`

	OutputDir      string   `json:"output_dir,omitempty"`
	ReportFilename string   `json:"report_filename,omitempty"`
	DataJSON       string   `json:"data_json_filename,omitempty"`
	DataCSV        string   `json:"data_csv_filename,omitempty"`
	DataXLSX       string   `json:"data_xlsx_filename,omitempty"`
	ReadmeFilename string   `json:"readme_filename,omitempty"`
	AnswerLog      string   `json:"answer_log_filename,omitempty"`
	ChartRefs      []string `json:"chart_refs,omitempty"`
	Indexed        bool     `json:"indexed"`
}
