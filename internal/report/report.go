// Package report renders the final markdown deliverable for a run and
// the README that indexes the run's artifacts.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/market-intel/internal/collect"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/parse"
	"github.com/sells-group/market-intel/internal/synthesis"
)

const sampleSize = 5

// Completer produces a text completion from a system instruction and a
// user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Reporter renders the final report. A nil completer or any model
// failure degrades to a fallback document; the report file is always
// written and never empty.
type Reporter struct {
	completer Completer
	now       func() time.Time
}

func NewReporter(c Completer) *Reporter {
	return &Reporter{completer: c, now: time.Now}
}

// Generate writes the markdown report and README into the run
// workspace and returns the report filename. It fails only when the
// workspace itself cannot be written.
func (r *Reporter) Generate(ctx context.Context, state *model.RunState) (string, error) {
	if state.OutputDir == "" {
		return "", eris.New("report: run has no output directory")
	}
	log := zap.L().With(zap.String("run_id", state.RunID), zap.String("domain", state.Domain))

	content := r.render(ctx, state)
	filename := fmt.Sprintf("%s_report_%s.md", collect.ArtifactStem(state.Domain), state.ShortID())
	path := filepath.Join(state.OutputDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", eris.Wrap(err, "report: write markdown")
	}
	log.Info("report written", zap.String("file", filename), zap.Int("bytes", len(content)))

	if err := r.writeReadme(state, filename); err != nil {
		log.Warn("readme write failed", zap.Error(err))
	}
	return filename, nil
}

// render produces the report body, falling back to a minimal document
// when the model is unavailable or returns nothing.
func (r *Reporter) render(ctx context.Context, state *model.RunState) string {
	payload := r.payload(state)
	timestamp := r.now().Format("2006-01-02 15:04:05")

	var (
		out string
		err error
	)
	switch {
	case r.completer == nil:
		err = eris.New("report: no model configured")
	case state.ReportTemplate != "":
		system := fmt.Sprintf("Fill the markdown template with provided data for %s. "+
			"Refer to charts using their filenames (e.g., ![Chart Description](chart_filename.png)). "+
			"Date: %s. Prepared By: Market Intelligence Agent. "+
			"Ensure all template sections are addressed or marked 'N/A' if data is missing. No markdown fences.",
			state.Domain, timestamp)
		user := fmt.Sprintf("Template:\n%s\n\nData (JSON):\n%s\n\nChart Filenames (comma-separated):\n%s",
			state.ReportTemplate, payload, strings.Join(state.ChartRefs, ", "))
		out, err = r.completer.Complete(ctx, system, user)
	default:
		system := fmt.Sprintf("Generate a comprehensive markdown report for %s based on the query '%s'. "+
			"Include sections: Executive Summary, Key Market Trends, Identified Opportunities, "+
			"Strategic Recommendations, Competitive Landscape, and Visualizations. "+
			"Refer to charts by filename (e.g., ![Chart Description](chart_filename.png)). "+
			"Date: %s. Prepared By: Market Intelligence Agent. No markdown fences.",
			state.Domain, state.QueryOrDomain(), timestamp)
		user := fmt.Sprintf("Data (JSON):\n%s\n\nChart Filenames (comma-separated):\n%s",
			payload, strings.Join(state.ChartRefs, ", "))
		out, err = r.completer.Complete(ctx, system, user)
	}
	if err != nil {
		zap.L().Error("report generation failed, using fallback document", zap.Error(err))
		return fallbackReport(state)
	}

	content := parse.StripFences(out)
	if content == "" {
		zap.L().Warn("report model returned empty content, using fallback document")
		return fallbackReport(state)
	}
	return content
}

// payload assembles the JSON data block handed to the model.
func (r *Reporter) payload(state *model.RunState) string {
	docs := state.CollectedDocuments
	if len(docs) > sampleSize {
		docs = docs[:sampleSize]
	}
	data, err := json.Marshal(map[string]any{
		"market_domain":             state.Domain,
		"query":                     state.QueryOrDomain(),
		"market_trends":             state.Trends,
		"opportunities":             state.Opportunities,
		"strategic_recommendations": state.Recommendations,
		"news_data_sample":          docs,
		"financial_data":            state.FinancialItems,
		"chart_filenames":           state.ChartRefs,
	})
	if err != nil {
		zap.L().Error("report payload marshal failed", zap.Error(err))
		return "{}"
	}
	return string(data)
}

func fallbackReport(state *model.RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fallback Report: %s\n\nReport generation failed; the collected analysis is reproduced below.\n\n", state.Domain)
	fmt.Fprintf(&b, "## Key Trends\n\n")
	for _, t := range state.Trends {
		fmt.Fprintf(&b, "- **%s**: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&b, "\n## Opportunities\n\n")
	for _, o := range state.Opportunities {
		fmt.Fprintf(&b, "- **%s**: %s\n", o.Name, o.Description)
	}
	fmt.Fprintf(&b, "\n## Strategic Recommendations\n\n")
	for _, rec := range state.Recommendations {
		fmt.Fprintf(&b, "- **%s**: %s\n", rec.Title, rec.Description)
	}
	if len(state.ChartRefs) > 0 {
		fmt.Fprintf(&b, "\n## Charts\n\n")
		for _, ref := range state.ChartRefs {
			fmt.Fprintf(&b, "![%s](%s)\n", ref, ref)
		}
	}
	return b.String()
}

// writeReadme writes the artifact index for the run directory.
func (r *Reporter) writeReadme(state *model.RunState, reportFilename string) error {
	stem := collect.ArtifactStem(state.Domain)
	var b strings.Builder
	fmt.Fprintf(&b, "# Market Intelligence Report: %s\n\n", state.Domain)
	fmt.Fprintf(&b, "**Query:** %s\n", state.QueryOrDomain())
	fmt.Fprintf(&b, "**Run ID:** %s\n", state.RunID)
	fmt.Fprintf(&b, "**Generated At:** %s\n\n", r.now().Format(time.RFC3339))
	b.WriteString("## Report Files\n\n")
	fmt.Fprintf(&b, "*   **Main Report:** [%s](./%s)\n", reportFilename, reportFilename)
	fmt.Fprintf(&b, "*   **Data (JSON):** [%s_data_sources.json](./%s_data_sources.json)\n", stem, stem)
	fmt.Fprintf(&b, "*   **Data (CSV):** [%s_data_sources.csv](./%s_data_sources.csv)\n", stem, stem)
	fmt.Fprintf(&b, "*   **Data (XLSX):** [%s_data_sources.xlsx](./%s_data_sources.xlsx)\n", stem, stem)
	if state.IndexHandle != "" {
		fmt.Fprintf(&b, "*   **Retrieval Log:** [rag_responses_%s.log](./rag_responses_%s.log)\n", state.ShortID(), state.ShortID())
	}
	if len(state.ChartRefs) > 0 {
		b.WriteString("\n## Charts\n\n")
		for _, ref := range state.ChartRefs {
			fmt.Fprintf(&b, "*   ![%s](%s)\n", chartLabel(ref), ref)
		}
	}
	b.WriteString("\n## Notes\n\nThis report was automatically generated by the Market Intelligence Agent.\n")

	path := filepath.Join(state.OutputDir, "README.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return eris.Wrap(err, "report: write readme")
	}
	return nil
}

var titleCaser = cases.Title(language.English)

func chartLabel(ref string) string {
	base := strings.TrimSuffix(ref, filepath.Ext(ref))
	return titleCaser.String(strings.ReplaceAll(base, "_", " "))
}

var _ Completer = (*synthesis.ModelCompleter)(nil)
