// Package pipeline orchestrates a full market intelligence run as an
// explicit state machine: collection, synthesis, indexing, optional
// retrieval answering and report generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/collect"
	"github.com/sells-group/market-intel/internal/index"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/report"
	"github.com/sells-group/market-intel/internal/store"
	"github.com/sells-group/market-intel/internal/synthesis"
)

// stageName identifies one state of the run machine.
type stageName string

const (
	StageCollect     stageName = "collect"
	StageTrend       stageName = "trend"
	StageOpportunity stageName = "opportunity"
	StageStrategy    stageName = "strategy"
	StageTemplate    stageName = "template"
	StageIndex       stageName = "index"
	StageAnswer      stageName = "answer"
	StageReport      stageName = "report"
	StageDone        stageName = "done"
)

var workspaceSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Collector runs the data collection stage.
type Collector interface {
	Run(ctx context.Context, state *model.RunState) error
}

// Synthesizer runs the model-backed synthesis stages. Each stage
// commits a default on failure rather than returning an error.
type Synthesizer interface {
	Trends(ctx context.Context, state *model.RunState)
	Opportunities(ctx context.Context, state *model.RunState)
	Recommendations(ctx context.Context, state *model.RunState)
	Template(ctx context.Context, state *model.RunState)
}

// Reporter writes the final report artifact.
type Reporter interface {
	Generate(ctx context.Context, state *model.RunState) (string, error)
}

// Answerer resolves the optional question against the run's index.
type Answerer interface {
	Answer(ctx context.Context, state *model.RunState) string
}

// Config tunes the orchestrator.
type Config struct {
	ReportsDir string `yaml:"reports_dir" mapstructure:"reports_dir"`
}

// Pipeline drives a run through the stage machine. Stage failures
// degrade inside the stages; only input validation, workspace
// creation, and a missing search credential abort a run.
type Pipeline struct {
	cfg         Config
	store       store.Store
	collector   Collector
	synthesizer Synthesizer
	registry    *index.Registry
	answerer    Answerer
	reporter    Reporter
	now         func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(cfg Config, st store.Store, collector Collector, synth Synthesizer, registry *index.Registry, answerer Answerer, reporter Reporter) *Pipeline {
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports"
	}
	return &Pipeline{
		cfg:         cfg,
		store:       st,
		collector:   collector,
		synthesizer: synth,
		registry:    registry,
		answerer:    answerer,
		reporter:    reporter,
		now:         time.Now,
	}
}

// Run executes the full machine for one analysis request and returns
// a summary of what was produced.
func (p *Pipeline) Run(ctx context.Context, domain, query, question string) (*model.RunSummary, error) {
	state, err := model.NewRunState(domain, query, question)
	if err != nil {
		return &model.RunSummary{Success: false, Error: err.Error()}, err
	}
	log := zap.L().With(zap.String("run_id", state.RunID), zap.String("domain", state.Domain))
	log.Info("pipeline: run starting", zap.String("query", state.Query), zap.Bool("question", state.Question != ""))

	if err := p.createWorkspace(state); err != nil {
		return &model.RunSummary{Success: false, RunID: state.RunID, Error: err.Error()}, err
	}

	checkpoint := func(stage stageName) {
		if saveErr := p.store.SaveState(ctx, state); saveErr != nil {
			log.Warn("pipeline: state checkpoint failed", zap.String("stage", string(stage)), zap.Error(saveErr))
		}
	}

	runStage := func(stage stageName, fn func()) {
		start := p.now()
		fn()
		log.Info("pipeline: stage complete",
			zap.String("stage", string(stage)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		checkpoint(stage)
	}

	var fatal error
	runStage(StageCollect, func() {
		if err := p.collector.Run(ctx, state); err != nil {
			if errors.Is(err, collect.ErrSearchNotConfigured) {
				fatal = err
				return
			}
			log.Error("pipeline: collection degraded", zap.Error(err))
		}
	})
	if fatal != nil {
		log.Error("pipeline: run aborted, search provider not configured", zap.Error(fatal))
		return &model.RunSummary{
			Success:   false,
			RunID:     state.RunID,
			OutputDir: state.OutputDir,
			Error:     fatal.Error(),
		}, fatal
	}
	runStage(StageTrend, func() { p.synthesizer.Trends(ctx, state) })
	runStage(StageOpportunity, func() { p.synthesizer.Opportunities(ctx, state) })
	runStage(StageStrategy, func() { p.synthesizer.Recommendations(ctx, state) })
	runStage(StageTemplate, func() { p.synthesizer.Template(ctx, state) })

	runStage(StageIndex, func() {
		handleID, chunks, err := p.registry.Build(state)
		if err != nil {
			log.Error("pipeline: index build failed", zap.Error(err))
			return
		}
		state.IndexHandle = handleID
		log.Info("pipeline: index built", zap.Int("chunks", chunks))
	})
	defer func() {
		if state.IndexHandle != "" {
			p.registry.Release(state.IndexHandle)
		}
	}()

	if state.Question != "" && state.IndexHandle != "" {
		runStage(StageAnswer, func() {
			state.Answer = p.answerer.Answer(ctx, state)
		})
	} else if state.Question != "" {
		log.Warn("pipeline: question asked but no index available, skipping answer stage")
	}

	var reportFilename string
	runStage(StageReport, func() {
		name, err := p.reporter.Generate(ctx, state)
		if err != nil {
			log.Error("pipeline: report generation failed", zap.Error(err))
			return
		}
		reportFilename = name
	})

	checkpoint(StageDone)
	log.Info("pipeline: run complete", zap.String("report", reportFilename))
	return p.summary(state, reportFilename), nil
}

// createWorkspace makes the per-run output directory. This is the one
// structural step that must succeed before the machine starts.
func (p *Pipeline) createWorkspace(state *model.RunState) error {
	prefix := strings.ToLower(state.QueryOrDomain())
	prefix = strings.ReplaceAll(prefix, " ", "_")
	prefix = workspaceSanitizer.ReplaceAllString(prefix, "_")
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	dir := filepath.Join(p.cfg.ReportsDir, fmt.Sprintf("%s_%s", prefix, p.now().Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create workspace %q", dir)
	}
	state.OutputDir = dir
	zap.L().Info("pipeline: workspace created", zap.String("dir", dir))
	return nil
}

func (p *Pipeline) summary(state *model.RunState, reportFilename string) *model.RunSummary {
	stem := collect.ArtifactStem(state.Domain)
	s := &model.RunSummary{
		Success:        reportFilename != "",
		RunID:          state.RunID,
		Answer:         state.Answer,
		OutputDir:      state.OutputDir,
		ReportFilename: reportFilename,
		DataJSON:       stem + "_data_sources.json",
		DataCSV:        stem + "_data_sources.csv",
		DataXLSX:       stem + "_data_sources.xlsx",
		ReadmeFilename: "README.md",
		ChartRefs:      state.ChartRefs,
		Indexed:        state.IndexHandle != "",
	}
	if state.IndexHandle != "" && state.Question != "" {
		s.AnswerLog = fmt.Sprintf("rag_responses_%s.log", state.ShortID())
	}
	if !s.Success {
		s.Error = "report artifact was not produced"
	}
	return s
}

// interface conformance for the concrete stage implementations
var (
	_ Collector   = (*collect.Collector)(nil)
	_ Synthesizer = (*synthesis.Synthesizer)(nil)
	_ Reporter    = (*report.Reporter)(nil)
	_ Answerer    = (*index.Answerer)(nil)
)
