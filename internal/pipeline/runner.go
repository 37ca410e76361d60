package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/ibm"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
	"github.com/veloclimat/veloclimat/internal/resilience"
	"github.com/veloclimat/veloclimat/internal/store"
	"github.com/veloclimat/veloclimat/internal/telemetry"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// active.
var ErrRunInProgress = errors.New("run in progress")

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Stage names used in spans, metrics and logs.
const (
	StageNetwork     = "network"
	StageLandCover   = "land_cover"
	StageSamples     = "samples"
	StageInterpolate = "interpolate"
	StageDailyIndex  = "daily_index"
	StageProfiles    = "profiles"
)

// Publisher receives the report of every finished run.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, report *Report) error
}

// Report is what publishers receive. Profiles are keyed by target name and
// only present for targets with a profile table.
type Report struct {
	Run      *RunResult
	Profiles map[string][]landcover.Profile
}

// RunResult summarizes a run.
type RunResult struct {
	ID         string         `json:"id"`
	Trigger    string         `json:"trigger"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Stations   int            `json:"stations"`
	Duplicates int            `json:"duplicates"`
	Triangles  int            `json:"triangles"`
	Targets    []TargetResult `json:"targets"`
}

// TargetResult summarizes one target of a run.
type TargetResult struct {
	Name         string       `json:"name"`
	Samples      int          `json:"samples"`
	Observations int          `json:"observations"`
	Results      int64        `json:"results"`
	OutsideHull  int          `json:"outside_hull"`
	MissingJoin  int          `json:"missing_join"`
	Profiles     int64        `json:"profiles"`
	Days         int64        `json:"days"`
	DailyIndex   *ibm.Summary `json:"daily_index,omitempty"`
}

// RunnerStats tracks run statistics since the process started.
type RunnerStats struct {
	TotalRuns      int64
	SucceededRuns  int64
	FailedRuns     int64
	LastRunAt      time.Time
	LastRunID      string
	LastRunStatus  string
	LastRunLength  time.Duration
	TotalDuration  time.Duration
	RowsWritten    int64
	SamplesSkipped int64
}

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	Config     Config
	Repository store.Repository
	Publishers []Publisher

	// SinkExecutor is applied to every publisher. Name is replaced by the
	// publisher name.
	// Default: resilience.DefaultExecutorConfig
	SinkExecutor *resilience.ExecutorConfig

	Metrics *telemetry.PipelineMetrics
	Tracer  trace.Tracer
	Logger  zerolog.Logger
}

type sink struct {
	publisher Publisher
	executor  *resilience.Executor
}

// Runner executes runs one at a time.
type Runner struct {
	config       Config
	repo         store.Repository
	interpolator *interp.Interpolator
	sinks        []sink
	metrics      *telemetry.PipelineMetrics
	tracer       trace.Tracer
	logger       zerolog.Logger

	running atomic.Bool

	mu    sync.RWMutex
	stats RunnerStats
}

// NewRunner validates the configuration and creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Repository == nil {
		return nil, errs.Invalid("new runner", "repository", "nil")
	}
	config := cfg.Config
	if config.Location == nil {
		config.Location = time.UTC
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	interpolator, err := interp.NewInterpolator(config.Interpolation, cfg.Logger)
	if err != nil {
		return nil, err
	}
	config.Interpolation = interpolator.Config()

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("github.com/veloclimat/veloclimat/internal/pipeline")
	}

	sinks := make([]sink, 0, len(cfg.Publishers))
	for _, p := range cfg.Publishers {
		execCfg := resilience.DefaultExecutorConfig(p.Name())
		if cfg.SinkExecutor != nil {
			execCfg = *cfg.SinkExecutor
			execCfg.Name = p.Name()
			if execCfg.CircuitBreaker != nil {
				cb := *execCfg.CircuitBreaker
				cb.Name = p.Name()
				execCfg.CircuitBreaker = &cb
			}
		}
		sinks = append(sinks, sink{publisher: p, executor: resilience.NewExecutor(execCfg)})
	}

	return &Runner{
		config:       config,
		repo:         cfg.Repository,
		interpolator: interpolator,
		sinks:        sinks,
		metrics:      cfg.Metrics,
		tracer:       tracer,
		logger:       cfg.Logger,
	}, nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run executes every stage for every target. It returns ErrRunInProgress
// without doing anything when another run is active. The returned result is
// non-nil whenever the run started, including on failure.
func (r *Runner) Run(ctx context.Context, trigger string) (*RunResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	return r.run(ctx, uuid.NewString(), trigger)
}

// Start reserves the run slot and executes the run in the background,
// returning its id. The outcome is logged, counted and published like for
// Run.
func (r *Runner) Start(ctx context.Context, trigger string) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}

	id := uuid.NewString()
	go func() {
		defer r.running.Store(false)
		_, _ = r.run(ctx, id, trigger)
	}()
	return id, nil
}

func (r *Runner) run(ctx context.Context, id, trigger string) (*RunResult, error) {
	result := &RunResult{
		ID:        id,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	report := &Report{Run: result, Profiles: make(map[string][]landcover.Profile)}
	logger := r.logger.With().Str("run_id", result.ID).Logger()

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", result.ID),
		attribute.String("run.trigger", trigger),
	))
	defer span.End()

	logger.Info().
		Str("trigger", trigger).
		Int("targets", len(r.config.Targets)).
		Msg("starting interpolation run")

	err := r.execute(ctx, logger, result, report)

	result.FinishedAt = time.Now().UTC()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Status = StatusSucceeded
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		if kind := errs.KindOf(err); kind != nil {
			result.ErrorKind = kind.Error()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, result.ErrorKind)
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("interpolation run failed")
	} else {
		logger.Info().
			Dur("duration", result.Duration).
			Int("triangles", result.Triangles).
			Msg("interpolation run completed")
	}

	r.metrics.RecordRun(ctx, result.Status)
	r.updateStats(result)
	r.publish(ctx, logger, report)

	return result, err
}

func (r *Runner) execute(ctx context.Context, logger zerolog.Logger, result *RunResult, report *Report) error {
	var network *interp.Network
	err := r.stage(ctx, logger, "", StageNetwork, func(ctx context.Context) error {
		stations, err := r.repo.LoadStations(ctx)
		if err != nil {
			return err
		}
		network, err = interp.BuildNetwork(stations)
		if err != nil {
			return err
		}
		result.Stations = len(stations)
		result.Duplicates = len(network.Duplicates)
		result.Triangles = len(network.Triangles())
		for _, id := range network.Duplicates {
			logger.Warn().Int64("station_id", id).Msg("station shares its position with a lower id, skipped")
		}
		return r.repo.ReplaceNetwork(ctx, network)
	})
	if err != nil {
		return err
	}

	var aggregator *landcover.Aggregator
	if r.needsLandCover() {
		err := r.stage(ctx, logger, "", StageLandCover, func(ctx context.Context) error {
			polygons, err := r.repo.LoadLandCover(ctx)
			if err != nil {
				return err
			}
			aggregator, err = landcover.NewAggregator(r.config.LandCover, polygons)
			return err
		})
		if err != nil {
			return err
		}
	}

	for _, target := range r.config.Targets {
		tr, profiles, err := r.runTarget(ctx, logger.With().Str("target", target.Name).Logger(), network, aggregator, target)
		result.Targets = append(result.Targets, tr)
		if err != nil {
			return fmt.Errorf("target %s: %w", target.Name, err)
		}
		if target.Profiles != "" {
			report.Profiles[target.Name] = profiles
		}
	}
	return nil
}

func (r *Runner) runTarget(
	ctx context.Context,
	logger zerolog.Logger,
	network *interp.Network,
	aggregator *landcover.Aggregator,
	target Target,
) (TargetResult, []landcover.Profile, error) {
	tr := TargetResult{Name: target.Name}

	var samples []interp.Sample
	var series *interp.SeriesIndex
	err := r.stage(ctx, logger, target.Name, StageSamples, func(ctx context.Context) error {
		var err error
		samples, err = r.repo.LoadSamples(ctx, target.Samples.WithDefaults())
		if err != nil {
			return err
		}
		tr.Samples = len(samples)

		from, to, ok := timeSpan(samples)
		if !ok {
			series = interp.NewSeriesIndex(nil)
			return nil
		}
		observations, err := r.repo.LoadObservations(ctx, from.Add(-r.config.Interpolation.LookBack), to)
		if err != nil {
			return err
		}
		tr.Observations = len(observations)
		series = interp.NewSeriesIndex(observations)
		return nil
	})
	if err != nil {
		return tr, nil, err
	}

	err = r.stage(ctx, logger, target.Name, StageInterpolate, func(ctx context.Context) error {
		outcome, err := r.interpolator.Interpolate(network, series, samples)
		if err != nil {
			return err
		}
		tr.OutsideHull = outcome.OutsideHull
		tr.MissingJoin = outcome.MissingJoin
		r.metrics.RecordExcluded(ctx, target.Name, telemetry.ReasonOutsideHull, outcome.OutsideHull)
		r.metrics.RecordExcluded(ctx, target.Name, telemetry.ReasonMissingJoin, outcome.MissingJoin)

		tr.Results, err = r.repo.ReplaceResults(ctx, store.ResultTable{
			Name:        target.Results,
			GroupColumn: target.GroupColumn,
		}, outcome.Results)
		r.metrics.RecordRows(ctx, target.Results, tr.Results)
		return err
	})
	if err != nil {
		return tr, nil, err
	}

	if target.DailyIndex != "" {
		err = r.stage(ctx, logger, target.Name, StageDailyIndex, func(ctx context.Context) error {
			readings := make([]ibm.Reading, len(samples))
			for i, s := range samples {
				readings[i] = ibm.Reading{Time: s.Time, Temperature: s.Measured}
			}
			days := ibm.Compute(readings, r.config.Location)
			if len(days) > 0 {
				summary := ibm.Summarize(days)
				tr.DailyIndex = &summary
			}

			var err error
			tr.Days, err = r.repo.ReplaceDailyIndex(ctx, target.DailyIndex, days)
			r.metrics.RecordRows(ctx, target.DailyIndex, tr.Days)
			return err
		})
		if err != nil {
			return tr, nil, err
		}
	}

	var profiles []landcover.Profile
	if target.Profiles != "" {
		err = r.stage(ctx, logger, target.Name, StageProfiles, func(ctx context.Context) error {
			sites, err := r.repo.LoadSites(ctx, target.Results, r.config.LandCover.Columns)
			if err != nil {
				return err
			}
			profiles = aggregator.ProfileAll(sites)

			tr.Profiles, err = r.repo.ReplaceProfiles(ctx, store.ProfileTable{
				Name:         target.Profiles,
				Source:       target.Results,
				Columns:      r.config.LandCover.Columns,
				DeleteSource: r.config.LandCover.DeleteSource,
			}, profiles)
			r.metrics.RecordRows(ctx, target.Profiles, tr.Profiles)
			return err
		})
		if err != nil {
			return tr, nil, err
		}
	}

	logger.Info().
		Int("samples", tr.Samples).
		Int64("results", tr.Results).
		Int("outside_hull", tr.OutsideHull).
		Int("missing_join", tr.MissingJoin).
		Int64("profiles", tr.Profiles).
		Msg("target completed")

	return tr, profiles, nil
}

func (r *Runner) stage(ctx context.Context, logger zerolog.Logger, target, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(
		attribute.String("target", target),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	r.metrics.RecordStage(ctx, target, name, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("stage", name).Dur("duration", duration).Msg("stage failed")
		return err
	}
	logger.Debug().Str("stage", name).Dur("duration", duration).Msg("stage completed")
	return nil
}

func (r *Runner) needsLandCover() bool {
	for _, t := range r.config.Targets {
		if t.Profiles != "" {
			return true
		}
	}
	return false
}

// publish delivers the report to every sink. Failures are logged only: the
// output tables are already committed.
func (r *Runner) publish(ctx context.Context, logger zerolog.Logger, report *Report) {
	for _, s := range r.sinks {
		err := s.executor.Execute(ctx, func(ctx context.Context) error {
			return s.publisher.Publish(ctx, report)
		})
		if err != nil {
			logger.Warn().Err(err).Str("sink", s.publisher.Name()).Msg("failed to publish run report")
			continue
		}
		logger.Debug().Str("sink", s.publisher.Name()).Msg("run report published")
	}
}

// SinkHealth returns the health of every sink, in publisher order.
func (r *Runner) SinkHealth() []*resilience.SinkHealth {
	health := make([]*resilience.SinkHealth, len(r.sinks))
	for i, s := range r.sinks {
		health[i] = s.executor.Health()
	}
	return health
}

func (r *Runner) updateStats(result *RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.TotalRuns++
	if result.Status == StatusSucceeded {
		r.stats.SucceededRuns++
	} else {
		r.stats.FailedRuns++
	}
	r.stats.LastRunAt = result.FinishedAt
	r.stats.LastRunID = result.ID
	r.stats.LastRunStatus = result.Status
	r.stats.LastRunLength = result.Duration
	r.stats.TotalDuration += result.Duration
	for _, t := range result.Targets {
		r.stats.RowsWritten += t.Results + t.Profiles + t.Days
		r.stats.SamplesSkipped += int64(t.OutsideHull + t.MissingJoin)
	}
}

// Stats returns a copy of the current statistics.
func (r *Runner) Stats() RunnerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func timeSpan(samples []interp.Sample) (from, to time.Time, ok bool) {
	if len(samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	from, to = samples[0].Time, samples[0].Time
	for _, s := range samples[1:] {
		if s.Time.Before(from) {
			from = s.Time
		}
		if s.Time.After(to) {
			to = s.Time
		}
	}
	return from, to, true
}
