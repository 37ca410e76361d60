package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
	"github.com/veloclimat/veloclimat/internal/pipeline"
	"github.com/veloclimat/veloclimat/internal/resilience"
	"github.com/veloclimat/veloclimat/internal/store"
)

var t0 = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	name string
	err  error

	mu      sync.Mutex
	reports []*pipeline.Report
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, report *pipeline.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
	return p.err
}

func seededRepository() *store.MemoryRepository {
	repo := store.NewMemoryRepository()
	repo.SetStations([]interp.Station{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{1000, 0}},
		{ID: 3, Position: orb.Point{0, 1000}},
	})
	repo.SetObservations([]interp.Observation{
		{StationID: 1, Time: t0, Baseline: 0},
		{StationID: 2, Time: t0, Baseline: 10},
		{StationID: 3, Time: t0, Baseline: 20},
	})
	repo.SetSamples("veloclimat.bikes", []interp.Sample{
		{ID: 1, Position: orb.Point{0, 0}, Time: t0, Measured: 1},
		{ID: 2, Position: orb.Point{1000.0 / 3, 1000.0 / 3}, Time: t0, Measured: 12},
		{ID: 3, Position: orb.Point{5000, 5000}, Time: t0, Measured: 30},
		{ID: 4, Position: orb.Point{100, 100}, Time: t0.Add(time.Hour), Measured: 25},
	})
	repo.SetLandCover([]landcover.Polygon{
		{Class: 6, Geometry: orb.Polygon{orb.Ring{{-5000, -5000}, {5000, -5000}, {5000, 5000}, {-5000, 5000}, {-5000, -5000}}}},
	})
	return repo
}

func testConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.LandCover.Geographic = false
	cfg.LandCover.Columns = []string{"temperature", "t_inter"}
	cfg.Targets = []pipeline.Target{{
		Name:       "bikes",
		Samples:    store.SampleTable{Name: "veloclimat.bikes"},
		Results:    "veloclimat.bikes_interpolate",
		Profiles:   "veloclimat.bikes_lcz",
		DailyIndex: "veloclimat.bikes_ibm",
	}}
	return cfg
}

func fastSinks() *resilience.ExecutorConfig {
	cb := resilience.DefaultCircuitBreakerConfig("sink")
	return &resilience.ExecutorConfig{
		Timeout:         time.Second,
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		CircuitBreaker:  &cb,
	}
}

func newRunner(t *testing.T, repo store.Repository, cfg pipeline.Config, publishers ...pipeline.Publisher) *pipeline.Runner {
	t.Helper()
	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Config:       cfg,
		Repository:   repo,
		Publishers:   publishers,
		SinkExecutor: fastSinks(),
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return runner
}

func TestRunner_Run(t *testing.T) {
	repo := seededRepository()
	pub := &recordingPublisher{name: "events"}
	runner := newRunner(t, repo, testConfig(), pub)

	result, err := runner.Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatusSucceeded, result.Status)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 3, result.Stations)
	assert.Equal(t, 1, result.Triangles)
	require.Len(t, result.Targets, 1)

	tr := result.Targets[0]
	assert.Equal(t, 4, tr.Samples)
	assert.Equal(t, int64(2), tr.Results)
	assert.Equal(t, 1, tr.OutsideHull)
	assert.Equal(t, 1, tr.MissingJoin)
	assert.Equal(t, int64(2), tr.Profiles)
	assert.Equal(t, int64(1), tr.Days)
	require.NotNil(t, tr.DailyIndex)

	require.NotNil(t, repo.Network())

	profiles, ok := repo.Profiles("veloclimat.bikes_lcz")
	require.True(t, ok)
	require.Len(t, profiles, 2)
	assert.Equal(t, landcover.Class(6), profiles[0].Top1)
	require.Len(t, profiles[0].Site.Carry, 2)
	assert.Equal(t, 1.0, profiles[0].Site.Carry[0])
	assert.InDelta(t, 0.0, profiles[0].Site.Carry[1], 1e-9)
	assert.Equal(t, int64(2), profiles[1].Site.ID)
	assert.InDelta(t, 10.0, profiles[1].Site.Carry[1], 1e-9)

	_, ok = repo.Results("veloclimat.bikes_interpolate")
	assert.True(t, ok, "source kept unless delete_source is set")

	require.Len(t, pub.reports, 1)
	assert.Same(t, result, pub.reports[0].Run)
	assert.Len(t, pub.reports[0].Profiles["bikes"], 2)

	stats := runner.Stats()
	assert.Equal(t, int64(1), stats.SucceededRuns)
	assert.Equal(t, result.ID, stats.LastRunID)
	assert.Equal(t, int64(2), stats.SamplesSkipped)
}

func TestRunner_Idempotent(t *testing.T) {
	repo := seededRepository()
	runner := newRunner(t, repo, testConfig())

	_, err := runner.Run(context.Background(), "manual")
	require.NoError(t, err)
	first, _ := repo.Results("veloclimat.bikes_interpolate")

	_, err = runner.Run(context.Background(), "manual")
	require.NoError(t, err)
	second, _ := repo.Results("veloclimat.bikes_interpolate")

	assert.Equal(t, first, second)
}

func TestRunner_DeleteSource(t *testing.T) {
	repo := seededRepository()
	cfg := testConfig()
	cfg.LandCover.DeleteSource = true
	runner := newRunner(t, repo, cfg)

	_, err := runner.Run(context.Background(), "manual")
	require.NoError(t, err)

	_, ok := repo.Results("veloclimat.bikes_interpolate")
	assert.False(t, ok)
	_, ok = repo.Profiles("veloclimat.bikes_lcz")
	assert.True(t, ok)
}

func TestRunner_InsufficientStations(t *testing.T) {
	repo := seededRepository()
	repo.SetStations([]interp.Station{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{0, 0}},
		{ID: 3, Position: orb.Point{1, 1}},
	})
	pub := &recordingPublisher{name: "ledger"}
	runner := newRunner(t, repo, testConfig(), pub)

	result, err := runner.Run(context.Background(), "schedule")

	assert.ErrorIs(t, err, errs.ErrInsufficientInput)
	require.NotNil(t, result)
	assert.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Equal(t, errs.ErrInsufficientInput.Error(), result.ErrorKind)
	assert.Len(t, pub.reports, 1, "failed runs are reported too")

	_, ok := repo.Results("veloclimat.bikes_interpolate")
	assert.False(t, ok)
}

func TestRunner_StorageFailure(t *testing.T) {
	cause := errors.New("connection reset")
	repo := seededRepository()
	repo.FailOn("replace results", cause)
	runner := newRunner(t, repo, testConfig())

	result, err := runner.Run(context.Background(), "manual")

	assert.ErrorIs(t, err, errs.ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "target bikes")
	require.Len(t, result.Targets, 1)
	assert.Equal(t, 4, result.Targets[0].Samples)
}

func TestRunner_PublisherFailureDoesNotFailRun(t *testing.T) {
	repo := seededRepository()
	broken := &recordingPublisher{name: "nats", err: errors.New("no responders")}
	ok := &recordingPublisher{name: "ledger"}
	runner := newRunner(t, repo, testConfig(), broken, ok)

	result, err := runner.Run(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSucceeded, result.Status)
	assert.Len(t, ok.reports, 1)

	health := runner.SinkHealth()
	require.Len(t, health, 2)
	assert.Equal(t, "nats", health[0].Name)
	assert.Equal(t, "no responders", health[0].LastError)
	assert.Empty(t, health[1].LastError)
}

type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) Name() string { return "blocking" }

func (p *blockingPublisher) Publish(context.Context, *pipeline.Report) error {
	close(p.started)
	<-p.release
	return nil
}

func TestRunner_RejectsConcurrentRun(t *testing.T) {
	pub := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	runner := newRunner(t, seededRepository(), testConfig(), pub)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), "first")
		done <- err
	}()

	<-pub.started
	assert.True(t, runner.Running())
	_, err := runner.Run(context.Background(), "second")
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(pub.release)
	require.NoError(t, <-done)
	assert.False(t, runner.Running())
}

func TestRunner_Start(t *testing.T) {
	pub := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	runner := newRunner(t, seededRepository(), testConfig(), pub)

	id, err := runner.Start(context.Background(), "api:alice")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	<-pub.started
	_, err = runner.Start(context.Background(), "api:bob")
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(pub.release)
	assert.Eventually(t, func() bool { return !runner.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, id, runner.Stats().LastRunID)
}

func TestRunner_EmptySamples(t *testing.T) {
	repo := seededRepository()
	repo.SetSamples("veloclimat.bikes", nil)
	runner := newRunner(t, repo, testConfig())

	result, err := runner.Run(context.Background(), "manual")
	require.NoError(t, err)
	assert.Zero(t, result.Targets[0].Results)
	assert.Nil(t, result.Targets[0].DailyIndex)

	rows, ok := repo.Results("veloclimat.bikes_interpolate")
	assert.True(t, ok)
	assert.Empty(t, rows)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pipeline.Config)
	}{
		{"no targets", func(c *pipeline.Config) { c.Targets = nil }},
		{"empty name", func(c *pipeline.Config) { c.Targets[0].Name = "" }},
		{"duplicate name", func(c *pipeline.Config) { c.Targets = append(c.Targets, c.Targets[0]) }},
		{"no samples", func(c *pipeline.Config) { c.Targets[0].Samples.Name = "" }},
		{"no results", func(c *pipeline.Config) { c.Targets[0].Results = "" }},
		{"profiles over results", func(c *pipeline.Config) { c.Targets[0].Profiles = c.Targets[0].Results }},
		{"no carried columns", func(c *pipeline.Config) { c.LandCover.Columns = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), errs.ErrInvalidParameter)
		})
	}

	assert.NoError(t, testConfig().Validate())
}

func TestNewRunner_NilRepository(t *testing.T) {
	_, err := pipeline.NewRunner(pipeline.RunnerConfig{Config: testConfig(), Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}
