package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	err      error
	triggers []string
	deadline bool
}

func (f *fakeRunner) Run(ctx context.Context, trigger string) (*pipeline.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.RunResult{ID: "run-1", Trigger: trigger, Status: pipeline.StatusSucceeded}, nil
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

func TestPubSubHandler_Process(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		err      error
		wantAck  bool
		wantRuns []string
	}{
		{
			name:     "run request",
			data:     `{"job_type":"interpolation_run"}`,
			wantAck:  true,
			wantRuns: []string{"pubsub"},
		},
		{
			name:     "run request with trigger",
			data:     `{"job_type":"interpolation_run","trigger":"backfill"}`,
			wantAck:  true,
			wantRuns: []string{"pubsub:backfill"},
		},
		{
			name:    "health check",
			data:    `{"job_type":"health_check"}`,
			wantAck: true,
		},
		{
			name:    "unknown job type",
			data:    `{"job_type":"provider_refresh"}`,
			wantAck: true,
		},
		{
			name:    "malformed body",
			data:    `{not json`,
			wantAck: true,
		},
		{
			name:     "run in progress",
			data:     `{"job_type":"interpolation_run"}`,
			err:      pipeline.ErrRunInProgress,
			wantAck:  true,
			wantRuns: []string{"pubsub"},
		},
		{
			name:     "storage failure is retried",
			data:     `{"job_type":"interpolation_run"}`,
			err:      errs.Storage("load stations", "stations", errors.New("connection reset")),
			wantAck:  false,
			wantRuns: []string{"pubsub"},
		},
		{
			name:     "insufficient input is not retried",
			data:     `{"job_type":"interpolation_run"}`,
			err:      errs.New(errs.ErrInsufficientInput, "triangulate", "2 stations", nil),
			wantAck:  true,
			wantRuns: []string{"pubsub"},
		},
		{
			name:     "invalid parameter is not retried",
			data:     `{"job_type":"interpolation_run"}`,
			err:      errs.Invalid("interpolate", "look_back", "-1h"),
			wantAck:  true,
			wantRuns: []string{"pubsub"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			h := newHandler(PubSubConfig{Runner: runner, Logger: zerolog.New(io.Discard)})

			ack := h.process(context.Background(), []byte(tt.data))

			assert.Equal(t, tt.wantAck, ack)
			assert.Equal(t, tt.wantRuns, runner.calls())
		})
	}
}

func TestPubSubHandler_RunHasTimeout(t *testing.T) {
	runner := &fakeRunner{}
	h := newHandler(PubSubConfig{Runner: runner, RunTimeout: time.Minute, Logger: zerolog.New(io.Discard)})

	require.True(t, h.process(context.Background(), []byte(`{"job_type":"interpolation_run"}`)))
	assert.True(t, runner.deadline)
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{}
		s := NewScheduler(DefaultConfig(), runner, zerolog.New(io.Discard))

		s.RunOnce(context.Background())

		assert.Equal(t, []string{TriggerSchedule}, runner.calls())
		assert.True(t, runner.deadline)
	})

	t.Run("failure is logged", func(t *testing.T) {
		runner := &fakeRunner{err: pipeline.ErrRunInProgress}
		s := NewScheduler(DefaultConfig(), runner, zerolog.New(io.Discard))

		assert.NotPanics(t, func() { s.RunOnce(context.Background()) })
		assert.Len(t, runner.calls(), 1)
	})
}

func TestScheduler_Disabled(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.ScheduleInterval = 0
	s := NewScheduler(cfg, runner, zerolog.New(io.Discard))

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	assert.Empty(t, runner.calls())
}

func TestScheduler_RunOnStart(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.RunOnStart = true
	s := NewScheduler(cfg, runner, zerolog.New(io.Discard))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return len(runner.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPubSubSettings_Enabled(t *testing.T) {
	assert.False(t, PubSubSettings{}.Enabled())
	assert.False(t, PubSubSettings{ProjectID: "p"}.Enabled())
	assert.True(t, PubSubSettings{ProjectID: "p", Subscription: "s"}.Enabled())
}
