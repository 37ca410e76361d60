package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/config"
	"github.com/veloclimat/veloclimat/internal/errs"
)

const minimal = `
targets:
  - name: bike
    samples:
      name: veloclimat.bike_sensors_clean
    results: veloclimat.bike_interpolated
`

const full = `
database:
  host: db.internal
  port: 6432
  name: climate
interpolation:
  look_back: 10m
  time_normalization: 600s
  lapse_rate: 0.006
land_cover:
  radius: 50
  columns: [id, timestamp, t_inter]
  delete_source: true
targets:
  - name: bike
    samples:
      name: veloclimat.bike_sensors_clean
      group: bike_id
    results: veloclimat.bike_interpolated
    group_column: bike_id
    profiles: veloclimat.bike_lcz
    daily_index: veloclimat.bike_ibm
worker:
  port: 9090
  schedule_interval: 15m
  run_on_start: true
  pubsub:
    project_id: climate-prod
    subscription: runs
sinks:
  nats:
    url: nats://nats:4222
ledger:
  path: /var/lib/veloclimat/runs.db
  retain: 50
auth:
  signing_key: file-secret
location: Europe/Paris
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 6*time.Minute, cfg.Interpolation.LookBack)
	assert.Equal(t, 360*time.Second, cfg.Interpolation.TimeNormalization)
	assert.InDelta(t, 0.0065, cfg.Interpolation.LapseRate, 1e-12)
	assert.Equal(t, 8080, cfg.Worker.Port)
	assert.Equal(t, time.Hour, cfg.Worker.ScheduleInterval)
	assert.Equal(t, 500, cfg.Ledger.Retain)
	assert.Equal(t, "veloclimat", cfg.Auth.Issuer)
	assert.False(t, cfg.Sinks.NATS.Enabled())
	assert.False(t, cfg.Sinks.ClickHouse.Enabled())

	p := cfg.Pipeline()
	require.Len(t, p.Targets, 1)
	assert.Equal(t, "bike", p.Targets[0].Name)
	assert.Equal(t, time.UTC, p.Location)
}

func TestParse_Full(t *testing.T) {
	cfg, err := config.Parse([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "veloclimat", cfg.Database.User)
	assert.Equal(t, 10*time.Minute, cfg.Interpolation.LookBack)
	assert.Equal(t, 600*time.Second, cfg.Interpolation.TimeNormalization)
	assert.InDelta(t, 50.0, cfg.LandCover.Radius, 1e-12)
	assert.Equal(t, 8, cfg.LandCover.Segments)
	assert.True(t, cfg.LandCover.DeleteSource)
	assert.Equal(t, 15*time.Minute, cfg.Worker.ScheduleInterval)
	assert.True(t, cfg.Worker.RunOnStart)
	assert.True(t, cfg.Worker.PubSub.Enabled())
	assert.True(t, cfg.Sinks.NATS.Enabled())
	assert.Equal(t, 50, cfg.Ledger.Retain)
	assert.Equal(t, "file-secret", cfg.Auth.SigningKey)

	target := cfg.Targets[0]
	assert.Equal(t, "bike_id", target.Samples.Group)
	assert.Equal(t, "veloclimat.bike_lcz", target.Profiles)
	assert.Equal(t, "veloclimat.bike_ibm", target.DailyIndex)

	p := cfg.Pipeline()
	assert.Equal(t, "Europe/Paris", p.Location.String())
}

func TestParse_Environment(t *testing.T) {
	t.Setenv("DB_HOST", "pg.example")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_PASSWORD", "from-env")
	t.Setenv("APP_PORT", "8181")
	t.Setenv("JWT_SIGNING_KEY", "env-secret")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("NATS_URL", "nats://env:4222")

	cfg, err := config.Parse([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, "pg.example", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 8181, cfg.Worker.Port)
	assert.Equal(t, "env-secret", cfg.Auth.SigningKey)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "nats://env:4222", cfg.Sinks.NATS.URL)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "targets: [\n"},
		{name: "no targets", yaml: "location: UTC\n"},
		{name: "target without results", yaml: `
targets:
  - name: bike
    samples:
      name: veloclimat.bike_sensors_clean
`},
		{name: "unknown location", yaml: minimal + "location: Mars/Olympus\n"},
		{name: "negative look back", yaml: minimal + "interpolation:\n  look_back: -1m\n"},
		{name: "port out of range", yaml: minimal + "worker:\n  port: 70000\n"},
		{name: "profiles without columns", yaml: `
targets:
  - name: bike
    samples:
      name: veloclimat.bike_sensors_clean
    results: veloclimat.bike_interpolated
    profiles: veloclimat.bike_lcz
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrInvalidParameter)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "veloclimat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Targets, 1)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SIGNING_KEY=dotenv-secret\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "veloclimat.yaml"), []byte(minimal), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("JWT_SIGNING_KEY") })

	cfg, err := config.Load("veloclimat.yaml")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Auth.SigningKey)
}
