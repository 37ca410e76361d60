// Package worker triggers interpolation runs on a schedule and from Pub/Sub
// run requests.
package worker

import (
	"context"
	"time"

	"github.com/veloclimat/veloclimat/internal/pipeline"
)

// Runner executes one run at a time.
type Runner interface {
	Run(ctx context.Context, trigger string) (*pipeline.RunResult, error)
}

// Config holds the worker configuration.
type Config struct {
	// Port is the HTTP port of the operations API.
	// Default: 8080
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// ScheduleInterval is the period between scheduled runs. Zero disables
	// the schedule.
	// Default: 1 hour
	ScheduleInterval time.Duration `yaml:"schedule_interval" validate:"min=0"`

	// RunOnStart runs once as soon as the schedule starts.
	// Default: false
	RunOnStart bool `yaml:"run_on_start"`

	// RunTimeout bounds a single run.
	// Default: 30 minutes
	RunTimeout time.Duration `yaml:"run_timeout"`

	// PubSub enables run requests from a subscription when ProjectID and
	// Subscription are set.
	PubSub PubSubSettings `yaml:"pubsub"`
}

// PubSubSettings locates the run request subscription.
type PubSubSettings struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

// Enabled reports whether a subscription is configured.
func (s PubSubSettings) Enabled() bool {
	return s.ProjectID != "" && s.Subscription != ""
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Port:             8080,
		ScheduleInterval: time.Hour,
		RunTimeout:       30 * time.Minute,
	}
}
