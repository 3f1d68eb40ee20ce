// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

// Statuses names the catalog codes the dispatcher moves entries through.
type Statuses struct {
	Pending    string `mapstructure:"pending"`
	InProgress string `mapstructure:"in_progress"`
	Done       string `mapstructure:"done"`
	Failed     string `mapstructure:"failed"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"`

	// SASLMechanism is one of PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty
	// disables SASL.
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`

	// CommandTypes routed to Kafka. Empty means Kafka takes every command
	// type that has no other handler.
	CommandTypes []int64 `mapstructure:"command_types"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type Config struct {
	Workers              int           `mapstructure:"workers"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ClaimTTL             time.Duration `mapstructure:"claim_ttl"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	DepthPollInterval    time.Duration `mapstructure:"depth_poll_interval"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	RetryMaxElapsed      time.Duration `mapstructure:"retry_max_elapsed"`
	DeleteOnSuccess      bool          `mapstructure:"delete_on_success"`
	// LogUnrouted handles command types with no route by logging them
	// instead of marking them failed.
	LogUnrouted bool        `mapstructure:"log_unrouted"`
	Statuses    Statuses    `mapstructure:"statuses"`
	Kafka       KafkaConfig `mapstructure:"kafka"`
}

func DefaultConfig() Config {
	return Config{
		Workers:              4,
		PollInterval:         2 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ClaimTTL:             5 * time.Minute,
		SweepInterval:        time.Minute,
		DepthPollInterval:    30 * time.Second,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     30 * time.Second,
		RetryMaxElapsed:      2 * time.Minute,
		Statuses: Statuses{
			Pending:    "PENDING",
			InProgress: "IN_PROGRESS",
			Done:       "DONE",
			Failed:     "FAILED",
		},
		Kafka: KafkaConfig{
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	for name, d := range map[string]time.Duration{
		"poll_interval":          c.PollInterval,
		"heartbeat_interval":     c.HeartbeatInterval,
		"claim_ttl":              c.ClaimTTL,
		"sweep_interval":         c.SweepInterval,
		"depth_poll_interval":    c.DepthPollInterval,
		"retry_initial_interval": c.RetryInitialInterval,
		"retry_max_interval":     c.RetryMaxInterval,
		"retry_max_elapsed":      c.RetryMaxElapsed,
	} {
		if d <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.HeartbeatInterval > 0 && c.ClaimTTL <= 2*c.HeartbeatInterval {
		result = multierror.Append(result, fmt.Errorf("claim_ttl %s must be more than twice heartbeat_interval %s", c.ClaimTTL, c.HeartbeatInterval))
	}

	seen := map[string]string{}
	for name, code := range c.Statuses.byName() {
		if code == "" {
			result = multierror.Append(result, fmt.Errorf("statuses.%s is required", name))
			continue
		}
		if other, ok := seen[code]; ok {
			result = multierror.Append(result, fmt.Errorf("statuses.%s and statuses.%s are both %q", other, name, code))
		}
		seen[code] = name
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		result = multierror.Append(result, errors.New("kafka.topic is required when kafka.brokers is set"))
	}
	if _, err := kafkaCompression(c.Kafka.Compression); err != nil {
		result = multierror.Append(result, err)
	}
	if len(c.Kafka.CommandTypes) > 0 && !c.Kafka.Enabled() {
		result = multierror.Append(result, errors.New("kafka.command_types is set but kafka is not configured"))
	}

	return result.ErrorOrNil()
}

func (s Statuses) byName() map[string]string {
	return map[string]string{
		"pending":     s.Pending,
		"in_progress": s.InProgress,
		"done":        s.Done,
		"failed":      s.Failed,
	}
}

// StatusChecker reports whether a status code exists in the catalog.
type StatusChecker interface {
	StatusExists(ctx context.Context, code string) (bool, error)
}

// CheckStatuses verifies every configured status code against the catalog.
func (s Statuses) CheckStatuses(ctx context.Context, catalog StatusChecker) error {
	var result *multierror.Error
	for name, code := range s.byName() {
		ok, err := catalog.StatusExists(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to check status %q: %w", code, err)
		}
		if !ok {
			result = multierror.Append(result, fmt.Errorf("statuses.%s %q is not in the status catalog", name, code))
		}
	}
	return result.ErrorOrNil()
}

func (s Statuses) pending() commandqueue.StatusRef    { return commandqueue.StatusRef(s.Pending) }
func (s Statuses) inProgress() commandqueue.StatusRef { return commandqueue.StatusRef(s.InProgress) }
func (s Statuses) done() commandqueue.StatusRef       { return commandqueue.StatusRef(s.Done) }
func (s Statuses) failed() commandqueue.StatusRef     { return commandqueue.StatusRef(s.Failed) }
