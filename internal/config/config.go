// Package config loads and validates the loop configuration.
//
// Configuration is a YAML file merged over defaults. Validation failures are
// fatal: the process refuses to start rather than running with a half-sane
// loop.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Monitor configures the three monitor stages.
type Monitor struct {
	// NewsInterval schedules the news stage every Nth cycle.
	NewsInterval int `yaml:"news_interval" validate:"min=1"`

	// MoveThresholdPct flags a market record significant when the absolute
	// percent move exceeds it.
	MoveThresholdPct float64 `yaml:"move_threshold_pct" validate:"gt=0"`

	// MinEngagement flags a mention significant at or above this engagement.
	MinEngagement int `yaml:"min_engagement" validate:"min=0"`

	// NewsKeywords flags a news event significant when its title contains
	// any of these (case-insensitive).
	NewsKeywords []string `yaml:"news_keywords"`

	// FetchTimeout bounds every adapter fetch.
	FetchTimeout Duration `yaml:"fetch_timeout" validate:"min=1"`
}

// Analyzer configures pattern detection and scoring.
type Analyzer struct {
	// Floor discards patterns scoring below it.
	Floor float64 `yaml:"floor" validate:"gte=0,lte=1"`

	// CorrelationWindow is the max gap between a market move and a
	// corroborating social/news event.
	CorrelationWindow Duration `yaml:"correlation_window" validate:"min=1"`

	// SigmaThreshold flags anomalies beyond this many standard deviations
	// of the rolling baseline.
	SigmaThreshold float64 `yaml:"sigma_threshold" validate:"gt=0"`

	// TrendLength is the number of consecutive same-direction significant
	// moves that constitute a trend.
	TrendLength int `yaml:"trend_length" validate:"min=2"`
}

// Narrative configures the generation stage.
type Narrative struct {
	// Threshold is the minimum pattern score that triggers generation.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`

	// MaxPerCycle caps generation calls per cycle.
	MaxPerCycle int `yaml:"max_per_cycle" validate:"min=1"`

	// GenerateTimeout bounds every generator call.
	GenerateTimeout Duration `yaml:"generate_timeout" validate:"min=1"`
}

// Publish configures the response publisher.
type Publish struct {
	// ConfidenceFloor gates candidates out of posting until they age out.
	ConfidenceFloor float64 `yaml:"confidence_floor" validate:"gte=0,lte=1"`

	// MaxCandidateAge is the number of cycles a pending candidate may wait
	// before it is rejected.
	MaxCandidateAge int64 `yaml:"max_candidate_age" validate:"min=1"`

	// MinLength and MaxLength bound post text; out-of-bounds candidates are
	// rejected without consuming a rate-limit token.
	MinLength int `yaml:"min_length" validate:"min=0"`
	MaxLength int `yaml:"max_length" validate:"min=1"`

	// PostTimeout bounds every post call.
	PostTimeout Duration `yaml:"post_timeout" validate:"min=1"`
}

// Recovery configures retry policy.
type Recovery struct {
	// RetryBudget is the max retries per stage within RetryWindow cycles.
	// Exceeding it parks the stage until old failures age out of the window.
	RetryBudget int   `yaml:"retry_budget" validate:"min=1"`
	RetryWindow int64 `yaml:"retry_window" validate:"min=1"`

	// BackoffBase and BackoffMax bound the exponential backoff, in cycles.
	BackoffBase int64 `yaml:"backoff_base" validate:"min=1"`
	BackoffMax  int64 `yaml:"backoff_max" validate:"min=1"`
}

// RateLimit configures the publish token bucket.
type RateLimit struct {
	Capacity       int `yaml:"capacity" validate:"min=1"`
	RefillPerCycle int `yaml:"refill_per_cycle" validate:"min=1"`
}

// Config is the full loop configuration.
type Config struct {
	Monitor   Monitor   `yaml:"monitor"`
	Analyzer  Analyzer  `yaml:"analyzer"`
	Narrative Narrative `yaml:"narrative"`
	Publish   Publish   `yaml:"publish"`
	Recovery  Recovery  `yaml:"recovery"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Default returns the baseline configuration. Every field is valid; a config
// file only needs to mention what it changes.
func Default() Config {
	return Config{
		Monitor: Monitor{
			NewsInterval:     5,
			MoveThresholdPct: 10,
			MinEngagement:    100,
			FetchTimeout:     Duration(30 * time.Second),
		},
		Analyzer: Analyzer{
			Floor:             0.3,
			CorrelationWindow: Duration(15 * time.Minute),
			SigmaThreshold:    3,
			TrendLength:       3,
		},
		Narrative: Narrative{
			Threshold:       0.6,
			MaxPerCycle:     3,
			GenerateTimeout: Duration(60 * time.Second),
		},
		Publish: Publish{
			ConfidenceFloor: 0.7,
			MaxCandidateAge: 6,
			MinLength:       50,
			MaxLength:       280,
			PostTimeout:     Duration(30 * time.Second),
		},
		Recovery: Recovery{
			RetryBudget: 3,
			RetryWindow: 10,
			BackoffBase: 1,
			BackoffMax:  8,
		},
		RateLimit: RateLimit{
			Capacity:       1,
			RefillPerCycle: 1,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML config file over defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints plus cross-field rules the struct tags
// cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Publish.MinLength > c.Publish.MaxLength {
		return fmt.Errorf("invalid config: min_length %d exceeds max_length %d",
			c.Publish.MinLength, c.Publish.MaxLength)
	}
	if c.Recovery.BackoffBase > c.Recovery.BackoffMax {
		return fmt.Errorf("invalid config: backoff_base %d exceeds backoff_max %d",
			c.Recovery.BackoffBase, c.Recovery.BackoffMax)
	}
	return nil
}
