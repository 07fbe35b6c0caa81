package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Gonzo3030/gonzo/internal/config"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// Scenario is a scripted run of the loop.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Cycles is the number of cycles to run.
	Cycles int `yaml:"cycles"`

	// Config holds partial configuration overrides merged over defaults.
	Config yaml.Node `yaml:"config,omitempty"`

	// Feeds scripts the inbound data, keyed by cycle. Cycles without an
	// entry see empty fetches.
	Feeds []CycleFeed `yaml:"feeds,omitempty"`

	// Generator scripts generation results, consumed one per Generate
	// call in order.
	Generator []GeneratorStep `yaml:"generator,omitempty"`

	// Poster scripts post results, consumed one per Post call in order.
	// An exhausted script keeps accepting posts with sequential IDs.
	Poster []PosterStep `yaml:"poster,omitempty"`
}

// CycleFeed scripts one cycle's inbound batches. The error fields carry a
// failure kind ("transient", "auth", ...); a feed with an error scripted
// fails instead of returning its batch.
type CycleFeed struct {
	Cycle  int                   `yaml:"cycle"`
	Market []state.MarketRecord  `yaml:"market,omitempty"`
	Social []state.SocialMention `yaml:"social,omitempty"`
	News   []state.NewsEvent     `yaml:"news,omitempty"`

	MarketError string `yaml:"market_error,omitempty"`
	SocialError string `yaml:"social_error,omitempty"`
	NewsError   string `yaml:"news_error,omitempty"`
}

// GeneratorStep scripts one Generate call.
type GeneratorStep struct {
	Text       string  `yaml:"text,omitempty"`
	Confidence float64 `yaml:"confidence,omitempty"`
	Error      string  `yaml:"error,omitempty"`
}

// PosterStep scripts one Post call.
type PosterStep struct {
	PostID string `yaml:"post_id,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario for structural problems.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario: name is required")
	}
	if sc.Cycles < 1 {
		return fmt.Errorf("scenario %s: cycles must be at least 1", sc.Name)
	}
	seen := make(map[int]bool)
	for _, f := range sc.Feeds {
		if f.Cycle < 1 || f.Cycle > sc.Cycles {
			return fmt.Errorf("scenario %s: feed entry for cycle %d outside 1..%d",
				sc.Name, f.Cycle, sc.Cycles)
		}
		if seen[f.Cycle] {
			return fmt.Errorf("scenario %s: duplicate feed entry for cycle %d", sc.Name, f.Cycle)
		}
		seen[f.Cycle] = true
	}
	return nil
}

// BuildConfig merges the scenario's overrides over the defaults.
func (sc *Scenario) BuildConfig() (config.Config, error) {
	cfg := config.Default()
	if !sc.Config.IsZero() {
		if err := sc.Config.Decode(&cfg); err != nil {
			return config.Config{}, fmt.Errorf("scenario %s: config: %w", sc.Name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return cfg, nil
}
