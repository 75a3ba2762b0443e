package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pressline/internal/domain"
)

// Config models pressline.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Content struct {
		// Catalog maps content-requirement types to their lane and whether
		// the generation collaborator can produce them at all.
		Catalog map[string]ContentType `yaml:"catalog"`
	} `yaml:"content"`
	Execution ExecutionConfig `yaml:"execution"`
	Generation struct {
		Model string `yaml:"model"`
	} `yaml:"generation"`
	Deck struct {
		BaseURL string `yaml:"base_url"`
		Folder  string `yaml:"folder"`
	} `yaml:"deck"`
}

type ContentType struct {
	Lane        string `yaml:"lane"`
	Generatable bool   `yaml:"generatable"`
	Description string `yaml:"description"`
}

// ExecutionConfig tunes the orchestrator's polling cadences and the
// progress bands each phase reports within.
type ExecutionConfig struct {
	Progress ProgressConfig `yaml:"progress"`
	Deck     DeckPollConfig `yaml:"deck"`
}

type ProgressConfig struct {
	PlanningFloor       float64 `yaml:"planning_floor"`
	ObservedCeiling     float64 `yaml:"observed_ceiling"`
	SimulatedCap        float64 `yaml:"simulated_cap"`
	SimulatedIncrement  float64 `yaml:"simulated_increment"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
}

type DeckPollConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	PollDelaySeconds int     `yaml:"poll_delay_seconds"`
	BandStart        float64 `yaml:"band_start"`
	BandEnd          float64 `yaml:"band_end"`
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if len(c.Content.Catalog) == 0 {
		return fmt.Errorf("config.content.catalog is required")
	}
	for kind, ct := range c.Content.Catalog {
		if kind == "" {
			return fmt.Errorf("config.content.catalog contains empty type")
		}
		if ct.Lane != domain.LaneOwned && ct.Lane != domain.LaneMedia {
			return fmt.Errorf("content type %s has invalid lane %q", kind, ct.Lane)
		}
	}
	p := c.Execution.Progress
	if p.PlanningFloor < 0 || p.PlanningFloor >= p.ObservedCeiling {
		return fmt.Errorf("progress.planning_floor must sit below progress.observed_ceiling")
	}
	if p.SimulatedCap < p.PlanningFloor || p.SimulatedCap > p.ObservedCeiling {
		return fmt.Errorf("progress.simulated_cap must sit within the observed band")
	}
	if p.SimulatedIncrement <= 0 {
		return fmt.Errorf("progress.simulated_increment must be positive")
	}
	if p.PollIntervalSeconds <= 0 {
		return fmt.Errorf("progress.poll_interval_seconds must be positive")
	}
	d := c.Execution.Deck
	if d.MaxAttempts <= 0 {
		return fmt.Errorf("deck.max_attempts must be positive")
	}
	if d.PollDelaySeconds <= 0 {
		return fmt.Errorf("deck.poll_delay_seconds must be positive")
	}
	if d.BandStart < c.Execution.Progress.ObservedCeiling || d.BandEnd <= d.BandStart || d.BandEnd > 100 {
		return fmt.Errorf("deck progress band must sit between the observed ceiling and 100")
	}
	return nil
}

// Lane returns the lane for a content type, or false if the type is unknown
// or not generatable.
func (c *Config) Lane(contentType string) (string, bool) {
	ct, ok := c.Content.Catalog[contentType]
	if !ok || !ct.Generatable {
		return "", false
	}
	return ct.Lane, true
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pressline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	cfg.Org.ID = orgID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  id: %s
  name: Default Org

content:
  catalog:
    press_release:
      lane: media
      generatable: true
      description: "Wire-ready press release"
    media_pitch:
      lane: media
      generatable: true
      description: "Journalist pitch email"
    op_ed:
      lane: media
      generatable: true
      description: "Bylined opinion piece"
    statement:
      lane: media
      generatable: true
      description: "Official spokesperson statement"
    email_campaign:
      lane: owned
      generatable: true
      description: "Direct email to a stakeholder segment"
    social_post:
      lane: owned
      generatable: true
      description: "Social channel post"
    blog_post:
      lane: owned
      generatable: true
      description: "Owned blog article"
    newsletter:
      lane: owned
      generatable: true
      description: "Newsletter section"
    executive_memo:
      lane: owned
      generatable: true
      description: "Internal executive briefing"
    talking_points:
      lane: owned
      generatable: true
      description: "Spokesperson talking points"
    live_event:
      lane: owned
      generatable: false
      description: "In-person or virtual event; planned, not generated"
    partnership_outreach:
      lane: owned
      generatable: false
      description: "Direct partnership contact; handled by humans"
    speaking_engagement:
      lane: media
      generatable: false
      description: "Conference slot; booked, not generated"

execution:
  progress:
    planning_floor: 10
    observed_ceiling: 85
    simulated_cap: 80
    simulated_increment: 2
    poll_interval_seconds: 3
  deck:
    max_attempts: 72
    poll_delay_seconds: 5
    band_start: 90
    band_end: 98

generation:
  model: gemini-2.5-flash

deck:
  base_url: ""
  folder: Campaigns
`
