package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"focuswatch/internal/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the monitoring daemon's runtime settings. Values are resolved
// in precedence order: environment variables, then the YAML settings file,
// then built-in defaults.
type Config struct {
	// Environment selects the database profile (production, development, test)
	Environment string

	// PollInterval is the background tick period
	PollInterval time.Duration

	// TickTimeout bounds each external call made during a tick
	TickTimeout time.Duration

	// AllowedDailyBudget is the usage at which the attention score reaches 0
	AllowedDailyBudget time.Duration

	// ScoreCacheTTL bounds how long a cached per-date score stays valid
	ScoreCacheTTL time.Duration

	// BackfillWindowDays is the trailing window reconciled on startup
	BackfillWindowDays int

	// SelfPackage is this process's own package, excluded from aggregation
	SelfPackage string

	// Thresholds is the alert trigger table, ascending by duration
	Thresholds []ThresholdSetting

	// Cooldowns maps intensity names to minimum re-fire intervals
	Cooldowns map[string]time.Duration

	// MonitoredPackages seeds the monitored set on first run only
	MonitoredPackages []MonitoredSetting
}

// ThresholdSetting is one threshold row in the settings file.
type ThresholdSetting struct {
	Duration  time.Duration
	Intensity string
}

// MonitoredSetting is one monitored-set seed entry in the settings file.
type MonitoredSetting struct {
	Package string `yaml:"package"`
	AppName string `yaml:"appName"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment:        "production",
		PollInterval:       30 * time.Second,
		TickTimeout:        10 * time.Second,
		AllowedDailyBudget: 4 * time.Hour,
		ScoreCacheTTL:      5 * time.Minute,
		BackfillWindowDays: 14,
		SelfPackage:        "focuswatch",
		Thresholds: []ThresholdSetting{
			{Duration: 30 * time.Minute, Intensity: "mild"},
			{Duration: 1 * time.Hour, Intensity: "normal"},
			{Duration: 2 * time.Hour, Intensity: "harsh"},
			{Duration: 4 * time.Hour, Intensity: "critical"},
		},
		Cooldowns: map[string]time.Duration{
			"mild":     24 * time.Hour,
			"normal":   12 * time.Hour,
			"harsh":    4 * time.Hour,
			"critical": 2 * time.Hour,
		},
	}
}

// Load resolves the full configuration. A .env file is loaded first when
// present, then the YAML settings file named by FOCUSWATCH_CONFIG (or the
// explicit path argument), then environment variable overrides.
func Load(settingsPath string) (*Config, error) {
	// Missing .env is the normal case, not an error
	_ = godotenv.Load()

	cfg := Default()

	if settingsPath == "" {
		settingsPath = os.Getenv("FOCUSWATCH_CONFIG")
	}
	if settingsPath != "" {
		if err := cfg.loadYAML(settingsPath); err != nil {
			return nil, err
		}
	}

	cfg.loadEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// yamlSettings mirrors Config with durations as strings, since the YAML
// decoder has no native duration support. Absent fields leave the current
// value untouched.
type yamlSettings struct {
	Environment        string             `yaml:"environment"`
	PollInterval       string             `yaml:"pollInterval"`
	TickTimeout        string             `yaml:"tickTimeout"`
	AllowedDailyBudget string             `yaml:"allowedDailyBudget"`
	ScoreCacheTTL      string             `yaml:"scoreCacheTTL"`
	BackfillWindowDays *int               `yaml:"backfillWindowDays"`
	SelfPackage        string             `yaml:"selfPackage"`
	Thresholds         []yamlThreshold    `yaml:"thresholds"`
	Cooldowns          map[string]string  `yaml:"cooldowns"`
	MonitoredPackages  []MonitoredSetting `yaml:"monitoredPackages"`
}

type yamlThreshold struct {
	Duration  string `yaml:"duration"`
	Intensity string `yaml:"intensity"`
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("settings file %s does not exist", path)
		}
		return fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var settings yamlSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return c.applySettings(path, settings)
}

func (c *Config) applySettings(path string, s yamlSettings) error {
	parse := func(field, raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("settings file %s: invalid %s %q: %w", path, field, raw, err)
		}
		return d, nil
	}

	if s.Environment != "" {
		c.Environment = s.Environment
	}
	if s.SelfPackage != "" {
		c.SelfPackage = s.SelfPackage
	}
	if s.BackfillWindowDays != nil {
		c.BackfillWindowDays = *s.BackfillWindowDays
	}

	var err error
	if s.PollInterval != "" {
		if c.PollInterval, err = parse("pollInterval", s.PollInterval); err != nil {
			return err
		}
	}
	if s.TickTimeout != "" {
		if c.TickTimeout, err = parse("tickTimeout", s.TickTimeout); err != nil {
			return err
		}
	}
	if s.AllowedDailyBudget != "" {
		if c.AllowedDailyBudget, err = parse("allowedDailyBudget", s.AllowedDailyBudget); err != nil {
			return err
		}
	}
	if s.ScoreCacheTTL != "" {
		if c.ScoreCacheTTL, err = parse("scoreCacheTTL", s.ScoreCacheTTL); err != nil {
			return err
		}
	}

	if len(s.Thresholds) > 0 {
		thresholds := make([]ThresholdSetting, 0, len(s.Thresholds))
		for _, t := range s.Thresholds {
			d, err := parse("threshold duration", t.Duration)
			if err != nil {
				return err
			}
			thresholds = append(thresholds, ThresholdSetting{Duration: d, Intensity: t.Intensity})
		}
		c.Thresholds = thresholds
	}

	if len(s.Cooldowns) > 0 {
		cooldowns := make(map[string]time.Duration, len(s.Cooldowns))
		for name, raw := range s.Cooldowns {
			d, err := parse("cooldown", raw)
			if err != nil {
				return err
			}
			cooldowns[name] = d
		}
		// Intensities left out of the file keep their default cooldowns
		for name, d := range c.Cooldowns {
			if _, ok := cooldowns[name]; !ok {
				cooldowns[name] = d
			}
		}
		c.Cooldowns = cooldowns
	}

	if len(s.MonitoredPackages) > 0 {
		c.MonitoredPackages = s.MonitoredPackages
	}

	return nil
}

func (c *Config) loadEnvironment() {
	if env := os.Getenv("FOCUSWATCH_ENV"); env != "" {
		c.Environment = env
	}
	if v := os.Getenv("FOCUSWATCH_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("FOCUSWATCH_TICK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.TickTimeout = d
		}
	}
	if v := os.Getenv("FOCUSWATCH_DAILY_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.AllowedDailyBudget = d
		}
	}
	if v := os.Getenv("FOCUSWATCH_SCORE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.ScoreCacheTTL = d
		}
	}
	if v := os.Getenv("FOCUSWATCH_BACKFILL_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.BackfillWindowDays = n
		}
	}
	if v := os.Getenv("FOCUSWATCH_SELF_PACKAGE"); v != "" {
		c.SelfPackage = v
	}
}

// Validate checks the configuration for inconsistent settings.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive, got %v", c.PollInterval)
	}
	if c.TickTimeout <= 0 {
		return fmt.Errorf("tickTimeout must be positive, got %v", c.TickTimeout)
	}
	if c.AllowedDailyBudget <= 0 {
		return fmt.Errorf("allowedDailyBudget must be positive, got %v", c.AllowedDailyBudget)
	}
	if c.ScoreCacheTTL <= 0 {
		return fmt.Errorf("scoreCacheTTL must be positive, got %v", c.ScoreCacheTTL)
	}
	if c.BackfillWindowDays < 0 {
		return fmt.Errorf("backfillWindowDays cannot be negative, got %d", c.BackfillWindowDays)
	}
	if len(c.Thresholds) == 0 {
		return fmt.Errorf("at least one threshold is required")
	}

	for i := 1; i < len(c.Thresholds); i++ {
		if c.Thresholds[i].Duration <= c.Thresholds[i-1].Duration {
			return fmt.Errorf("thresholds must be strictly ascending by duration, got %v after %v",
				c.Thresholds[i].Duration, c.Thresholds[i-1].Duration)
		}
	}

	// Cooldowns must be strictly decreasing as intensity increases
	order := []string{"mild", "normal", "harsh", "critical"}
	var prev time.Duration
	for i, name := range order {
		d, ok := c.Cooldowns[name]
		if !ok {
			return fmt.Errorf("cooldown for intensity %q is missing", name)
		}
		if d <= 0 {
			return fmt.Errorf("cooldown for intensity %q must be positive, got %v", name, d)
		}
		if i > 0 && d >= prev {
			return fmt.Errorf("cooldowns must strictly decrease with intensity, %q (%v) >= %q (%v)",
				name, d, order[i-1], prev)
		}
		prev = d
	}

	return nil
}

// ThresholdTable converts the configured threshold settings into the typed
// table used by the tracker, sorted ascending by duration.
func (c *Config) ThresholdTable() []types.Threshold {
	table := make([]types.Threshold, 0, len(c.Thresholds))
	for _, t := range c.Thresholds {
		table = append(table, types.Threshold{
			Duration:  t.Duration,
			Intensity: types.ParseIntensity(t.Intensity),
		})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Duration < table[j].Duration })
	return table
}

// CooldownTable converts the configured cooldown settings into the typed
// map used by the dispatcher.
func (c *Config) CooldownTable() map[types.Intensity]time.Duration {
	out := make(map[types.Intensity]time.Duration, len(c.Cooldowns))
	for name, d := range c.Cooldowns {
		out[types.ParseIntensity(name)] = d
	}
	return out
}

// MonitoredSeed converts the configured monitored-set seed entries.
func (c *Config) MonitoredSeed() []types.MonitoredPackage {
	out := make([]types.MonitoredPackage, 0, len(c.MonitoredPackages))
	for _, m := range c.MonitoredPackages {
		pkg := strings.TrimSpace(m.Package)
		if pkg == "" {
			continue
		}
		out = append(out, types.MonitoredPackage{PackageName: pkg, AppName: m.AppName})
	}
	return out
}
