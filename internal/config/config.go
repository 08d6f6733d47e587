// Package config implements the layered configuration loader of spec.md
// §4.16: defaults < global file < project file < environment variables.
// Structurally this is the teacher's internal/config (BurntSushi/toml,
// env-var expansion, Validate/DeepCopy) regrown around the pipeline's own settings instead of an HTTP service's.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/c2h5oh/datasize"

	"github.com/scoutforge/scout/internal/scouterr"
)

// Config is the fully merged scout configuration.
type Config struct {
	Index     IndexConfig     `toml:"index" json:"index"`
	Target    TargetConfig    `toml:"target" json:"target"`
	Lanes     LaneConfig      `toml:"lanes" json:"lanes"`
	Discovery DiscoveryConfig `toml:"discovery" json:"discovery"`
	Clone     CloneConfig     `toml:"clone" json:"clone"`
	Modernity ModernityConfig `toml:"modernity" json:"modernity"`
	Scoring   Tier2Config     `toml:"scoring" json:"scoring"`
	Focus     FocusConfig     `toml:"focus" json:"focus"`
	Watch     WatchConfig     `toml:"watch" json:"watch"`
	Session   SessionConfig   `toml:"session" json:"session"`
	Remote    RemoteConfig    `toml:"remote" json:"remote"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// IndexConfig governs the Fingerprinter's traversal (spec.md §4.1).
type IndexConfig struct {
	ExcludeGlobs []string `toml:"exclude_globs" json:"exclude_globs"`
	MaxDepth     int      `toml:"max_depth" json:"max_depth"`
	MaxFileSize  datasize.ByteSize `toml:"max_file_size" json:"max_file_size"`
}

// TargetConfig governs the Target Inferer (spec.md §4.2).
type TargetConfig struct {
	MinConfidence float64 `toml:"min_confidence" json:"min_confidence"`
}

// LaneConfig governs the Search-Lane Builder (spec.md §4.3).
type LaneConfig struct {
	TopicCap        int     `toml:"topic_cap" json:"topic_cap"`
	MinStars        int     `toml:"min_stars" json:"min_stars"`
	PushWindowDays  int     `toml:"push_window_days" json:"push_window_days"`
}

// DiscoveryConfig governs the Discovery Engine (spec.md §4.4).
type DiscoveryConfig struct {
	WeightRecency    float64  `toml:"weight_recency" json:"weight_recency"`
	WeightActivity   float64  `toml:"weight_activity" json:"weight_activity"`
	WeightLanes      float64  `toml:"weight_lanes" json:"weight_lanes"`
	WindowDays       int      `toml:"window_days" json:"window_days"`
	ActivityDivisor  float64  `toml:"activity_divisor" json:"activity_divisor"`
	LaneCap          int      `toml:"lane_cap" json:"lane_cap"`
	Tier1Cap         int      `toml:"tier1_cap" json:"tier1_cap"`
	CacheTTLHours    int      `toml:"cache_ttl_hours" json:"cache_ttl_hours"`
	MaxBackoff       string   `toml:"max_backoff" json:"max_backoff"`
	BackoffThreshold int      `toml:"backoff_threshold" json:"backoff_threshold"`
	LicenseAllowList []string `toml:"license_allow_list" json:"license_allow_list"`
	ExclusionKeywords []string `toml:"exclusion_keywords" json:"exclusion_keywords"`
}

// CloneConfig governs the Clone Engine (spec.md §4.5).
type CloneConfig struct {
	Budget int `toml:"budget" json:"budget"`
}

// ModernityConfig governs the Modernity Auditor (spec.md §4.7).
type ModernityConfig struct {
	MinEngineMajor int `toml:"min_engine_major" json:"min_engine_major"`
}

// Tier2Config governs the Tier-2 Scorer (spec.md §4.8).
type Tier2Config struct {
	WeightStructural float64 `toml:"weight_structural" json:"weight_structural"`
	WeightModernity  float64 `toml:"weight_modernity" json:"weight_modernity"`
}

// FocusConfig governs the Focus Bundler (spec.md §4.9).
type FocusConfig struct {
	MaxEntrypointsPerKind int               `toml:"max_entrypoints_per_kind" json:"max_entrypoints_per_kind"`
	MaxDirsPerTarget      int               `toml:"max_dirs_per_target" json:"max_dirs_per_target"`
	MaxFilesPerDir        int               `toml:"max_files_per_dir" json:"max_files_per_dir"`
	MaxDepth              int               `toml:"max_depth" json:"max_depth"`
	IncludedExtensions    []string          `toml:"included_extensions" json:"included_extensions"`
}

// WatchConfig governs the Watch Store/Lock/Change Detector (spec.md §4.11-4.13).
type WatchConfig struct {
	DefaultPollHours  int    `toml:"default_poll_hours" json:"default_poll_hours"`
	LockStaleSeconds  int    `toml:"lock_stale_seconds" json:"lock_stale_seconds"`
	LockRetryAttempts int    `toml:"lock_retry_attempts" json:"lock_retry_attempts"`
}

// SessionConfig governs the Session Builder and Review Launcher
// (spec.md §4.14-4.15).
type SessionConfig struct {
	TokenBudget         int      `toml:"token_budget" json:"token_budget"`
	MaxFilesPerChunk    int      `toml:"max_files_per_chunk" json:"max_files_per_chunk"`
	ReviewerTimeoutSecs int      `toml:"reviewer_timeout_seconds" json:"reviewer_timeout_seconds"`
	ReviewerSkillPin    string   `toml:"reviewer_skill_pin" json:"reviewer_skill_pin"`
	ReviewerCommand     []string `toml:"reviewer_command" json:"reviewer_command"`
	ExtraExcludes       []string `toml:"extra_excludes" json:"extra_excludes"`
}

// RemoteConfig governs remote API authentication (spec.md §4.16).
type RemoteConfig struct {
	Token       string `toml:"token" json:"token"`
	HostCLIName string `toml:"host_cli_name" json:"host_cli_name"`
}

// LoggingConfig governs internal/logger.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Defaults returns the base configuration layer (spec.md §4.16 "defaults").
func Defaults() *Config {
	return &Config{
		Index: IndexConfig{
			ExcludeGlobs: []string{
				"vendor/**", "node_modules/**", ".git/**", "dist/**", "build/**",
				"__pycache__/**", "*.pyc", ".venv/**", "target/**", ".tox/**",
			},
			MaxDepth:    10,
			MaxFileSize: 1 * datasize.MB,
		},
		Target: TargetConfig{MinConfidence: 0.2},
		Lanes: LaneConfig{
			TopicCap:       5,
			MinStars:       5,
			PushWindowDays: 365,
		},
		Discovery: DiscoveryConfig{
			WeightRecency:    0.4,
			WeightActivity:   0.35,
			WeightLanes:      0.25,
			WindowDays:       365,
			ActivityDivisor:  10,
			LaneCap:          3,
			Tier1Cap:         50,
			CacheTTLHours:    24,
			MaxBackoff:       "2m",
			BackoffThreshold: 3,
			LicenseAllowList: []string{"MIT", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause", "ISC", "MPL-2.0"},
		},
		Clone:     CloneConfig{Budget: 15},
		Modernity: ModernityConfig{MinEngineMajor: 18},
		Scoring:   Tier2Config{WeightStructural: 0.3, WeightModernity: 0.2},
		Focus: FocusConfig{
			MaxEntrypointsPerKind: 5,
			MaxDirsPerTarget:      25,
			MaxFilesPerDir:        50,
			MaxDepth:              5,
			IncludedExtensions: []string{
				".go", ".ts", ".tsx", ".js", ".py", ".md", ".json", ".toml", ".yaml", ".yml",
			},
		},
		Watch: WatchConfig{
			DefaultPollHours:  24,
			LockStaleSeconds:  30,
			LockRetryAttempts: 10,
		},
		Session: SessionConfig{
			TokenBudget:         12000,
			MaxFilesPerChunk:    20,
			ReviewerTimeoutSecs: 1800,
			ReviewerSkillPin:    "scout-review-v1",
			ReviewerCommand:     []string{"claude", "--skill", "scout-review-v1"},
			ExtraExcludes: []string{
				"*.lock", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
				"go.sum", "*.min.js", "*.map", "*.png", "*.jpg", "*.jpeg", "*.gif",
				"*.woff", "*.woff2", "*.ttf", "dist/**", "build/**",
			},
		},
		Remote:  RemoteConfig{HostCLIName: "gh"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultGlobalConfigPath returns the default global config file location
// under the user config directory.
func DefaultGlobalConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scout", "config.toml"), nil
}

func userConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if v := os.Getenv("APPDATA"); v != "" {
			return v, nil
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
			return v, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

// Load performs the full four-layer merge of spec.md §4.16.
// globalPath and projectPath may not exist; missing files are skipped,
// not errors.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := Defaults()

	if globalPath != "" {
		if err := mergeTOMLFile(cfg, globalPath); err != nil {
			return nil, err
		}
	}

	if projectPath != "" {
		if err := mergeJSONFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, scouterr.Wrap(scouterr.ConfigInvalid, "merged configuration failed validation", err)
	}

	return cfg, nil
}

func mergeTOMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return scouterr.Wrap(scouterr.ConfigInvalid, "read global config", err)
	}
	expanded := os.ExpandEnv(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return scouterr.Wrap(scouterr.ConfigInvalid, "parse global config toml", err)
	}
	return nil
}

func mergeJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return scouterr.Wrap(scouterr.ConfigInvalid, "read project config", err)
	}
	expanded := os.ExpandEnv(string(data))

	// Unknown keys are rejected (spec.md §4.16): decode strictly into a
	// throwaway Config first to validate shape, then merge known fields
	// onto cfg.
	dec := json.NewDecoder(strings.NewReader(expanded))
	dec.DisallowUnknownFields()
	var probe Config
	if err := dec.Decode(&probe); err != nil {
		return scouterr.Wrap(scouterr.ConfigInvalid, "parse project config json", err)
	}
	if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
		return scouterr.Wrap(scouterr.ConfigInvalid, "merge project config json", err)
	}
	return nil
}

// envOverrides is the namespaced set of SCOUT_* environment overrides
// (spec.md §6 "Configuration inputs").
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, value string) bool
}{
	{"SCOUT_CLONE_BUDGET", func(c *Config, v string) bool { return setInt(&c.Clone.Budget, v) }},
	{"SCOUT_TIER1_CAP", func(c *Config, v string) bool { return setInt(&c.Discovery.Tier1Cap, v) }},
	{"SCOUT_TOKEN_BUDGET", func(c *Config, v string) bool { return setInt(&c.Session.TokenBudget, v) }},
	{"SCOUT_REVIEWER_TIMEOUT_SECONDS", func(c *Config, v string) bool { return setInt(&c.Session.ReviewerTimeoutSecs, v) }},
	{"SCOUT_LOG_LEVEL", func(c *Config, v string) bool { c.Logging.Level = v; return true }},
	{"SCOUT_REMOTE_TOKEN", func(c *Config, v string) bool { c.Remote.Token = v; return true }},
}

// applyEnv merges environment variables, the highest-precedence layer.
// Numeric values are parsed strictly; an invalid value is ignored and the
// previous layer's value is kept (spec.md §4.16).
func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.apply(cfg, v)
		}
	}

	if cfg.Remote.Token == "" {
		cfg.Remote.Token = remoteTokenFromHostCLI(cfg.Remote.HostCLIName)
	}
}

// setInt parses v strictly as an integer, writing into *dst only on
// success, and reports whether it did.
func setInt(dst *int, v string) bool {
	n, err := strconv.Atoi(v)
	if err != nil {
		return false
	}
	*dst = n
	return true
}

// remoteTokenFromHostCLI is the secondary token source named in spec.md
// §4.16: if no environment token is set, fall back to the host CLI tool's
// own stored credential. Scout does not itself invoke that tool here; it
// only recognizes the convention of an env var the host CLI typically
// exports once authenticated, to avoid spawning an extra subprocess on
// every config load.
func remoteTokenFromHostCLI(hostCLIName string) string {
	switch hostCLIName {
	case "gh":
		if v := os.Getenv("GH_TOKEN"); v != "" {
			return v
		}
		if v := os.Getenv("GITHUB_TOKEN"); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks range constraints and enum-like fields (spec.md §4.17).
func (c *Config) Validate() error {
	if c.Target.MinConfidence < 0 || c.Target.MinConfidence > 1 {
		return fmt.Errorf("target.min_confidence must be in [0,1]")
	}
	if c.Clone.Budget < 0 {
		return fmt.Errorf("clone.budget must be nonnegative")
	}
	if c.Discovery.Tier1Cap < 0 {
		return fmt.Errorf("discovery.tier1_cap must be nonnegative")
	}
	sumWeights := c.Discovery.WeightRecency + c.Discovery.WeightActivity + c.Discovery.WeightLanes
	if sumWeights > 1.0001 {
		return fmt.Errorf("discovery weights must sum to <= 1.0, got %.4f", sumWeights)
	}
	if c.Scoring.WeightStructural < 0 || c.Scoring.WeightModernity < 0 {
		return fmt.Errorf("scoring weights must be nonnegative")
	}
	if c.Session.TokenBudget <= 0 {
		return fmt.Errorf("session.token_budget must be positive")
	}
	if c.Session.MaxFilesPerChunk <= 0 {
		return fmt.Errorf("session.max_files_per_chunk must be positive")
	}
	if c.Watch.LockStaleSeconds <= 0 {
		return fmt.Errorf("watch.lock_stale_seconds must be positive")
	}
	return nil
}

// DeepCopy returns an independent copy of the configuration.
func (c *Config) DeepCopy() *Config {
	clone := *c
	clone.Index.ExcludeGlobs = append([]string(nil), c.Index.ExcludeGlobs...)
	clone.Lanes = c.Lanes
	clone.Discovery.LicenseAllowList = append([]string(nil), c.Discovery.LicenseAllowList...)
	clone.Discovery.ExclusionKeywords = append([]string(nil), c.Discovery.ExclusionKeywords...)
	clone.Focus.IncludedExtensions = append([]string(nil), c.Focus.IncludedExtensions...)
	clone.Session.ExtraExcludes = append([]string(nil), c.Session.ExtraExcludes...)
	return &clone
}
