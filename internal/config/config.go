// internal/config/config.go
//
// This package handles configuration and the .skilltree directory structure.
// Every project that syncs a skill tree gets a .skilltree/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".skilltree"

	defaultTreePath     = "tree.svg"
	defaultTaxonomyPath = "data/AC.json"
	defaultLogLevel     = "info"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const defaultProjectConfigYAML = `# skilltree project configuration
version: 1

# SVG tree and competency taxonomy, relative to the project root.
tree: tree.svg
taxonomy: data/AC.json

# Where scores live. backend: file | sqlite | memory
store:
  backend: file
  # path: .skilltree/state/scores.json

engine:
  acceleration_power: 2
  max_speed: 4
  stop_window: 1.5s
  ease_window: 0.5s
  frame_interval: 16ms
  # taxonomy | element
  color_precedence: taxonomy

bridge:
  enabled: true
  host: 127.0.0.1
  port: 8742

logging:
  level: info
`

// StoreConfig selects the score store.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// EngineConfig tunes the synchronization passes.
type EngineConfig struct {
	AccelerationPower float64       `yaml:"acceleration_power"`
	MaxSpeed          float64       `yaml:"max_speed"`
	StopWindow        time.Duration `yaml:"stop_window"`
	EaseWindow        time.Duration `yaml:"ease_window"`
	FrameInterval     time.Duration `yaml:"frame_interval"`
	ColorPrecedence   string        `yaml:"color_precedence"`
}

// BridgeConfig configures the HTTP event bridge.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .skilltree/config.yaml.
type ProjectConfig struct {
	Version  int           `yaml:"version"`
	Tree     string        `yaml:"tree"`
	Taxonomy string        `yaml:"taxonomy"`
	Store    StoreConfig   `yaml:"store"`
	Engine   EngineConfig  `yaml:"engine"`
	Bridge   BridgeConfig  `yaml:"bridge"`
	Logging  LoggingConfig `yaml:"logging"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory the command ran from
	ProjectDir string

	// StateRoot is ProjectDir/.skilltree
	StateRoot string

	Project ProjectConfig
}

// InitDir creates the .skilltree directory structure in the given project directory.
//
// Structure created:
// .skilltree/
// ├── logs/    <- engine log and score journal
// └── state/   <- score store
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// Load reads the project configuration, applying defaults and environment
// overrides. A missing config file is not an error.
func Load(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateRoot:  filepath.Join(abs, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// TreePath is the resolved SVG path.
func (c *Config) TreePath() string {
	return c.Project.Tree
}

// TaxonomyPath is the resolved taxonomy path.
func (c *Config) TaxonomyPath() string {
	return c.Project.Taxonomy
}

// StorePath is the resolved store location, defaulting per backend.
func (c *Config) StorePath() string {
	if c.Project.Store.Path != "" {
		return c.Project.Store.Path
	}
	name := "scores.json"
	if c.Project.Store.Backend == BackendSQLite {
		name = "scores.db"
	}
	return filepath.Join(c.StateDir(), name)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	parsed := defaultProjectConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed.applyEnvOverrides()
	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:  1,
		Tree:     defaultTreePath,
		Taxonomy: defaultTaxonomyPath,
		Store:    StoreConfig{Backend: BackendFile},
		Engine: EngineConfig{
			AccelerationPower: 2,
			MaxSpeed:          4,
			StopWindow:        1500 * time.Millisecond,
			EaseWindow:        500 * time.Millisecond,
			FrameInterval:     16 * time.Millisecond,
			ColorPrecedence:   "taxonomy",
		},
		Logging: LoggingConfig{Level: defaultLogLevel},
	}
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("SKILLTREE_STORE_BACKEND")); v != "" {
		pc.Store.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("SKILLTREE_LOG_LEVEL")); v != "" {
		pc.Logging.Level = v
	}
}

func (pc *ProjectConfig) applyDefaults() {
	def := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Tree) == "" {
		pc.Tree = def.Tree
	}
	if strings.TrimSpace(pc.Taxonomy) == "" {
		pc.Taxonomy = def.Taxonomy
	}
	if strings.TrimSpace(pc.Store.Backend) == "" {
		pc.Store.Backend = def.Store.Backend
	}
	if pc.Engine.AccelerationPower == 0 {
		pc.Engine.AccelerationPower = def.Engine.AccelerationPower
	}
	if pc.Engine.MaxSpeed == 0 {
		pc.Engine.MaxSpeed = def.Engine.MaxSpeed
	}
	if pc.Engine.StopWindow == 0 {
		pc.Engine.StopWindow = def.Engine.StopWindow
	}
	if pc.Engine.EaseWindow == 0 {
		pc.Engine.EaseWindow = def.Engine.EaseWindow
	}
	if pc.Engine.FrameInterval == 0 {
		pc.Engine.FrameInterval = def.Engine.FrameInterval
	}
	if strings.TrimSpace(pc.Engine.ColorPrecedence) == "" {
		pc.Engine.ColorPrecedence = def.Engine.ColorPrecedence
	}
	if strings.TrimSpace(pc.Logging.Level) == "" {
		pc.Logging.Level = def.Logging.Level
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Tree = resolvePath(base, pc.Tree)
	pc.Taxonomy = resolvePath(base, pc.Taxonomy)
	pc.Store.Backend = normalizeKeyword(pc.Store.Backend)
	pc.Store.Path = resolvePath(base, pc.Store.Path)
	pc.Engine.ColorPrecedence = normalizeKeyword(pc.Engine.ColorPrecedence)
	pc.Logging.Level = normalizeKeyword(pc.Logging.Level)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Store.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("store.backend must be 'file', 'sqlite' or 'memory'")
	}
	if pc.Engine.AccelerationPower < 0 {
		return fmt.Errorf("engine.acceleration_power must be positive")
	}
	if pc.Engine.MaxSpeed < 0 {
		return fmt.Errorf("engine.max_speed must be positive")
	}
	if pc.Engine.StopWindow < 0 || pc.Engine.EaseWindow < 0 || pc.Engine.FrameInterval < 0 {
		return fmt.Errorf("engine windows must not be negative")
	}
	switch pc.Engine.ColorPrecedence {
	case "taxonomy", "element":
	default:
		return fmt.Errorf("engine.color_precedence must be 'taxonomy' or 'element'")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	if pc.Bridge.Port != 0 && (pc.Bridge.Port < 0 || pc.Bridge.Port > 65535) {
		return fmt.Errorf("bridge.port %s out of range", strconv.Itoa(pc.Bridge.Port))
	}
	return nil
}

func normalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
