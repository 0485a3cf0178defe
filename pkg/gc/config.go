package gc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds every tunable the collector reads when New builds it. Its
// fields are the runtime-configurable counterparts of what the original
// implementation fixed at compile time.
type Config struct {
	Generations int      `json:"generations"`
	Buckets     int      `json:"buckets"`
	Thresholds  []uint64 `json:"thresholds,omitempty"`
	ReportPath  string   `json:"leak_report_path,omitempty"`
}

// ConfigSources tracks which config files, if any, contributed to a loaded
// Config, for diagnostics.
type ConfigSources struct {
	Global  string
	Project string
}

// ConfigFileName is the default project config file name, looked up in the
// working directory the same way the original looked up ".tk.json".
const ConfigFileName = ".gclib.json"

// maxAllocedBytes is the spec's MAX_ALLOCED_BYTES tuning constant: the
// default per-generation byte ceiling past which a threshold collection
// includes that generation.
const maxAllocedBytes = 1_000_000_000

// DefaultConfig returns the collector's out-of-the-box tuning.
func DefaultConfig() Config {
	return Config{
		Generations: 3,
		Buckets:     1024,
		Thresholds:  []uint64{maxAllocedBytes, maxAllocedBytes, maxAllocedBytes},
	}
}

// getGlobalConfigPath returns the path to the global config file, preferring
// $XDG_CONFIG_HOME/gclib/config.json and falling back to
// ~/.config/gclib/config.json. Returns "" if no home directory can be found.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "gclib", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gclib", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "gclib", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config (~/.config/gclib/config.json)
//  3. Project config file: configPath if non-empty (must exist), otherwise
//     workDir/.gclib.json if it exists; an explicit configPath replaces the
//     workDir file rather than layering over it
//  4. cliOverrides, applied field by field where non-zero
func LoadConfig(workDir, configPath string, cliOverrides Config, env []string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)
	cfg = mergeConfig(cfg, cliOverrides)

	if err := validateConfig(cfg); err != nil {
		return Config{}, ConfigSources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var (
		cfgFile   string
		mustExist bool
	)

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileRead, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally caller-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Generations != 0 {
		base.Generations = overlay.Generations
	}

	if overlay.Buckets != 0 {
		base.Buckets = overlay.Buckets
	}

	if len(overlay.Thresholds) != 0 {
		base.Thresholds = overlay.Thresholds
	}

	if overlay.ReportPath != "" {
		base.ReportPath = overlay.ReportPath
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.Generations <= 0 {
		return errGenerationsNonPos
	}

	if cfg.Buckets <= 0 {
		return errBucketsNonPos
	}

	if len(cfg.Thresholds) != 0 && len(cfg.Thresholds) != cfg.Generations {
		return fmt.Errorf("%w: have %d, want %d", errThresholdsLength, len(cfg.Thresholds), cfg.Generations)
	}

	return nil
}

// FormatConfig renders cfg as indented JSON, for "gcstat print-config" output.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return string(data), nil
}
