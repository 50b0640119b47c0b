package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "widgetkit.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".widgetkit"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "widgetkit"

// EnvFileName is the dotenv file loaded from the project root.
const EnvFileName = ".env"

// Load loads configuration from all layers in order of precedence,
// starting the project search in the current directory:
//  1. Built-in defaults
//  2. Global user config (~/.config/widgetkit/config.toml)
//  3. Project config (.widgetkit/config.toml or widgetkit.toml)
//  4. Environment variables (WIDGETKIT_*), after loading .env
//
// CLI flags are applied separately after Load() returns.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
// The project root is the directory holding the project config, or the
// nearest workspace marker, or dir itself.
func LoadFrom(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	cfg := NewConfig()
	cfg.Root = absDir

	// Layer 2: Global user config
	if globalCfg, err := loadConfigFile(GetGlobalConfigPath()); err != nil {
		return nil, err
	} else if globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	projectCfg, root, err := loadProjectConfigFrom(absDir)
	if err != nil {
		return nil, err
	}
	if projectCfg != nil {
		cfg.Merge(projectCfg)
	}
	cfg.Root = root

	// Layer 4: Environment variables, .env first so real env wins
	loadDotEnv(root)
	applyEnvironmentVariables(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadProjectConfigFrom searches up the directory tree for project
// configuration. It returns the config (nil when none), and the project root.
func loadProjectConfigFrom(dir string) (*Config, string, error) {
	current := dir
	for {
		for _, candidate := range GetProjectConfigPaths(current) {
			cfg, err := loadConfigFile(candidate)
			if err != nil {
				return nil, "", err
			}
			if cfg != nil {
				return cfg, current, nil
			}
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			return nil, current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, dir, nil
		}
		current = parent
	}
}

// isWorkspaceRoot checks if the directory is a workspace root (has .git or package.json).
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "package.json"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. A missing file
// yields (nil, nil); a malformed one is an error so typos are not ignored.
func loadConfigFile(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	return &cfg, nil
}

// loadDotEnv loads root/.env into the process environment without
// overriding variables that are already set.
func loadDotEnv(root string) {
	path := filepath.Join(root, EnvFileName)
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// applyEnvironmentVariables applies WIDGETKIT_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	// Paths
	if v := os.Getenv("WIDGETKIT_SOURCES"); v != "" {
		cfg.Paths.Sources = v
	}
	if v := os.Getenv("WIDGETKIT_SHARED"); v != "" {
		cfg.Paths.Shared = splitAndTrim(v)
	}
	if v := os.Getenv("WIDGETKIT_BUILD_CONFIGS"); v != "" {
		cfg.Paths.BuildConfigs = splitAndTrim(v)
	}
	if v := os.Getenv("WIDGETKIT_OUTPUT"); v != "" {
		cfg.Paths.Output = v
	}

	// Units
	if v := os.Getenv("WIDGETKIT_ENTRY"); v != "" {
		cfg.Units.Entry = v
	}

	// Hash
	if v := os.Getenv("WIDGETKIT_HASH_ALGORITHM"); v != "" {
		cfg.Hash.Algorithm = strings.ToLower(v)
	}
	if v := os.Getenv("WIDGETKIT_HASH_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hash.CacheSize = &n
		}
	}

	// Bundler
	if v := os.Getenv("WIDGETKIT_BUNDLER_BACKEND"); v != "" {
		cfg.Bundler.Backend = v
	}
	if v := os.Getenv("WIDGETKIT_ESBUILD_BINARY"); v != "" {
		cfg.Bundler.Binary = v
	}
	applyBoolEnv("WIDGETKIT_MINIFY", &cfg.Bundler.Minify)
	applyBoolEnv("WIDGETKIT_SOURCEMAP", &cfg.Bundler.Sourcemap)

	// Remote
	if v := os.Getenv("WIDGETKIT_REMOTE_ENDPOINT"); v != "" {
		cfg.Remote.Endpoint = v
	}
	if v := os.Getenv("WIDGETKIT_REMOTE_BUCKET"); v != "" {
		cfg.Remote.Bucket = v
	}
	if v := os.Getenv("WIDGETKIT_REMOTE_PREFIX"); v != "" {
		cfg.Remote.Prefix = v
	}
	if v := os.Getenv("WIDGETKIT_REMOTE_REGION"); v != "" {
		cfg.Remote.Region = v
	}
	if v := os.Getenv("WIDGETKIT_REMOTE_ACCESS_KEY"); v != "" {
		cfg.Remote.AccessKey = v
	}
	if v := os.Getenv("WIDGETKIT_REMOTE_SECRET_KEY"); v != "" {
		cfg.Remote.SecretKey = v
	}
	applyBoolEnv("WIDGETKIT_REMOTE_USE_SSL", &cfg.Remote.UseSSL)
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	if override := os.Getenv("WIDGETKIT_GLOBAL_CONFIG"); override != "" {
		return override
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
