package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type RuntimeConfig struct {
	BaseImage  string `toml:"base_image"`
	ServeImage string `toml:"serve_image"`
	Port       int    `toml:"port"`
	CachePath  string `toml:"cache_path"`
	CacheKey   string `toml:"cache_key"`
}

type CommandsConfig struct {
	Install []string `toml:"install"`
	Build   []string `toml:"build"`
	Test    []string `toml:"test"`

	// BuildOutput is the directory the build command writes, relative to
	// the source root. ServePath is where it lands in the serving image.
	BuildOutput string `toml:"build_output"`
	ServePath   string `toml:"serve_path"`

	// GeneratedDir is the dependency subtree stripped before re-validation
	// and before any artifact leaves the pipeline.
	GeneratedDir string `toml:"generated_dir"`
}

type PublishConfig struct {
	// TagPrefix is the registry reference prefix; a unique suffix is
	// appended per publish to avoid collisions.
	TagPrefix string `toml:"tag_prefix"`
}

type AgentConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type Config struct {
	Runtime  RuntimeConfig  `toml:"runtime"`
	Commands CommandsConfig `toml:"commands"`
	Publish  PublishConfig  `toml:"publish"`
	Agent    AgentConfig    `toml:"agent"`
	Store    StoreConfig    `toml:"store"`
}

func defaults() Config {
	return Config{
		Runtime: RuntimeConfig{
			BaseImage:  "node:21-slim",
			ServeImage: "nginx:1.25-alpine",
			Port:       80,
			CachePath:  "/root/.npm",
			CacheKey:   "node",
		},
		Commands: CommandsConfig{
			Install:      []string{"npm", "install"},
			Build:        []string{"npm", "run", "build"},
			Test:         []string{"npm", "run", "test:unit", "run"},
			BuildOutput:  "dist",
			ServePath:    "/usr/share/nginx/html",
			GeneratedDir: "node_modules",
		},
		Publish: PublishConfig{
			TagPrefix: "ttl.sh/hello-dagger",
		},
		Agent: AgentConfig{
			Command: "claude",
			Args:    []string{"-p", "--output-format", "text", "--dangerously-skip-permissions"},
		},
		Store: StoreConfig{
			Path: filepath.Join(".conveyor", "runs.db"),
		},
	}
}

// Load reads conveyor.toml from the project directory, falling back to
// defaults when the file is absent.
func Load(projectDir string) (*Config, error) {
	cfg := defaults()
	path := filepath.Join(projectDir, "conveyor.toml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads an explicit config file over the defaults. Unlike Load, a
// missing file is an error here: the caller named it.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
