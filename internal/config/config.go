package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/kolah/mcpforge/eventstore"
	"github.com/kolah/mcpforge/internal/emit"
	"github.com/kolah/mcpforge/internal/naming"
	"github.com/kolah/mcpforge/internal/partition"
	"github.com/kolah/mcpforge/internal/pipeline"
	"github.com/kolah/mcpforge/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// DefaultFile is read from the working directory when --config is not set.
const DefaultFile = "mcpforge.yaml"

type Config struct {
	Spec        string            `koanf:"spec"`
	OutputDir   string            `koanf:"output-dir"`
	ServerName  string            `koanf:"server-name"`
	BackendURL  string            `koanf:"backend-url"`
	Templates   TemplateConfig    `koanf:"templates"`
	Tools       ToolsConfig       `koanf:"tools"`
	Composition CompositionConfig `koanf:"composition"`
	Auth        AuthConfig        `koanf:"auth"`
	EventStore  EventStoreConfig  `koanf:"event-store"`
	Storage     StorageConfig     `koanf:"storage"`
}

type TemplateConfig struct {
	Dir string `koanf:"dir"`
}

// ToolsConfig shapes tool names.
type ToolsConfig struct {
	MaxNameLength int               `koanf:"max-name-length"`
	Abbreviations map[string]string `koanf:"abbreviations"`
	// Overrides maps operation id to tool name.
	Overrides map[string]string `koanf:"overrides"`
}

type CompositionConfig struct {
	Strategy       string `koanf:"strategy"`
	ResourcePrefix string `koanf:"resource-prefix"`
}

type AuthConfig struct {
	// ValidateTokens is the generated server's default for --validate-tokens.
	ValidateTokens bool `koanf:"validate-tokens"`
}

type EventStoreConfig struct {
	MaxEventsPerStream int           `koanf:"max-events-per-stream"`
	GracePeriod        time.Duration `koanf:"grace-period"`
}

// StorageConfig is the generated server's default storage. An empty
// Backend leaves caching and token persistence off.
type StorageConfig struct {
	Backend  string        `koanf:"backend"`
	Dir      string        `koanf:"dir"`
	CacheTTL time.Duration `koanf:"cache-ttl"`
}

func defaults() map[string]any {
	return map[string]any{
		"output-dir":                        "out",
		"tools.max-name-length":             naming.DefaultMaxLength,
		"composition.strategy":              string(partition.StrategyMount),
		"composition.resource-prefix":       string(partition.PrefixPath),
		"event-store.max-events-per-stream": eventstore.DefaultMaxEvents,
		"event-store.grace-period":          eventstore.DefaultGracePeriod.String(),
		"storage.dir":                       storage.DefaultDir,
	}
}

// BindFlags registers the generation flags on cmd and its subcommands.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringP("config", "c", "", "Config file path (default: "+DefaultFile+")")
	flags.StringP("spec", "s", "", "OpenAPI spec file path")
	flags.StringP("output-dir", "o", "", "Output directory for the generated server")
	flags.String("server-name", "", "Server name (default: normalized info.title)")
	flags.String("backend-url", "", "Backend base URL (default: servers[0].url)")
	flags.String("templates", "", "Custom templates directory")
	flags.Int("max-name-length", 0, "Tool name length cap")
	flags.String("strategy", "", "Composition strategy: mount, import")
	flags.String("resource-prefix", "", "Resource prefix format: path, protocol")
	flags.Bool("validate-tokens", false, "Verify bearer tokens by default in the generated server")
	flags.Int("max-events-per-stream", 0, "Event store retention per stream")
	flags.Duration("grace-period", 0, "How long a closed stream stays resumable")
	flags.String("storage", "", "Default storage backend of the generated server: memory, filesystem")
	flags.Duration("cache-ttl", 0, "Default cache TTL for GET tool results")
	flags.Bool("dry-run", false, "Print output without writing files")
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		configFile, _ = cmd.PersistentFlags().GetString("config")
	}
	if configFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			configFile = DefaultFile
		}
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	flagsMap := buildFlagsMap(cmd)
	if len(flagsMap) > 0 {
		if err := k.Load(confmap.Provider(flagsMap, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func buildFlagsMap(cmd *cobra.Command) map[string]any {
	m := make(map[string]any)

	lookup := func(name string) *pflag.Flag {
		if f := cmd.Flags().Lookup(name); f != nil {
			return f
		}
		return cmd.PersistentFlags().Lookup(name)
	}

	changed := func(name string) bool {
		f := lookup(name)
		return f != nil && f.Changed
	}

	getString := func(name string) string {
		if f := lookup(name); f != nil {
			return f.Value.String()
		}
		return ""
	}

	stringKeys := map[string]string{
		"spec":            "spec",
		"output-dir":      "output-dir",
		"server-name":     "server-name",
		"backend-url":     "backend-url",
		"templates":       "templates.dir",
		"strategy":        "composition.strategy",
		"resource-prefix": "composition.resource-prefix",
		"storage":         "storage.backend",
	}
	for flag, key := range stringKeys {
		if v := getString(flag); v != "" {
			m[key] = v
		}
	}

	typed := map[string]string{
		"max-name-length":       "tools.max-name-length",
		"validate-tokens":       "auth.validate-tokens",
		"max-events-per-stream": "event-store.max-events-per-stream",
		"grace-period":          "event-store.grace-period",
		"cache-ttl":             "storage.cache-ttl",
	}
	for flag, key := range typed {
		if changed(flag) {
			m[key] = getString(flag)
		}
	}

	return m
}

func (c *Config) Validate() error {
	if c.Spec == "" {
		return fmt.Errorf("spec file is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	switch partition.Strategy(c.Composition.Strategy) {
	case "", partition.StrategyMount, partition.StrategyImport:
	default:
		return fmt.Errorf("invalid composition strategy: %s (valid: mount, import)", c.Composition.Strategy)
	}

	switch partition.PrefixFormat(c.Composition.ResourcePrefix) {
	case "", partition.PrefixPath, partition.PrefixProtocol:
	default:
		return fmt.Errorf("invalid resource prefix format: %s (valid: path, protocol)", c.Composition.ResourcePrefix)
	}

	if c.Tools.MaxNameLength <= 0 {
		return fmt.Errorf("tools.max-name-length must be positive, got %d", c.Tools.MaxNameLength)
	}
	if c.EventStore.MaxEventsPerStream <= 0 {
		return fmt.Errorf("event-store.max-events-per-stream must be positive, got %d", c.EventStore.MaxEventsPerStream)
	}
	if c.EventStore.GracePeriod < 0 {
		return fmt.Errorf("event-store.grace-period must not be negative, got %s", c.EventStore.GracePeriod)
	}

	switch c.Storage.Backend {
	case "", storage.KindMemory, storage.KindFilesystem:
	default:
		return fmt.Errorf("invalid storage backend: %s (valid: memory, filesystem)", c.Storage.Backend)
	}
	if c.Storage.CacheTTL < 0 {
		return fmt.Errorf("storage.cache-ttl must not be negative, got %s", c.Storage.CacheTTL)
	}

	return nil
}

// PipelineOptions returns the options the generation core reads.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		ServerName: c.ServerName,
		BackendURL: c.BackendURL,
		Naming: naming.Options{
			Abbreviations: c.Tools.Abbreviations,
			Overrides:     c.Tools.Overrides,
			MaxLength:     c.Tools.MaxNameLength,
		},
		Strategy:     partition.Strategy(c.Composition.Strategy),
		PrefixFormat: partition.PrefixFormat(c.Composition.ResourcePrefix),
	}
}

// EmitSettings returns the emission settings, stamped with version.
func (c *Config) EmitSettings(version string) emit.Settings {
	return emit.Settings{
		TemplatesDir:     c.Templates.Dir,
		GeneratorVersion: version,
		ValidateTokens:   c.Auth.ValidateTokens,
		EventStore: emit.EventStoreSettings{
			MaxEventsPerStream: c.EventStore.MaxEventsPerStream,
			GracePeriod:        c.EventStore.GracePeriod,
		},
		Storage: emit.StorageSettings{
			Backend:  c.Storage.Backend,
			Dir:      c.Storage.Dir,
			CacheTTL: c.Storage.CacheTTL,
		},
	}
}
