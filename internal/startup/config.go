package startup

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/preview"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "TIMELINE"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig        `mapstructure:"database"`
	CacheDir string                `mapstructure:"cache_dir"`
	Preview  PreviewConfig         `mapstructure:"preview"`
	Tools    ToolsConfig           `mapstructure:"tools"`
	Sync     SyncConfig            `mapstructure:"sync"`
	HTTP     HTTPConfig            `mapstructure:"http"`
	NATS     NATSConfig            `mapstructure:"nats"`
	Sources  []backup.SourceConfig `mapstructure:"sources"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// DatabaseConfig selects the entry store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
}

// PreviewConfig configures preview generation.
type PreviewConfig struct {
	ImageEngine string `mapstructure:"image_engine"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	VideoWidth  int    `mapstructure:"video_width"`
	VideoHeight int    `mapstructure:"video_height"`
	Workers     int    `mapstructure:"workers"`
}

// ImageBox returns the bounding box of image and PDF previews.
func (c PreviewConfig) ImageBox() preview.Box {
	return preview.Box{Width: c.Width, Height: c.Height}
}

// VideoBox returns the bounding box of video previews.
func (c PreviewConfig) VideoBox() preview.Box {
	return preview.Box{Width: c.VideoWidth, Height: c.VideoHeight}
}

// ToolsConfig names the external programs.
type ToolsConfig struct {
	Convert string `mapstructure:"convert"`
	FFmpeg  string `mapstructure:"ffmpeg"`
	FFprobe string `mapstructure:"ffprobe"`
}

// SyncConfig tunes synchronization.
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Watch           bool          `mapstructure:"watch"`
	WatchDebounce   time.Duration `mapstructure:"watch_debounce"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	Parallel        int           `mapstructure:"parallel"`
	VerifyContent   bool          `mapstructure:"verify_content"`
}

// HTTPConfig configures the operations server.
type HTTPConfig struct {
	Port            string `mapstructure:"port"`
	LogHealthChecks bool   `mapstructure:"log_health_checks"`
}

// NATSConfig configures backup notifications. An empty URL disables them.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "timeline.db")
	v.SetDefault("database.url", "")
	v.SetDefault("cache_dir", "cache")
	v.SetDefault("preview.image_engine", preview.EngineMagick)
	v.SetDefault("preview.width", 640)
	v.SetDefault("preview.height", 480)
	v.SetDefault("preview.video_width", 640)
	v.SetDefault("preview.video_height", 480)
	v.SetDefault("preview.workers", 0)
	v.SetDefault("tools.convert", "convert")
	v.SetDefault("tools.ffmpeg", "ffmpeg")
	v.SetDefault("tools.ffprobe", "ffprobe")
	v.SetDefault("sync.interval", time.Hour)
	v.SetDefault("sync.watch", true)
	v.SetDefault("sync.watch_debounce", 30*time.Second)
	v.SetDefault("sync.continue_on_error", false)
	v.SetDefault("sync.parallel", 1)
	v.SetDefault("sync.verify_content", false)
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.log_health_checks", false)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "timeline.backup.synced")
}

// LoadConfig reads the configuration. path names a config file; when empty
// the default locations are searched and a missing file is fine.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("backup-timeline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/backup-timeline")
		v.AddConfigPath("/etc/backup-timeline")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize resolves paths, applies global source settings and validates.
func (c *Config) normalize() error {
	var errs []error

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		} else if abs, err := filepath.Abs(c.Database.Path); err == nil {
			c.Database.Path = abs
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver))
	}

	if abs, err := filepath.Abs(c.CacheDir); err == nil {
		c.CacheDir = abs
	}

	switch c.Preview.ImageEngine {
	case preview.EngineMagick, preview.EngineVips, preview.EngineNative:
	default:
		errs = append(errs, fmt.Errorf("preview.image_engine must be one of %s, %s, %s; got %q",
			preview.EngineMagick, preview.EngineVips, preview.EngineNative, c.Preview.ImageEngine))
	}
	if err := c.Preview.ImageBox().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("preview.width/height: %w", err))
	}
	if err := c.Preview.VideoBox().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("preview.video_width/video_height: %w", err))
	}

	if c.Sync.Parallel < 1 {
		c.Sync.Parallel = 1
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, fmt.Errorf("sync.interval must not be negative, got %v", c.Sync.Interval))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		switch {
		case src.Key == "":
			errs = append(errs, fmt.Errorf("sources[%d]: key is required", i))
		case seen[src.Key]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate key %q", i, src.Key))
		}
		seen[src.Key] = true

		if src.Path == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: path is required", i))
		} else if abs, err := filepath.Abs(src.Path); err == nil {
			src.Path = abs
		}
		src.VerifyContent = src.VerifyContent || c.Sync.VerifyContent
	}

	return errors.Join(errs...)
}

// SourceKeys returns the configured source keys in order.
func (c *Config) SourceKeys() []string {
	keys := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		keys[i] = s.Key
	}
	return keys
}
