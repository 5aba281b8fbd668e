// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	NowPlayingHTTP = "http"
	NowPlayingMPD  = "mpd"
)

// Config holds the bot configuration. Values come from defaults, then the
// optional YAML file, then the environment (a .env file included).
type Config struct {
	DiscordToken string `yaml:"-" env:"DISCORD_TOKEN"`

	StreamURL  string `yaml:"stream_url" env:"STREAM_URL"`
	SiteURL    string `yaml:"site_url" env:"SITE_URL"`
	ImageURL   string `yaml:"image_url" env:"IMAGE_URL"`
	FooterText string `yaml:"footer_text" env:"FOOTER_TEXT"`
	EmbedColor int    `yaml:"embed_color" env:"EMBED_COLOR"`

	CommandPrefixes []string `yaml:"command_prefixes" env:"COMMAND_PREFIXES" envSeparator:","`
	AdminID         string   `yaml:"admin_id" env:"ADMIN_ID"`

	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	VoiceTimeout time.Duration `yaml:"voice_timeout" env:"VOICE_TIMEOUT"`

	NowPlayingSource string `yaml:"now_playing_source" env:"NOW_PLAYING_SOURCE"`
	MPDNetwork       string `yaml:"mpd_network" env:"MPD_NETWORK"`
	MPDAddr          string `yaml:"mpd_addr" env:"MPD_ADDR"`
	MPDPassword      string `yaml:"-" env:"MPD_PASSWORD"`

	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`

	LogDir   string `yaml:"log_dir" env:"LOG_DIR"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the configuration used when nothing overrides a field.
func Default() Config {
	return Config{
		EmbedColor:       0x2f3136,
		FooterText:       "beatbot",
		CommandPrefixes:  []string{"bb", "beatbot"},
		PollInterval:     10 * time.Second,
		HTTPTimeout:      5 * time.Second,
		VoiceTimeout:     10 * time.Second,
		NowPlayingSource: NowPlayingHTTP,
		MPDNetwork:       "tcp",
		MPDAddr:          "localhost:6600",
		FFmpegPath:       "ffmpeg",
		LogDir:           "logs",
		LogLevel:         "info",
	}
}

// Load reads the optional .env file at envPath (default ".env"), the
// optional YAML file at path, and the environment, then validates.
// A missing .env or YAML file is not an error.
func Load(path, envPath string) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.SiteURL != "" && !strings.HasSuffix(c.SiteURL, "/") {
		c.SiteURL += "/"
	}
	prefixes := c.CommandPrefixes[:0]
	for _, p := range c.CommandPrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	c.CommandPrefixes = prefixes
	c.NowPlayingSource = strings.ToLower(strings.TrimSpace(c.NowPlayingSource))
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch {
	case c.DiscordToken == "":
		return errors.New("DISCORD_TOKEN is not set")
	case c.StreamURL == "":
		return errors.New("STREAM_URL is not set")
	case c.SiteURL == "":
		return errors.New("SITE_URL is not set")
	case len(c.CommandPrefixes) == 0:
		return errors.New("COMMAND_PREFIXES is empty")
	case c.PollInterval <= 0:
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.HTTPTimeout)
	case c.VoiceTimeout <= 0:
		return fmt.Errorf("VOICE_TIMEOUT must be positive, got %v", c.VoiceTimeout)
	}

	switch c.NowPlayingSource {
	case NowPlayingHTTP:
	case NowPlayingMPD:
		if c.MPDAddr == "" {
			return errors.New("MPD_ADDR is not set")
		}
	default:
		return fmt.Errorf("unknown NOW_PLAYING_SOURCE %q", c.NowPlayingSource)
	}
	return nil
}

// IsAdmin reports whether userID is the configured administrator.
func (c *Config) IsAdmin(userID string) bool {
	return c.AdminID != "" && userID == c.AdminID
}
