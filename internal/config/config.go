package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"wedding-sync/internal/models"
)

//go:embed campaigns.yaml
var defaultCampaigns []byte

// Config holds the application configuration
type Config struct {
	// Backend and bot
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"data/wedding.db"`
	WhatsAppDataDir string        `env:"WHATSAPP_DATA_DIR" envDefault:"data"`
	WhatsAppEnabled bool          `env:"WHATSAPP_ENABLED" envDefault:"true"`
	MaxAttempts     int           `env:"PENDING_MAX_ATTEMPTS" envDefault:"3"`
	SendInterval    time.Duration `env:"SEND_INTERVAL" envDefault:"2s"`
	WeddingDate     string        `env:"WEDDING_DATE"`
	BrideName       string        `env:"BRIDE_NAME" envDefault:"Bride"`
	GroomName       string        `env:"GROOM_NAME" envDefault:"Groom"`

	// Console
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8080"`
	CacheFile      string        `env:"CACHE_FILE" envDefault:"data/cache.json"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"15s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	CampaignsFile  string        `env:"CAMPAIGNS_FILE"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig loads configuration from environment variables or defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("PENDING_MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.PollInterval <= 0 || cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL and REQUEST_TIMEOUT must be positive")
	}
	return &cfg, nil
}

// Level returns the configured zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

type campaignFile struct {
	Campaigns []struct {
		Name     string `yaml:"name"`
		Template string `yaml:"template"`
		ImageURL string `yaml:"image_url"`
	} `yaml:"campaigns"`
}

// Campaigns returns the campaign set created for events that have none,
// read from CampaignsFile or the built-in defaults.
func (c *Config) Campaigns() ([]models.Campaign, error) {
	data := defaultCampaigns
	if c.CampaignsFile != "" {
		b, err := os.ReadFile(c.CampaignsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read campaigns file: %w", err)
		}
		data = b
	}
	return parseCampaigns(data)
}

func parseCampaigns(data []byte) ([]models.Campaign, error) {
	var file campaignFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse campaigns: %w", err)
	}

	campaigns := make([]models.Campaign, 0, len(file.Campaigns))
	for i, c := range file.Campaigns {
		if strings.TrimSpace(c.Template) == "" {
			return nil, fmt.Errorf("campaign %d (%q) has no template", i+1, c.Name)
		}
		campaigns = append(campaigns, models.Campaign{
			Name:     c.Name,
			Template: strings.TrimRight(c.Template, "\n"),
			ImageURL: c.ImageURL,
			Status:   models.CampaignDraft,
		})
	}
	return campaigns, nil
}
