package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings holds all application configuration. The config provider is
// constructed once and passed by reference; there is no package-level
// singleton.
type Settings struct {
	Server ServerConfig `mapstructure:"server"`
	OCR    OCRConfig    `mapstructure:"ocr"`
	Dirs   DirsConfig   `mapstructure:"dirs"`
	Logger LoggerConfig `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OCRConfig holds the OCR provider credentials and the monthly usage
// counter. Usage and UsageMonth are mutable state persisted back through
// Save.
type OCRConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	TokenURL     string        `mapstructure:"token_url"`
	RecognizeURL string        `mapstructure:"recognize_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MonthlyQuota int           `mapstructure:"monthly_quota"`
	MonthlyUsage int           `mapstructure:"monthly_usage"`
	UsageMonth   string        `mapstructure:"usage_month"` // 2006-01
}

// DirsConfig holds the managed directory paths.
type DirsConfig struct {
	Archive    string `mapstructure:"archive"`
	TempUpload string `mapstructure:"temp_upload"`
	Export     string `mapstructure:"export"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Config is the settings provider: loaded settings plus the load/save
// lifecycle around them.
type Config struct {
	Settings

	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// Load reads configuration from the given file and environment variables.
// A missing config file is not an error: defaults apply and the file is
// created on the first Save.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{v: v, path: configPath}
	if err := v.Unmarshal(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("ocr.token_url", "https://aip.baidubce.com/oauth/2.0/token")
	v.SetDefault("ocr.recognize_url", "https://aip.baidubce.com/rest/2.0/ocr/v1/vat_invoice")
	v.SetDefault("ocr.timeout", 30*time.Second)
	v.SetDefault("ocr.monthly_quota", 1000)
	v.SetDefault("ocr.monthly_usage", 0)
	v.SetDefault("ocr.usage_month", "")

	v.SetDefault("dirs.archive", "archive_data")
	v.SetDefault("dirs.temp_upload", "temp_uploads")
	v.SetDefault("dirs.export", "export_data")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Credentials come from the environment, never the checked-in file.
	v.BindEnv("ocr.api_key", "OCR_API_KEY")
	v.BindEnv("ocr.secret_key", "OCR_SECRET_KEY")
}

// Validate checks the configuration. OCR credentials are intentionally not
// required here: the archive and statistics surfaces work without them.
func (c *Config) Validate() error {
	if c.Dirs.Archive == "" {
		return fmt.Errorf("dirs.archive is required")
	}
	if c.Dirs.TempUpload == "" {
		return fmt.Errorf("dirs.temp_upload is required")
	}
	if c.OCR.MonthlyQuota < 0 {
		return fmt.Errorf("ocr.monthly_quota must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save persists the current settings back to the config file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save()
}

func (c *Config) save() error {
	c.v.Set("server.host", c.Server.Host)
	c.v.Set("server.port", c.Server.Port)
	c.v.Set("server.read_timeout", c.Server.ReadTimeout)
	c.v.Set("server.write_timeout", c.Server.WriteTimeout)

	c.v.Set("ocr.token_url", c.OCR.TokenURL)
	c.v.Set("ocr.recognize_url", c.OCR.RecognizeURL)
	c.v.Set("ocr.timeout", c.OCR.Timeout)
	c.v.Set("ocr.monthly_quota", c.OCR.MonthlyQuota)
	c.v.Set("ocr.monthly_usage", c.OCR.MonthlyUsage)
	c.v.Set("ocr.usage_month", c.OCR.UsageMonth)

	c.v.Set("dirs.archive", c.Dirs.Archive)
	c.v.Set("dirs.temp_upload", c.Dirs.TempUpload)
	c.v.Set("dirs.export", c.Dirs.Export)

	c.v.Set("logger.level", c.Logger.Level)
	c.v.Set("logger.output_path", c.Logger.OutputPath)
	c.v.Set("logger.format", c.Logger.Format)

	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", c.path, err)
	}
	return nil
}

// EnsureDirectories creates the managed directories if absent. The export
// directory is optional and only created when configured.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Dirs.Archive, c.Dirs.TempUpload} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if c.Dirs.Export != "" {
		if err := os.MkdirAll(c.Dirs.Export, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", c.Dirs.Export, err)
		}
	}
	return nil
}

// IncrementOCRUsage bumps the monthly OCR usage counter, rolling it over to
// zero when the month tag changes, and persists the new value. It returns
// the usage after the increment.
func (c *Config) IncrementOCRUsage(now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	month := now.Format("2006-01")
	if c.OCR.UsageMonth != month {
		c.OCR.UsageMonth = month
		c.OCR.MonthlyUsage = 0
	}
	c.OCR.MonthlyUsage++

	if err := c.save(); err != nil {
		return c.OCR.MonthlyUsage, err
	}
	return c.OCR.MonthlyUsage, nil
}

// QuotaExceeded reports whether the monthly OCR quota is exhausted for the
// month containing now.
func (c *Config) QuotaExceeded(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.OCR.UsageMonth != now.Format("2006-01") {
		return false
	}
	return c.OCR.MonthlyQuota > 0 && c.OCR.MonthlyUsage >= c.OCR.MonthlyQuota
}
