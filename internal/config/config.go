// The application's root configuration: target endpoint, browser phases,
// capture sink and ambient settings.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ramonfullstack/automation-scripts/internal/retry"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error

	validate = validator.New()
)

// Config is the root configuration structure for the entire application.
// It is read once at startup and treated as immutable afterwards.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Target   TargetConfig   `mapstructure:"target"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Frontend PageConfig     `mapstructure:"frontend"`
	Swagger  PageConfig     `mapstructure:"swagger"`
	ERP      ERPConfig      `mapstructure:"erp"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Report   ReportConfig   `mapstructure:"report"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format" validate:"omitempty,oneof=console json"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// PostgresConfig holds settings for the optional hit-log database.
// An empty URL disables it.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// TargetConfig describes the API operation under audit.
type TargetConfig struct {
	URL           string   `mapstructure:"url" validate:"required,url"`
	Hints         []string `mapstructure:"hints"`
	Method        string   `mapstructure:"method"`
	TenantHeaders []string `mapstructure:"tenant_headers" validate:"min=1,dive,required"`
	// OnlyTarget drops non-target requests at ingestion during the ERP phase.
	OnlyTarget bool `mapstructure:"only_target"`
}

// BrowserConfig holds settings for the Chrome instance driven over CDP.
type BrowserConfig struct {
	Headless        bool         `mapstructure:"headless"`
	IgnoreTLSErrors bool         `mapstructure:"ignore_tls_errors"`
	Args            []string     `mapstructure:"args"`
	Navigation      retry.Policy `mapstructure:"navigation"`
	// ErrorScreenshot is written when the ERP phase fails. Empty disables it.
	ErrorScreenshot string `mapstructure:"error_screenshot"`
}

// PageConfig is an observe-only phase: open URL, dwell, report. An empty URL
// skips the phase.
type PageConfig struct {
	URL               string        `mapstructure:"url" validate:"omitempty,url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"gte=0"`
	Observe           time.Duration `mapstructure:"observe" validate:"gte=0"`
	// InteractiveWait keeps observing after Observe so a person can use the app.
	InteractiveWait time.Duration `mapstructure:"interactive_wait" validate:"gte=0"`
}

// ERPConfig drives the authenticated phase: log in, open the stock screen and
// observe traffic.
type ERPConfig struct {
	Enabled           bool           `mapstructure:"enabled"`
	URL               string         `mapstructure:"url" validate:"omitempty,url"`
	User              string         `mapstructure:"user"`
	Password          string         `mapstructure:"password"`
	StockRoute        string         `mapstructure:"stock_route"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" validate:"gte=0"`
	SettleWait        time.Duration  `mapstructure:"settle_wait" validate:"gte=0"`
	LoginWait         time.Duration  `mapstructure:"login_wait" validate:"gte=0"`
	Observe           time.Duration  `mapstructure:"observe" validate:"gte=0"`
	AuditStorage      bool           `mapstructure:"audit_storage"`
	Selectors         LoginSelectors `mapstructure:"selectors"`
}

// LoginSelectors are candidates tried in order; the first that matches an
// element wins. A candidate is a CSS selector, "label:<regexp>" matching a
// field by its label, or "text:<regexp>" matching a button by its text.
type LoginSelectors struct {
	Username []string `mapstructure:"username" validate:"min=1"`
	Password []string `mapstructure:"password" validate:"min=1"`
	Submit   []string `mapstructure:"submit" validate:"min=1"`
}

// CaptureConfig holds the path of the append-only capture file.
type CaptureConfig struct {
	OutputFile string `mapstructure:"output_file" validate:"required"`
}

// ReportConfig controls console reporting.
type ReportConfig struct {
	RecentLimit int    `mapstructure:"recent_limit" validate:"gte=1"`
	TargetLimit int    `mapstructure:"target_limit" validate:"gte=1"`
	Format      string `mapstructure:"format" validate:"oneof=text json"`
}

// ScheduleMode selects between a single run and periodic repetition.
type ScheduleMode string

const (
	ScheduleOnce     ScheduleMode = "once"
	ScheduleInterval ScheduleMode = "interval"
)

// ScheduleConfig controls repetition.
type ScheduleConfig struct {
	Mode     ScheduleMode  `mapstructure:"mode" validate:"oneof=once interval"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// Validate checks struct constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed on the '%s' rule", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if c.Schedule.Mode == ScheduleInterval && c.Schedule.Interval <= 0 {
		return errors.New("schedule.interval must be positive when schedule.mode is interval")
	}
	if c.ERP.Enabled {
		switch {
		case c.ERP.URL == "":
			return errors.New("erp.url is required when erp.enabled is true")
		case c.ERP.User == "" || c.ERP.Password == "":
			return errors.New("erp.user and erp.password are required when erp.enabled is true")
		}
	}
	if c.Frontend.URL == "" && c.Swagger.URL == "" && !c.ERP.Enabled {
		return errors.New("at least one of frontend.url, swagger.url or erp.enabled must be set")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		cfg, err := FromViper(v)
		if err != nil {
			loadErr = err
			return
		}
		instance = cfg
	})
	return loadErr
}

// FromViper unmarshals a Config without touching the singleton.
func FromViper(v *viper.Viper) (*Config, error) {
	normalizeMillis(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Set replaces the global configuration instance.
func Set(cfg *Config) {
	once.Do(func() {})
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
