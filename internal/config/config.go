package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"medbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig        `yaml:"app"`
	Database      DatabaseConfig   `yaml:"database"`
	Redis         RedisConfig      `yaml:"redis"`
	Booking       BookingConfig    `yaml:"booking"`
	API           APIConfig        `yaml:"api"`
	Monitoring    MonitoringConfig `yaml:"monitoring"`
	Logging       LoggingConfig    `yaml:"logging"`
	Backup        BackupConfig     `yaml:"backup"`
	Exports       ExportConfig     `yaml:"exports"`
	Google        GoogleConfig     `yaml:"google"`
	Notifications NotifyConfig     `yaml:"notifications"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BookingConfig carries the lifecycle policy constants. Flow selects the
// post-hold branch for the whole deployment: "review" routes held
// reservations through the doctor's approval queue, "payment" sends them
// straight to checkout.
type BookingConfig struct {
	Flow                     string `yaml:"flow"`
	HoldTTLMinutes           int    `yaml:"hold_ttl_minutes"`
	PaymentTTLMinutes        int    `yaml:"payment_ttl_minutes"`
	MaxAdvanceDays           int    `yaml:"max_advance_days"`
	ReconcileIntervalSeconds int    `yaml:"reconcile_interval_seconds"`
	HoldRateLimit            int    `yaml:"hold_rate_limit"`
	HoldRateWindowSeconds    int    `yaml:"hold_rate_window_seconds"`
	DayViewCacheTTLSeconds   int    `yaml:"day_view_cache_ttl_seconds"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) PaymentTTL() time.Duration {
	return time.Duration(b.PaymentTTLMinutes) * time.Minute
}

func (b BookingConfig) ReconcileInterval() time.Duration {
	return time.Duration(b.ReconcileIntervalSeconds) * time.Second
}

func (b BookingConfig) HoldRateWindow() time.Duration {
	return time.Duration(b.HoldRateWindowSeconds) * time.Second
}

func (b BookingConfig) DayViewCacheTTL() time.Duration {
	return time.Duration(b.DayViewCacheTTLSeconds) * time.Second
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile           string `yaml:"credentials_file"`
	ReservationsSpreadsheetID string `yaml:"reservations_spreadsheet_id"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

func Load(configPath string) (*Config, error) {
	// .env подхватывается, если он есть; отсутствие файла не ошибка
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.Flow != models.FlowReview && c.Booking.Flow != models.FlowPayment {
		return fmt.Errorf("booking flow must be %q or %q, got %q",
			models.FlowReview, models.FlowPayment, c.Booking.Flow)
	}
	if c.Booking.HoldTTLMinutes <= 0 {
		return errors.New("booking hold_ttl_minutes must be positive")
	}
	return nil
}

// ValidateSchedules checks the externally managed schedules catalog.
func ValidateSchedules(schedules []models.DoctorSchedule) error {
	seen := make(map[string]bool)
	for _, s := range schedules {
		if s.DoctorID == "" {
			return fmt.Errorf("schedule %q has empty doctor_id", s.Name)
		}
		if seen[s.DoctorID] {
			return fmt.Errorf("duplicate doctor_id in schedules: %s", s.DoctorID)
		}
		seen[s.DoctorID] = true

		for day, rule := range s.Weekly {
			if err := validateDayRule(rule); err != nil {
				return fmt.Errorf("doctor %s, weekday %s: %w", s.DoctorID, day, err)
			}
		}
		for _, o := range s.Override {
			if _, err := time.Parse(models.DateLayout, o.Date); err != nil {
				return fmt.Errorf("doctor %s: invalid override date %q", s.DoctorID, o.Date)
			}
			if err := validateDayRule(o.Rule); err != nil {
				return fmt.Errorf("doctor %s, override %s: %w", s.DoctorID, o.Date, err)
			}
		}
	}
	return nil
}

func validateDayRule(rule models.DayRule) error {
	if rule.Inactive {
		return nil
	}
	if rule.Start == "" || rule.End == "" {
		return errors.New("working hours are required for an active day")
	}
	if rule.SlotMinutes < 0 {
		return errors.New("slot_minutes must not be negative")
	}
	if (rule.BreakStart == "") != (rule.BreakEnd == "") {
		return errors.New("break_start and break_end must be set together")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	// Настроенные ключи включают аутентификацию сами по себе
	if len(c.API.Auth.APIKeys) > 0 {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Booking policy defaults
	if c.Booking.Flow == "" {
		c.Booking.Flow = models.FlowReview
	}
	if c.Booking.HoldTTLMinutes == 0 {
		c.Booking.HoldTTLMinutes = models.DefaultHoldTTLMinutes
	}
	if c.Booking.PaymentTTLMinutes == 0 {
		c.Booking.PaymentTTLMinutes = models.DefaultPaymentTTLMinutes
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.ReconcileIntervalSeconds == 0 {
		c.Booking.ReconcileIntervalSeconds = models.DefaultReconcileIntervalSeconds
	}
	if c.Booking.HoldRateLimit == 0 {
		c.Booking.HoldRateLimit = models.DefaultHoldRateLimit
	}
	if c.Booking.HoldRateWindowSeconds == 0 {
		c.Booking.HoldRateWindowSeconds = models.DefaultHoldRateWindowSeconds
	}
	if c.Booking.DayViewCacheTTLSeconds == 0 {
		c.Booking.DayViewCacheTTLSeconds = models.DefaultDayViewCacheTTL
	}
}
