package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"popdesk/internal/services"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Spreadsheet   SpreadsheetConfig   `toml:"spreadsheet"`
	Redis         RedisConfig         `toml:"redis"`
	Minio         MinioConfig         `toml:"minio"`
	SMTP          SMTPConfig          `toml:"smtp"`
	ExportRefresh ExportRefreshConfig `toml:"export_refresh"`
}

// ServerConfig contains HTTP and auth settings
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	BaseURL    string `toml:"base_url"`
	JWTSecret  string `toml:"jwt_secret"`
	// SessionTTLHours of zero means the default session length.
	SessionTTLHours int `toml:"session_ttl_hours"`
	// UploadUsers are "user:password" pairs for the basic-auth upload gate.
	UploadUsers []string `toml:"upload_users"`
}

// SpreadsheetConfig locates the backing spreadsheet and its tabs
type SpreadsheetConfig struct {
	SheetID         string             `toml:"sheet_id"`
	CredentialsFile string             `toml:"credentials_file"`
	UsersTab        string             `toml:"users_tab"`
	Datasets        []services.Dataset `toml:"datasets"`
	CacheTTLHours   int                `toml:"cache_ttl_hours"`
}

// RedisConfig contains the cache connection settings
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// MinioConfig contains the optional archive store settings
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

// SMTPConfig contains the outbound mail settings
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	// NotifyTo receives a mail whenever the API hits an upstream or
	// unhandled failure.
	NotifyTo []string `toml:"notify_to"`
}

// ExportRefreshConfig controls the optional per-generation export job
type ExportRefreshConfig struct {
	Enabled         bool   `toml:"enabled"`
	SourceTab       string `toml:"source_tab"`
	GroupColumn     string `toml:"group_column"`
	TabPrefix       string `toml:"tab_prefix"`
	IntervalMinutes int    `toml:"interval_minutes"`
}

// Load reads the TOML file when filename is non-empty, then applies
// environment overrides and defaults. Environment always wins so secrets
// can stay out of the file.
func Load(filename string) (*Config, error) {
	cfg := &Config{}
	if filename != "" {
		if _, err := toml.DecodeFile(filename, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.ListenAddr, "LISTEN_ADDR")
	setString(&c.Server.BaseURL, "BASE_URL")
	setString(&c.Server.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("UPLOAD_USERS"); v != "" {
		c.Server.UploadUsers = strings.Split(v, ",")
	}

	setString(&c.Spreadsheet.SheetID, "SHEET_ID")
	setString(&c.Spreadsheet.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Spreadsheet.UsersTab, "USERS_TAB")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")

	setString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Minio.Bucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		c.Minio.UseSSL = v == "true" || v == "1"
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.From, "SMTP_FROM")
	if v := os.Getenv("SMTP_NOTIFY_TO"); v != "" {
		c.SMTP.NotifyTo = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Spreadsheet.UsersTab == "" {
		c.Spreadsheet.UsersTab = "Usuarios"
	}
	if len(c.Spreadsheet.Datasets) == 0 {
		c.Spreadsheet.Datasets = []services.Dataset{
			{Name: "bases", Tab: "Bases POP"},
			{Name: "directorio", Tab: "Directorio"},
			{Name: "hardware", Tab: "Hardware"},
		}
	}
	if c.Spreadsheet.CacheTTLHours <= 0 {
		c.Spreadsheet.CacheTTLHours = 6
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.ExportRefresh.SourceTab == "" {
		c.ExportRefresh.SourceTab = "Bases POP"
	}
	if c.ExportRefresh.GroupColumn == "" {
		c.ExportRefresh.GroupColumn = "Generacion"
	}
	if c.ExportRefresh.TabPrefix == "" {
		c.ExportRefresh.TabPrefix = "Export "
	}
	if c.ExportRefresh.IntervalMinutes <= 0 {
		c.ExportRefresh.IntervalMinutes = 60
	}
}

// CacheTTL returns the row cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Spreadsheet.CacheTTLHours) * time.Hour
}

// SessionTTL returns the configured session length, zero when unset.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLHours) * time.Hour
}

// UploadCredentials parses the "user:password" pairs into a map.
func (c *Config) UploadCredentials() map[string]string {
	out := make(map[string]string, len(c.Server.UploadUsers))
	for _, pair := range c.Server.UploadUsers {
		user, pass, ok := strings.Cut(pair, ":")
		if ok && user != "" {
			out[user] = pass
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
