// Package vtnconfig holds the VTN configuration. Values are layered: built-in
// defaults, then an optional YAML file, then OADR_* environment variables, then
// command-line flags.
package vtnconfig

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evidenceledger/oadrvtn/internal/errl"
)

// VenSeed is a VEN known before it ever registers: its certificate fingerprint
// is enrolled out of band, and a registration id may already be assigned.
type VenSeed struct {
	VenID          string `yaml:"ven_id"`
	VenName        string `yaml:"ven_name"`
	Fingerprint    string `yaml:"fingerprint"`
	RegistrationID string `yaml:"registration_id"`
}

// Config is the configuration of one VTN instance
type Config struct {
	VTNID           string `yaml:"vtn_id"`
	ListenAddr      string `yaml:"listen_addr"`
	AdminListenAddr string `yaml:"admin_listen_addr"`
	PathPrefix      string `yaml:"path_prefix"`
	Development     bool   `yaml:"development"`
	LogLevel        string `yaml:"log_level"`

	PollFrequency    time.Duration `yaml:"poll_frequency"`
	DatabasePath     string        `yaml:"database_path"`
	RegistryCacheTTL time.Duration `yaml:"registry_cache_ttl"`

	// Reply signing. A key is generated at startup when SigningKeyFile is empty.
	SigningKeyFile  string `yaml:"signing_key_file"`
	SigningCertFile string `yaml:"signing_cert_file"`

	// Admin surface
	AdminPassword     string        `yaml:"admin_password"`
	AdminTokenTTL     time.Duration `yaml:"admin_token_ttl"`
	AdminOIDCIssuer   string        `yaml:"admin_oidc_issuer"`
	AdminOIDCClientID string        `yaml:"admin_oidc_client_id"`

	// Registration decisions
	RegistrationPolicyFile   string   `yaml:"registration_policy_file"`
	RegistrationServiceURL   string   `yaml:"registration_service_url"`
	RegistrationTokenURL     string   `yaml:"registration_token_url"`
	RegistrationClientID     string   `yaml:"registration_client_id"`
	RegistrationClientSecret string   `yaml:"registration_client_secret"`
	RegistrationScopes       []string `yaml:"registration_scopes"`

	// Shared poll state. Memory is used when RedisAddr is empty.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Operator notifications
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	NotifyEmail  string `yaml:"notify_email"`

	Vens []VenSeed `yaml:"vens"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		VTNID:            "oadrvtn",
		ListenAddr:       ":8080",
		AdminListenAddr:  ":8081",
		PathPrefix:       "/OpenADR2/Simple/2.0b",
		LogLevel:         "info",
		PollFrequency:    10 * time.Second,
		DatabasePath:     "./data/oadrvtn.db",
		RegistryCacheTTL: 30 * time.Second,
		AdminTokenTTL:    time.Hour,
		SMTPPort:         587,
	}
}

// Load builds a configuration from the defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errl.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errl.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from OADR_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"OADR_VTN_ID":                     &c.VTNID,
		"OADR_LISTEN_ADDR":                &c.ListenAddr,
		"OADR_ADMIN_LISTEN_ADDR":          &c.AdminListenAddr,
		"OADR_PATH_PREFIX":                &c.PathPrefix,
		"OADR_LOG_LEVEL":                  &c.LogLevel,
		"OADR_DATABASE_PATH":              &c.DatabasePath,
		"OADR_SIGNING_KEY_FILE":           &c.SigningKeyFile,
		"OADR_SIGNING_CERT_FILE":          &c.SigningCertFile,
		"OADR_ADMIN_PASSWORD":             &c.AdminPassword,
		"OADR_ADMIN_OIDC_ISSUER":          &c.AdminOIDCIssuer,
		"OADR_ADMIN_OIDC_CLIENT_ID":       &c.AdminOIDCClientID,
		"OADR_REGISTRATION_POLICY_FILE":   &c.RegistrationPolicyFile,
		"OADR_REGISTRATION_SERVICE_URL":   &c.RegistrationServiceURL,
		"OADR_REGISTRATION_TOKEN_URL":     &c.RegistrationTokenURL,
		"OADR_REGISTRATION_CLIENT_ID":     &c.RegistrationClientID,
		"OADR_REGISTRATION_CLIENT_SECRET": &c.RegistrationClientSecret,
		"OADR_REDIS_ADDR":                 &c.RedisAddr,
		"OADR_REDIS_PASSWORD":             &c.RedisPassword,
		"OADR_SMTP_HOST":                  &c.SMTPHost,
		"OADR_SMTP_USERNAME":              &c.SMTPUsername,
		"OADR_SMTP_PASSWORD":              &c.SMTPPassword,
		"OADR_SMTP_FROM":                  &c.SMTPFrom,
		"OADR_NOTIFY_EMAIL":               &c.NotifyEmail,
	}
	for key, field := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		"OADR_POLL_FREQUENCY":     &c.PollFrequency,
		"OADR_REGISTRY_CACHE_TTL": &c.RegistryCacheTTL,
		"OADR_ADMIN_TOKEN_TTL":    &c.AdminTokenTTL,
	}
	for key, field := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errl.Errorf("invalid %s: %w", key, err)
			}
			*field = d
		}
	}

	ints := map[string]*int{
		"OADR_REDIS_DB":  &c.RedisDB,
		"OADR_SMTP_PORT": &c.SMTPPort,
	}
	for key, field := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errl.Errorf("invalid %s: %w", key, err)
			}
			*field = n
		}
	}

	if v, ok := lookup("OADR_DEVELOPMENT"); ok && v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return errl.Errorf("invalid OADR_DEVELOPMENT: %w", err)
		}
		c.Development = dev
	}

	if v, ok := lookup("OADR_REGISTRATION_SCOPES"); ok && v != "" {
		c.RegistrationScopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	return nil
}

// Validate checks the values the VTN cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.VTNID) == "" {
		errs = append(errs, errors.New("vtn_id is required"))
	}
	if c.PollFrequency <= 0 {
		errs = append(errs, fmt.Errorf("poll_frequency must be positive, got %s", c.PollFrequency))
	}
	if c.AdminPassword == "" {
		errs = append(errs, errors.New("admin password is required (OADR_ADMIN_PASSWORD or -admin-password)"))
	}
	if c.RegistryCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("registry_cache_ttl must not be negative, got %s", c.RegistryCacheTTL))
	}
	if c.RegistrationServiceURL != "" && c.RegistrationTokenURL == "" {
		errs = append(errs, errors.New("registration_token_url is required with registration_service_url"))
	}
	for i, v := range c.Vens {
		if v.VenID == "" {
			errs = append(errs, fmt.Errorf("vens[%d]: ven_id is required", i))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Flags are the command-line overrides. Only flags given explicitly are applied.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath      string
	VTNID           string
	ListenAddr      string
	AdminListenAddr string
	AdminPassword   string
	DatabasePath    string
	LogLevel        string
	Development     bool
}

// RegisterFlags defines the VTN flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&f.VTNID, "vtn-id", "", "Identifier of this VTN")
	fs.StringVar(&f.ListenAddr, "listen", "", "Listen address for the OpenADR endpoints")
	fs.StringVar(&f.AdminListenAddr, "admin-listen", "", "Listen address for the admin API")
	fs.StringVar(&f.AdminPassword, "admin-password", "", "Admin password")
	fs.StringVar(&f.DatabasePath, "db", "", "Path to the sqlite database")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&f.Development, "dev", false, "Development mode")
	return f
}

// Apply copies the explicitly set flags into c.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "vtn-id":
			c.VTNID = f.VTNID
		case "listen":
			c.ListenAddr = f.ListenAddr
		case "admin-listen":
			c.AdminListenAddr = f.AdminListenAddr
		case "admin-password":
			c.AdminPassword = f.AdminPassword
		case "db":
			c.DatabasePath = f.DatabasePath
		case "log-level":
			c.LogLevel = f.LogLevel
		case "dev":
			c.Development = f.Development
		}
	})
}
