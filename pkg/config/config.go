package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	SAML          SAMLConfig          `yaml:"saml"`
	Identity      IdentityConfig      `yaml:"identity"`
	Roles         RolesConfig         `yaml:"roles"`
	Allow         AllowConfig         `yaml:"allow"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// SAMLConfig holds the IdP connection settings.
type SAMLConfig struct {
	// Activated turns the whole bridge on. When false all SAML routes
	// short-circuit to the local login page and the gate never evicts.
	Activated bool `yaml:"activated"`

	IdPEntityID string `yaml:"idp_entity_id"`
	SSOURL      string `yaml:"idp_sso_url"`
	SLOURL      string `yaml:"idp_slo_url"`

	// CertificateFile and PrivateKeyFile are PEM files, read at load time
	// into Certificate and PrivateKey.
	CertificateFile string `yaml:"idp_cert_file"`
	PrivateKeyFile  string `yaml:"sp_key_file"`
	Certificate     string `yaml:"-"`
	PrivateKey      string `yaml:"-"`

	SPBaseURL    string `yaml:"sp_base_url"`
	ACSPath      string `yaml:"acs_path"`
	NameIDFormat string `yaml:"name_id_format"`
	SignRequests bool   `yaml:"sign_requests"`
}

// IdentityConfig holds account resolution and synchronization policy.
type IdentityConfig struct {
	RegisterUsers    bool `yaml:"register_users"`
	AutoLinkExisting bool `yaml:"auto_link_existing"`

	UniqueIDAttribute string `yaml:"unique_id"`
	UsernameAttribute string `yaml:"user_name"`
	EmailAttribute    string `yaml:"mail_attr"`

	SyncUsername bool `yaml:"sync_user_name"`
	SyncEmail    bool `yaml:"sync_mail"`
}

// RolesConfig holds role-population settings. Population is the raw rule
// string; PopulationFile, when set, names a file whose contents replace it
// and which may be watched for changes.
type RolesConfig struct {
	Population     string `yaml:"population"`
	PopulationFile string `yaml:"population_file"`
	EvalEveryTime  bool   `yaml:"eval_every_time"`
}

// AllowConfig is the local-login allow policy.
type AllowConfig struct {
	DefaultLogin      bool   `yaml:"default_login"`
	DefaultLoginUsers string `yaml:"default_login_users"`
	DefaultLoginRoles string `yaml:"default_login_roles"`
}

// RoleList splits the configured role allow-list.
func (a AllowConfig) RoleList() []string {
	var roles []string
	for _, role := range strings.Split(a.DefaultLoginRoles, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// StorageConfig holds database and session-store settings.
type StorageConfig struct {
	PostgresURL string `yaml:"postgres_url"`

	// SessionBackend selects where sessions live: "postgres" or "redis".
	SessionBackend string        `yaml:"session_backend"`
	RedisURL       string        `yaml:"redis_url"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	// SessionSweepSchedule is the cron spec for the expired-session sweep
	// (postgres backend only).
	SessionSweepSchedule string `yaml:"session_sweep_schedule"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		SAML: SAMLConfig{
			Activated: true,
			ACSPath:   "/saml/acs",
		},
		Identity: IdentityConfig{
			RegisterUsers:     true,
			UniqueIDAttribute: "eduPersonPrincipalName",
			UsernameAttribute: "uid",
			EmailAttribute:    "mail",
		},
		Allow: AllowConfig{
			DefaultLogin: true,
		},
		Storage: StorageConfig{
			SessionBackend:       "postgres",
			SessionTTL:           8 * time.Hour,
			SessionSweepSchedule: "@every 15m",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

// LoadConfig loads configuration: defaults, then the optional YAML file
// named by SAMLBRIDGE_CONFIG_FILE, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("SAMLBRIDGE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.loadPEMFiles(); err != nil {
		return nil, err
	}
	if err := cfg.loadRolePopulationFile(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Server.Host = getEnv("SAMLBRIDGE_HOST", c.Server.Host)
	c.Server.Port = getEnv("SAMLBRIDGE_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("SAMLBRIDGE_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("SAMLBRIDGE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SAMLBRIDGE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SAMLBRIDGE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SAMLBRIDGE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.SAML.Activated = getEnvBool("SAMLBRIDGE_ACTIVATED", c.SAML.Activated)
	c.SAML.IdPEntityID = getEnv("SAMLBRIDGE_IDP_ENTITY_ID", c.SAML.IdPEntityID)
	c.SAML.SSOURL = getEnv("SAMLBRIDGE_IDP_SSO_URL", c.SAML.SSOURL)
	c.SAML.SLOURL = getEnv("SAMLBRIDGE_IDP_SLO_URL", c.SAML.SLOURL)
	c.SAML.CertificateFile = getEnv("SAMLBRIDGE_IDP_CERT_FILE", c.SAML.CertificateFile)
	c.SAML.PrivateKeyFile = getEnv("SAMLBRIDGE_SP_KEY_FILE", c.SAML.PrivateKeyFile)
	c.SAML.SPBaseURL = getEnv("SAMLBRIDGE_SP_BASE_URL", c.SAML.SPBaseURL)
	c.SAML.ACSPath = getEnv("SAMLBRIDGE_ACS_PATH", c.SAML.ACSPath)
	c.SAML.NameIDFormat = getEnv("SAMLBRIDGE_NAME_ID_FORMAT", c.SAML.NameIDFormat)
	c.SAML.SignRequests = getEnvBool("SAMLBRIDGE_SIGN_REQUESTS", c.SAML.SignRequests)

	c.Identity.RegisterUsers = getEnvBool("SAMLBRIDGE_REGISTER_USERS", c.Identity.RegisterUsers)
	c.Identity.AutoLinkExisting = getEnvBool("SAMLBRIDGE_AUTO_LINK_EXISTING", c.Identity.AutoLinkExisting)
	c.Identity.UniqueIDAttribute = getEnv("SAMLBRIDGE_UNIQUE_ID_ATTR", c.Identity.UniqueIDAttribute)
	c.Identity.UsernameAttribute = getEnv("SAMLBRIDGE_USER_NAME_ATTR", c.Identity.UsernameAttribute)
	c.Identity.EmailAttribute = getEnv("SAMLBRIDGE_MAIL_ATTR", c.Identity.EmailAttribute)
	c.Identity.SyncUsername = getEnvBool("SAMLBRIDGE_SYNC_USER_NAME", c.Identity.SyncUsername)
	c.Identity.SyncEmail = getEnvBool("SAMLBRIDGE_SYNC_MAIL", c.Identity.SyncEmail)

	c.Roles.Population = getEnv("SAMLBRIDGE_ROLE_POPULATION", c.Roles.Population)
	c.Roles.PopulationFile = getEnv("SAMLBRIDGE_ROLE_POPULATION_FILE", c.Roles.PopulationFile)
	c.Roles.EvalEveryTime = getEnvBool("SAMLBRIDGE_ROLE_EVAL_EVERY_TIME", c.Roles.EvalEveryTime)

	c.Allow.DefaultLogin = getEnvBool("SAMLBRIDGE_ALLOW_DEFAULT_LOGIN", c.Allow.DefaultLogin)
	c.Allow.DefaultLoginUsers = getEnv("SAMLBRIDGE_ALLOW_DEFAULT_LOGIN_USERS", c.Allow.DefaultLoginUsers)
	c.Allow.DefaultLoginRoles = getEnv("SAMLBRIDGE_ALLOW_DEFAULT_LOGIN_ROLES", c.Allow.DefaultLoginRoles)

	c.Storage.PostgresURL = getEnv("SAMLBRIDGE_POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.SessionBackend = getEnv("SAMLBRIDGE_SESSION_BACKEND", c.Storage.SessionBackend)
	c.Storage.RedisURL = getEnv("SAMLBRIDGE_REDIS_URL", c.Storage.RedisURL)
	c.Storage.SessionTTL = getEnvDuration("SAMLBRIDGE_SESSION_TTL", c.Storage.SessionTTL)
	c.Storage.SessionSweepSchedule = getEnv("SAMLBRIDGE_SESSION_SWEEP_SCHEDULE", c.Storage.SessionSweepSchedule)

	c.Observability.LogLevel = getEnv("SAMLBRIDGE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("SAMLBRIDGE_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

func (c *Config) loadPEMFiles() error {
	if c.SAML.CertificateFile != "" {
		data, err := os.ReadFile(c.SAML.CertificateFile)
		if err != nil {
			return fmt.Errorf("failed to read IdP certificate file: %w", err)
		}
		c.SAML.Certificate = string(data)
	}
	if c.SAML.PrivateKeyFile != "" {
		data, err := os.ReadFile(c.SAML.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read SP key file: %w", err)
		}
		c.SAML.PrivateKey = string(data)
	}
	return nil
}

func (c *Config) loadRolePopulationFile() error {
	if c.Roles.PopulationFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Roles.PopulationFile)
	if err != nil {
		return fmt.Errorf("failed to read role population file: %w", err)
	}
	c.Roles.Population = strings.TrimSpace(string(data))
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.SAML.Activated {
		if c.SAML.IdPEntityID == "" {
			return fmt.Errorf("idp entity id is required when the bridge is activated")
		}
		if c.SAML.SSOURL == "" {
			return fmt.Errorf("idp sso url is required when the bridge is activated")
		}
		if c.SAML.Certificate == "" {
			return fmt.Errorf("idp certificate is required when the bridge is activated")
		}
		if c.SAML.SPBaseURL == "" {
			return fmt.Errorf("sp base url is required when the bridge is activated")
		}
		if c.SAML.SignRequests && c.SAML.PrivateKey == "" {
			return fmt.Errorf("sp key file is required when request signing is enabled")
		}
		if c.Identity.UniqueIDAttribute == "" {
			return fmt.Errorf("unique id attribute is required")
		}
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	switch c.Storage.SessionBackend {
	case "postgres":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be postgres or redis)", c.Storage.SessionBackend)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
