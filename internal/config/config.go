package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"crowdfill/internal/credibility"
)

// Config models crowdfill.yml.
type Config struct {
	Store       StoreConfig            `yaml:"store" mapstructure:"store"`
	Server      ServerConfig           `yaml:"server" mapstructure:"server"`
	Log         LogConfig              `yaml:"log" mapstructure:"log"`
	Ledger      LedgerConfig           `yaml:"ledger" mapstructure:"ledger"`
	Credibility credibility.Thresholds `yaml:"credibility" mapstructure:"credibility"`
	Dispatch    DispatchConfig         `yaml:"dispatch" mapstructure:"dispatch"`
	Notify      NotifyConfig           `yaml:"notify" mapstructure:"notify"`
	RBAC        struct {
		Roles map[string]RBACRole `yaml:"roles" mapstructure:"roles"`
	} `yaml:"rbac" mapstructure:"rbac"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr                   string   `yaml:"addr" mapstructure:"addr"`
	BasePath               string   `yaml:"base_path" mapstructure:"base_path"`
	JWTSecret              string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	AllowLegacyActorHeader bool     `yaml:"allow_legacy_actor_header" mapstructure:"allow_legacy_actor_header"`
	CORSOrigins            []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LedgerConfig bounds the internal retry of conflicting item mutations.
type LedgerConfig struct {
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

type DispatchConfig struct {
	URL            string  `yaml:"url" mapstructure:"url"`
	Token          string  `yaml:"token" mapstructure:"token"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

type NotifyConfig struct {
	Events         []string        `yaml:"events" mapstructure:"events"`
	PollIntervalMS int             `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	Log            bool            `yaml:"log" mapstructure:"log"`
	Webhooks       []WebhookConfig `yaml:"webhooks" mapstructure:"webhooks"`
	PubSub         PubSubConfig    `yaml:"pubsub" mapstructure:"pubsub"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" mapstructure:"url"`
	Secret         string   `yaml:"secret" mapstructure:"secret"`
	Events         []string `yaml:"events" mapstructure:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" mapstructure:"enabled"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id" mapstructure:"project_id"`
	Topic     string `yaml:"topic" mapstructure:"topic"`
}

type RBACRole struct {
	Description string   `yaml:"description" mapstructure:"description"`
	Permissions []string `yaml:"permissions" mapstructure:"permissions"`
}

// Load layers the defaults, the workspace crowdfill.yml (when present) and
// CROWDFILL_* environment variables.
func Load(workspace string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CROWDFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewBufferString(defaultTemplate)); err != nil {
		return nil, eris.Wrap(err, "config: read defaults")
	}
	path := Path(workspace)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, eris.Wrapf(err, "config: parse %s", path)
		}
	case !os.IsNotExist(err):
		return nil, eris.Wrapf(err, "config: read %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v1"
	}
	if c.Ledger.MaxAttempts <= 0 {
		c.Ledger.MaxAttempts = 3
	}
	if c.Ledger.RetryBackoffMS <= 0 {
		c.Ledger.RetryBackoffMS = 20
	}
	if c.Credibility == (credibility.Thresholds{}) {
		c.Credibility = credibility.DefaultThresholds()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("config.store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Credibility.MinSample < 3 {
		return fmt.Errorf("config.credibility.min_sample must be at least 3")
	}
	if c.Credibility.SuspiciousFalseRatio <= 0 || c.Credibility.SuspiciousFalseRatio >= 1 {
		return fmt.Errorf("config.credibility.suspicious_false_ratio must be in (0,1)")
	}
	if c.Credibility.TrustedConfirmedRatio <= 0 || c.Credibility.TrustedConfirmedRatio > 1 {
		return fmt.Errorf("config.credibility.trusted_confirmed_ratio must be in (0,1]")
	}
	if c.Dispatch.RatePerSecond < 0 {
		return fmt.Errorf("config.dispatch.rate_per_second must not be negative")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for i, hook := range c.Notify.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notify.webhooks[%d].url is required", i)
		}
	}
	if (c.Notify.PubSub.ProjectID == "") != (c.Notify.PubSub.Topic == "") {
		return fmt.Errorf("config.notify.pubsub needs both project_id and topic")
	}
	return nil
}

// Permissions returns the union of permissions granted to roles.
func (c *Config) Permissions(roles []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range roles {
		role, ok := c.RBAC.Roles[strings.ToLower(r)]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crowdfill.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset sections keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the effective configuration.
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const defaultTemplate = `store:
  driver: sqlite
  dsn: ""

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  jwt_secret: ""
  allow_legacy_actor_header: false
  cors_origins: []

log:
  level: info
  format: json

ledger:
  max_attempts: 3
  retry_backoff_ms: 20

credibility:
  min_sample: 3
  suspicious_false_ratio: 0.5
  trusted_confirmed_ratio: 0.8

dispatch:
  url: ""
  token: ""
  timeout_seconds: 10
  rate_per_second: 5
  burst: 5
  max_attempts: 3

notify:
  events: [job.created, post.created]
  poll_interval_ms: 2000
  log: true
  webhooks: []
  pubsub:
    project_id: ""
    topic: ""

rbac:
  roles:
    seller:
      description: "Owns orders; allocates, reviews and cancels work"
      permissions:
        - order.read
        - item.read
        - item.allocate
        - item.dispatch
        - job.read
        - job.edit
        - job.cancel
        - job.advance
        - claim.read
        - claim.review
        - post.read
        - post.create
        - post.cancel
        - bid.accept
        - payout.read
        - event.read
    team_lead:
      description: "Runs a team; bids on posts and reviews team claims"
      permissions:
        - item.read
        - job.read
        - claim.read
        - claim.review
        - post.read
        - bid.place
        - payout.read
    worker:
      description: "Claims and reports work"
      permissions:
        - job.read
        - claim.read
        - claim.create
        - claim.progress
        - payout.read
    moderator:
      description: "Feeds report review outcomes"
      permissions:
        - credibility.read
        - credibility.write
    system:
      description: "Order subsystem and internal callers"
      permissions:
        - "*"
`
