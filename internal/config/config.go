package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the git directory
const FileName = "stageline.yaml"

// Store backends
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Manifest object store backends
const (
	ManifestNone   = ""
	ManifestMemory = "memory"
	ManifestS3     = "s3"
)

// Config is the full stageline configuration
type Config struct {
	Actor          ActorConfig   `yaml:"actor"`
	Store          StoreConfig   `yaml:"store"`
	TraversalLimit int           `yaml:"traversal_limit" validate:"gte=1"`
	Footers        FooterConfig  `yaml:"footers"`
	Review         []Requirement `yaml:"review" validate:"dive"`
	Integration    Integration   `yaml:"integration"`
	Events         EventsConfig  `yaml:"events"`
	Log            LogConfig     `yaml:"log"`
	Server         ServerConfig  `yaml:"server"`
	// LockDir holds branch lock files. Empty means <git-dir>/stageline/locks.
	LockDir string `yaml:"lock_dir,omitempty"`
}

// ActorConfig is the identity recorded on messages and commits. Empty fields fall back to
// the repository's user.name and user.email.
type ActorConfig struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty" validate:"omitempty,email"`
}

// StoreConfig selects the change metadata backend
type StoreConfig struct {
	Backend string       `yaml:"backend" validate:"oneof=memory badger redis"`
	Badger  BadgerConfig `yaml:"badger"`
	Redis   RedisConfig  `yaml:"redis"`
}

// BadgerConfig configures the badger store. Empty Path means <git-dir>/stageline/db.
type BadgerConfig struct {
	Path       string `yaml:"path,omitempty"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// RedisConfig configures the redis store and the redis event sink
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// FooterConfig controls commit message footers on integrated commits
type FooterConfig struct {
	Strip       []string `yaml:"strip"`
	ReviewedBy  bool     `yaml:"reviewed_by"`
	ReviewLabel string   `yaml:"review_label"`
	ReviewMax   int      `yaml:"review_max" validate:"gte=0"`
}

// Requirement is a minimum vote a change needs before it can be staged
type Requirement struct {
	Label string `yaml:"label" validate:"required"`
	Min   int    `yaml:"min" validate:"gte=1"`
}

// Integration is the approval granted to patch sets the engine creates
type Integration struct {
	Label string `yaml:"label"`
	Value int    `yaml:"value"`
}

// EventsConfig selects where notifications go. The log sink is always on.
type EventsConfig struct {
	RedisChannel string         `yaml:"redis_channel,omitempty"`
	Mail         bool           `yaml:"mail"`
	Manifest     ManifestConfig `yaml:"manifest"`
}

// ManifestConfig selects the object store that receives build manifests
type ManifestConfig struct {
	Backend string   `yaml:"backend,omitempty" validate:"omitempty,oneof=memory s3"`
	S3      S3Config `yaml:"s3"`
}

// S3Config locates the manifest bucket
type S3Config struct {
	Bucket          string `yaml:"bucket,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// LogConfig configures the optional log file
type LogConfig struct {
	File string `yaml:"file,omitempty"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Store:          StoreConfig{Backend: StoreBadger, Badger: BadgerConfig{SyncWrites: true}},
		TraversalLimit: 100,
		Footers: FooterConfig{
			Strip:       []string{"Reviewed-on:", "Tested-by:", "Sanity-Review:", "ChangeLog:"},
			ReviewLabel: "Code-Review",
			ReviewMax:   2,
		},
		Integration: Integration{Label: "Verified", Value: 1},
		Server:      ServerConfig{Addr: ":8080"},
	}
}

// Path returns the default configuration path for a git directory
func Path(gitDir string) string {
	return filepath.Join(gitDir, FileName)
}

// Load reads the configuration. An explicit path must exist; otherwise the file in gitDir
// is used when present and the defaults when not. Environment overrides apply last.
func Load(path, gitDir string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path(gitDir)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as yaml to path
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

var validate = validator.New()

// Validate checks the configuration for values stageline cannot run with
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Backend == StoreRedis && c.Store.Redis.Addr == "" {
		return fmt.Errorf("invalid config: store.redis.addr is required for the redis backend")
	}
	if c.Events.RedisChannel != "" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("invalid config: events.redis_channel needs store.redis.addr")
	}
	if c.Events.Manifest.Backend == ManifestS3 && c.Events.Manifest.S3.Bucket == "" {
		return fmt.Errorf("invalid config: events.manifest.s3.bucket is required")
	}
	return nil
}

// applyEnv overrides fields from STAGELINE_* variables. Empty variables are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STAGELINE_ACTOR_NAME":        &c.Actor.Name,
		"STAGELINE_ACTOR_EMAIL":       &c.Actor.Email,
		"STAGELINE_STORE":             &c.Store.Backend,
		"STAGELINE_BADGER_PATH":       &c.Store.Badger.Path,
		"STAGELINE_REDIS_ADDR":        &c.Store.Redis.Addr,
		"STAGELINE_REDIS_PASSWORD":    &c.Store.Redis.Password,
		"STAGELINE_REDIS_CHANNEL":     &c.Events.RedisChannel,
		"STAGELINE_MANIFEST":          &c.Events.Manifest.Backend,
		"STAGELINE_S3_BUCKET":         &c.Events.Manifest.S3.Bucket,
		"STAGELINE_S3_REGION":         &c.Events.Manifest.S3.Region,
		"STAGELINE_S3_ENDPOINT":       &c.Events.Manifest.S3.Endpoint,
		"STAGELINE_S3_ACCESS_KEY_ID":  &c.Events.Manifest.S3.AccessKeyID,
		"STAGELINE_S3_SECRET_KEY":     &c.Events.Manifest.S3.SecretAccessKey,
		"STAGELINE_LOG_FILE":          &c.Log.File,
		"STAGELINE_SERVER_ADDR":       &c.Server.Addr,
		"STAGELINE_LOCK_DIR":          &c.LockDir,
		"STAGELINE_INTEGRATION_LABEL": &c.Integration.Label,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*field = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"STAGELINE_TRAVERSAL_LIMIT": &c.TraversalLimit,
		"STAGELINE_REDIS_DB":        &c.Store.Redis.DB,
	}
	for name, field := range ints {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*field = n
	}
	return nil
}
