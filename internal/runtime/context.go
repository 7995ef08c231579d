package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"stageline.dev/stageline/internal/config"
	"stageline.dev/stageline/internal/engine"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/output"
	"stageline.dev/stageline/internal/store"
)

// Context provides access to the engine and output for commands
type Context struct {
	Engine   engine.Engine
	Store    store.Store
	Repo     *git.Repo
	Splog    *output.Splog
	Config   *config.Config
	Actor    engine.Actor
	RepoRoot string
	// Manifests receives build manifests; nil when no manifest store is configured
	Manifests events.ObjectStore

	closers []func() error
}

// NewContext creates a context around an existing engine
func NewContext(eng engine.Engine, splog *output.Splog, actor engine.Actor) *Context {
	return &Context{
		Engine: eng,
		Splog:  splog,
		Actor:  actor,
		Config: config.Default(),
	}
}

// NewRequest starts a request on behalf of the context's actor
func (c *Context) NewRequest() *engine.Request {
	return engine.NewRequest(c.Actor.Name, c.Actor.Email)
}

// Close releases the store, redis connections and the log file
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Splog != nil {
		if err := c.Splog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options locate the repository and configuration for Open
type Options struct {
	// Dir is any path inside the repository
	Dir string
	// ConfigPath overrides <git-dir>/stageline.yaml
	ConfigPath string
	// Out receives console output
	Out io.Writer
}

// Open builds a context for the repository containing opts.Dir: it loads the
// configuration, opens the change store and wires the event sinks.
func Open(ctx context.Context, opts Options) (*Context, error) {
	repo, err := git.Open(ctx, opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	cfg, err := config.Load(opts.ConfigPath, repo.GitDir())
	if err != nil {
		return nil, err
	}

	splog, err := output.NewSplogWithConfig(opts.Out, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	logger := splog.Logger()

	rc := &Context{
		Repo:     repo,
		Splog:    splog,
		Config:   cfg,
		RepoRoot: repo.Root(),
	}

	var rdb *redis.Client
	if cfg.Store.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		rc.closers = append(rc.closers, rdb.Close)
	}

	st, err := openStore(cfg, repo.GitDir(), rdb, logger)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	rc.Store = st
	rc.closers = append(rc.closers, st.Close)

	sinks := []events.Sink{events.NewLogSink(logger)}
	if cfg.Events.RedisChannel != "" {
		sinks = append(sinks, events.NewRedisSink(rdb, cfg.Events.RedisChannel))
	}
	switch cfg.Events.Manifest.Backend {
	case config.ManifestMemory:
		rc.Manifests = events.NewInMemoryObjectStore()
	case config.ManifestS3:
		s3cfg := cfg.Events.Manifest.S3
		client := events.NewS3Client(events.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		rc.Manifests = events.NewS3ObjectStore(client, s3cfg.Bucket)
	}
	if rc.Manifests != nil {
		sinks = append(sinks, events.NewManifestSink(rc.Manifests))
	}
	if cfg.Events.Mail {
		sinks = append(sinks, events.NewMailSink(events.LogMailer{Logger: logger}, ownerLookup(st)))
	}

	rc.Actor = resolveActor(ctx, repo, cfg.Actor)

	eopts := EngineOptions(cfg)
	eopts.LockDir = cfg.LockDir
	if eopts.LockDir == "" {
		eopts.LockDir = filepath.Join(repo.GitDir(), "stageline", "locks")
	}
	eopts.Notifier = events.NewDispatcher(logger, sinks...)
	eopts.Logger = logger
	rc.Engine = engine.New(repo, st, eopts)

	return rc, nil
}

// EngineOptions translates the configuration into engine options
func EngineOptions(cfg *config.Config) engine.Options {
	opts := engine.DefaultOptions()
	opts.TraversalLimit = cfg.TraversalLimit
	opts.Footers = engine.FooterPolicy{
		Strip:       cfg.Footers.Strip,
		ReviewedBy:  cfg.Footers.ReviewedBy,
		ReviewLabel: cfg.Footers.ReviewLabel,
		ReviewMax:   cfg.Footers.ReviewMax,
	}
	for _, r := range cfg.Review {
		opts.Review.Requirements = append(opts.Review.Requirements, engine.Requirement{Label: r.Label, Min: r.Min})
	}
	opts.IntegrationLabel = cfg.Integration.Label
	opts.IntegrationValue = cfg.Integration.Value
	return opts
}

func openStore(cfg *config.Config, gitDir string, rdb *redis.Client, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreRedis:
		return store.NewRedisStore(rdb, cfg.Store.Redis.Prefix), nil
	default:
		path := cfg.Store.Badger.Path
		if path == "" {
			path = filepath.Join(gitDir, "stageline", "db")
		}
		bcfg := store.DefaultBadgerConfig(path)
		bcfg.SyncWrites = cfg.Store.Badger.SyncWrites
		bcfg.Logger = logger
		st, err := store.OpenBadgerStore(bcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open change store at %s: %w", path, err)
		}
		return st, nil
	}
}

func ownerLookup(st store.Store) func(ctx context.Context, number int) string {
	return func(ctx context.Context, number int) string {
		c, err := st.Get(ctx, number)
		if err != nil {
			return ""
		}
		return c.Owner
	}
}

// resolveActor fills missing identity fields from the repository's git config
func resolveActor(ctx context.Context, repo *git.Repo, cfg config.ActorConfig) engine.Actor {
	actor := engine.Actor{Name: cfg.Name, Email: cfg.Email}
	if actor.Name == "" {
		actor.Name, _ = repo.Runner().Run(ctx, "config", "user.name")
	}
	if actor.Email == "" {
		actor.Email, _ = repo.Runner().Run(ctx, "config", "user.email")
	}
	if actor.Name == "" {
		actor.Name = "stageline"
	}
	if actor.Email == "" {
		actor.Email = "stageline@localhost"
	}
	return actor
}
