package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/adapter"
	redisadapter "github.com/pithecene-io/screener/adapter/redis"
	"github.com/pithecene-io/screener/adapter/webhook"
	"github.com/pithecene-io/screener/cli/config"
	"github.com/pithecene-io/screener/client"
	"github.com/pithecene-io/screener/history"
	"github.com/pithecene-io/screener/kv"
	"github.com/pithecene-io/screener/kv/file"
	"github.com/pithecene-io/screener/kv/redis"
	"github.com/pithecene-io/screener/kv/sqlite"
	"github.com/pithecene-io/screener/log"
	"github.com/pithecene-io/screener/metrics"
	"github.com/pithecene-io/screener/progress"
	"github.com/pithecene-io/screener/query"
	"github.com/pithecene-io/screener/types"
)

// History backends.
const (
	backendFile   = "file"
	backendSQLite = "sqlite"
	backendRedis  = "redis"
	backendMemory = "memory"
)

// env holds everything one command invocation opened. Close releases it.
type env struct {
	cfg     *config.Config
	meta    *types.SessionMeta
	logger  *log.Logger
	metrics *metrics.Collector

	backend     kv.Store
	backendName string
	history     *history.Store

	logFile io.Closer
	closers []io.Closer
}

// loadConfig loads .env files and the YAML config. An explicit --config
// must exist; the default path is optional.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}
	path, required := config.DefaultPath, false
	if c.IsSet("config") {
		path, required = c.String("config"), true
	}
	cfg, err := config.LoadOptional(path, required)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}
	return cfg, nil
}

// openEnv loads config, sets up logging and opens the history store.
// interactive sessions never log to stderr: the TUI owns the terminal.
func openEnv(c *cli.Context, interactive bool) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg: cfg,
		meta: &types.SessionMeta{
			SessionID:   newSessionID(),
			ServiceURL:  resolveString(c, "service-url", cfg.ServiceURL()),
			Interactive: interactive,
		},
	}

	if err := e.openLogger(c, interactive); err != nil {
		return nil, err
	}

	if err := e.openHistory(c); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) openLogger(c *cli.Context, interactive bool) error {
	level, err := log.ParseLevel(resolveString(c, "log-level", e.cfg.Log.Level))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	path := resolveString(c, "log-file", e.cfg.Log.File)
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open log file %q: %v", path, err), exitConfig)
		}
		e.logFile = f
		e.logger = log.New(e.meta, f, level)
	case interactive:
		e.logger = log.NewNop()
	default:
		e.logger = log.New(e.meta, c.App.ErrWriter, level)
	}
	return nil
}

func (e *env) openHistory(c *cli.Context) error {
	hc := e.cfg.History
	name := resolveString(c, "history-backend", hc.Backend)
	if name == "" {
		name = backendFile
	}
	e.backendName = name

	backend, err := openBackend(c.Context, name, resolveString(c, "history-path", hc.Path), resolveString(c, "history-url", hc.URL), hc.Prefix)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	e.backend = backend
	e.closers = append(e.closers, backend)

	codec, err := history.ParseCodec(resolveString(c, "history-codec", hc.Codec))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	adapterName := resolveString(c, "adapter", e.cfg.Adapter.Type)
	e.metrics = metrics.NewCollector(name, adapterName, e.meta.SessionID)

	opts := []history.Option{
		history.WithCodec(codec),
		history.WithLogger(e.logger),
		history.WithMetrics(e.metrics),
	}
	if hc.Key != "" {
		opts = append(opts, history.WithKey(hc.Key))
	}
	store, err := history.New(backend, opts...)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	e.history = store
	return nil
}

// openBackend opens the named kv backend.
func openBackend(ctx context.Context, name, path, url, prefix string) (kv.Store, error) {
	switch name {
	case backendFile:
		if path == "" {
			path = defaultDataDir()
		}
		return file.New(path)
	case backendSQLite:
		if path == "" {
			path = filepath.Join(defaultDataDir(), "history.db")
		} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
		return sqlite.Open(ctx, path)
	case backendRedis:
		return redis.New(redis.Config{URL: url, Prefix: prefix})
	case backendMemory:
		return kv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q (must be file, sqlite, redis, or memory)", name)
	}
}

// defaultDataDir is where history lives when no path is configured.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "screener")
	}
	return ".screener"
}

// orchestrator builds the service client, adapter and query orchestrator
// on top of an open env.
func (e *env) orchestrator(c *cli.Context) (*query.Orchestrator, error) {
	sc := e.cfg.Service
	cl, err := client.New(client.Config{
		BaseURL: e.meta.ServiceURL,
		Headers: sc.Headers,
		Timeout: resolveDuration(c, "service-timeout", sc.Timeout.Duration),
	})
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}
	e.closers = append(e.closers, cl)

	ad, err := e.buildAdapter(c)
	if err != nil {
		return nil, err
	}
	if ad != nil {
		e.closers = append(e.closers, ad)
	}

	pc := e.cfg.Progress
	orch, err := query.New(query.Config{
		Service: cl,
		History: e.history,
		Progress: progress.New(progress.Config{
			StepInterval: pc.StepInterval.Duration,
			SettleDelay:  pc.SettleDelay.Duration,
		}),
		Adapter: ad,
		Session: e.meta,
		Logger:  e.logger,
		Metrics: e.metrics,
	})
	if err != nil {
		return nil, err
	}
	return orch, nil
}

// buildAdapter returns the configured notification adapter, or nil.
func (e *env) buildAdapter(c *cli.Context) (adapter.Adapter, error) {
	ac := e.cfg.Adapter
	name := resolveString(c, "adapter", ac.Type)
	if name == "" {
		return nil, nil
	}

	url := resolveString(c, "adapter-url", ac.URL)
	timeout := resolveDuration(c, "adapter-timeout", ac.Timeout.Duration)

	// nil means "use the adapter default"; an explicit 0 disables retries.
	retries := -1
	if ac.Retries != nil {
		retries = *ac.Retries
	}
	if c.IsSet("adapter-retries") {
		retries = c.Int("adapter-retries")
	}

	switch name {
	case "webhook":
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		ad, err := webhook.New(webhook.Config{
			URL:     url,
			Headers: ac.Headers,
			Timeout: timeout,
			Retries: retries,
			Backoff: ac.Backoff.Duration,
		})
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitConfig)
		}
		return ad, nil
	case "redis":
		if retries < 0 {
			retries = redisadapter.DefaultRetries
		}
		ad, err := redisadapter.New(redisadapter.Config{
			URL:     url,
			Channel: resolveString(c, "adapter-channel", ac.Channel),
			Timeout: timeout,
			Retries: retries,
			Backoff: ac.Backoff.Duration,
		})
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitConfig)
		}
		return ad, nil
	default:
		return nil, cli.Exit(fmt.Sprintf("unknown adapter %q (must be webhook or redis)", name), exitUsage)
	}
}

// Close releases every resource in reverse open order and logs the
// session counters.
func (e *env) Close() {
	if e.metrics != nil {
		snap := e.metrics.Snapshot()
		e.logger.Debug("session closed", map[string]any{
			"queries_submitted":     snap.QueriesSubmitted,
			"queries_succeeded":     snap.QueriesSucceeded,
			"queries_failed":        snap.QueriesFailed,
			"history_write_failure": snap.HistoryWriteFailure,
			"notify_failure":        snap.NotifyFailure,
		})
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.logger.Warn("close failed", map[string]any{"error": err.Error()})
		}
	}
	_ = e.logger.Sync()
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

// newSessionID returns a time-ordered session identifier.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
