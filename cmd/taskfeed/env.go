package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nhle/taskfeed/internal/credential"
	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// env is everything a subcommand needs: configuration, logging and the
// document store, optionally joined to the Redis change bus.
type env struct {
	cfg     *model.AppConfig
	log     *logrus.Logger
	store   *store.SQLiteStore
	redis   *redis.Client
	logFile *os.File
}

func openEnv(opts *rootOptions) (*env, error) {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		e.logFile = f
		out = f
	}
	e.log = newLogger(cfg.Log, opts.debug, out)

	storeOpts := []store.Option{
		store.WithLogger(e.entry("store")),
		store.WithResyncInterval(cfg.Store.ResyncInterval()),
	}
	if cfg.Redis.Enabled {
		redisOpts, err := redisOptions(cfg.Redis, keyringPassword)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.redis = redis.NewClient(redisOpts)
		storeOpts = append(storeOpts, store.WithNotifier(store.NewRedisNotifier(e.redis, cfg.Redis.Channel)))
	}

	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			e.Close()
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(cfg.Store.Path, storeOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = s

	return e, nil
}

func (e *env) entry(component string) *logrus.Entry {
	return e.log.WithField("component", component)
}

// quiet stops log output unless it already goes to a file.
func (e *env) quiet() {
	if e.logFile == nil {
		e.log.SetOutput(io.Discard)
	}
}

func (e *env) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.WithError(err).Warn("closing store")
		}
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

func newLogger(cfg model.LogConfig, debug bool, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

// redisOptions builds the client options of the change bus. Addr is either
// host:port or a redis:// URL. password is consulted only when the config
// asks for the keyring.
func redisOptions(cfg model.RedisConfig, password func() (string, error)) (*redis.Options, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, DB: cfg.DB}
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PasswordFromKeyring {
		pw, err := password()
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, fmt.Errorf("loading redis password: %w", err)
		}
		if pw != "" {
			opts.Password = pw
		}
	}
	return opts, nil
}

func keyringPassword() (string, error) {
	creds, err := credential.Open()
	if err != nil {
		return "", err
	}
	return creds.Get(credential.RedisPasswordKey)
}
