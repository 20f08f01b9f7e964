package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/caseflow"
	audithook "github.com/xraph/caseflow/audit_hook"
	"github.com/xraph/caseflow/auction"
	"github.com/xraph/caseflow/auction/local"
	"github.com/xraph/caseflow/cache"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/graph"
	"github.com/xraph/caseflow/orchestrator"
	relayhook "github.com/xraph/caseflow/relay_hook"
	"github.com/xraph/caseflow/stage"
	"github.com/xraph/caseflow/store"
	"github.com/xraph/caseflow/store/file"
	"github.com/xraph/caseflow/store/memory"
	"github.com/xraph/caseflow/store/mongo"
	"github.com/xraph/caseflow/store/postgres"
	redisstore "github.com/xraph/caseflow/store/redis"
	"github.com/xraph/caseflow/store/sqlite"
	"github.com/xraph/caseflow/stream"
)

// env is everything a command needs to drive cases.
type env struct {
	logger  *slog.Logger
	cfg     caseflow.Config
	store   store.Store
	orch    *orchestrator.Orchestrator
	results cache.Cache
	events  *stream.Broker
	closers []func() error
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// setup opens the store and assembles the orchestrator.
func (a *app) setup(ctx context.Context) (*env, error) {
	cfg, err := a.engineConfig()
	if err != nil {
		return nil, err
	}
	e := &env{logger: a.logger(), cfg: cfg}
	e.events = stream.NewBroker(e.logger)

	reg, g, err := a.pipeline(cfg)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(ctx, e); err != nil {
		_ = e.Close()
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(e.logger),
		orchestrator.WithConfig(cfg),
		orchestrator.WithResultCache(e.results, a.v.GetDuration("result-ttl")),
		orchestrator.WithExtension(e.events),
	}
	for stageName, raw := range a.v.GetStringMapString("rate-limit") {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil || rps <= 0 {
			_ = e.Close()
			return nil, configError(fmt.Errorf("rate limit for %s: invalid rate %q", stageName, raw))
		}
		opts = append(opts, orchestrator.WithStageRateLimit(stageName, rps, 1))
	}
	if a.v.GetBool("audit") {
		opts = append(opts, orchestrator.WithExtension(audithook.New(audithook.SlogRecorder(e.logger))))
	}
	relay, err := a.relayHook(e)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	if relay != nil {
		opts = append(opts, orchestrator.WithExtension(relay))
	}

	e.orch, err = orchestrator.New(reg, g, e.store, opts...)
	if err != nil {
		_ = e.Close()
		return nil, configError(err)
	}
	return e, nil
}

// relayHook builds the lifecycle event publisher named by --relay-redis,
// or returns nil when publishing is off.
func (a *app) relayHook(e *env) (*relayhook.Extension, error) {
	url := a.v.GetString("relay-redis")
	if url == "" {
		return nil, nil
	}
	ropts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, configError(fmt.Errorf("relay redis url: %w", err))
	}
	events, err := relayhook.ParseEvents(a.v.GetStringSlice("relay-events"))
	if err != nil {
		return nil, configError(err)
	}

	client := goredis.NewClient(ropts)
	e.closers = append(e.closers, client.Close)

	var hopts []relayhook.Option
	if len(events) > 0 {
		hopts = append(hopts, relayhook.WithEvents(events...))
	}
	return relayhook.New(relayhook.NewRedisSender(client, a.v.GetString("relay-channel")), hopts...), nil
}

// pipeline registers the auction stages and builds the graph over them.
func (a *app) pipeline(cfg caseflow.Config) (*stage.Registry, *graph.Graph, error) {
	reg := stage.NewRegistry()
	agents := local.New(afero.NewOsFs(), local.Config{
		CaseDir:   a.v.GetString("case-dir"),
		ReportDir: a.v.GetString("report-dir"),
	})
	if err := auction.Register(reg, agents.Bundle()); err != nil {
		return nil, nil, configError(err)
	}
	g, err := a.buildGraph(reg, cfg)
	if err != nil {
		return nil, nil, configError(err)
	}
	return reg, g, nil
}

// buildGraph returns the default pipeline, adjusted by the --graph file.
// A file with edges replaces the topology; otherwise only stage settings
// are applied.
func (a *app) buildGraph(reg *stage.Registry, cfg caseflow.Config) (*graph.Graph, error) {
	path := a.v.GetString("graph")
	if path == "" {
		return auction.Graph(reg, cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph %s: %w", path, err)
	}
	defer f.Close()

	gf, err := graph.LoadYAML(f)
	if err != nil {
		return nil, err
	}
	if err := gf.Apply(reg, cfg); err != nil {
		return nil, err
	}
	if len(gf.Edges) > 0 {
		return gf.Builder().Build(reg)
	}
	return auction.Graph(reg, cfg)
}

func (a *app) openStore(ctx context.Context, e *env) error {
	codec := checkpoint.GetCodec(a.v.GetString("codec"))
	dsn := a.v.GetString("dsn")
	dsnOr := func(def string) string {
		if dsn == "" {
			return def
		}
		return dsn
	}

	switch kind := a.v.GetString("store"); kind {
	case "memory":
		e.store = memory.New()

	case "file":
		e.store = file.New(afero.NewOsFs(), dsnOr("checkpoints"), file.WithLogger(e.logger))

	case "sqlite":
		s, err := sqlite.Open(dsnOr("caseflow.db"), sqlite.WithLogger(e.logger), sqlite.WithCodec(codec))
		if err != nil {
			return transportError(err)
		}
		e.store = s

	case "postgres":
		if dsn == "" {
			return configError(errors.New("postgres store requires --dsn"))
		}
		s, err := postgres.New(ctx, dsn, postgres.WithLogger(e.logger), postgres.WithCodec(codec))
		if err != nil {
			return transportError(err)
		}
		e.store = s

	case "redis":
		opts, err := goredis.ParseURL(dsnOr("redis://localhost:6379/0"))
		if err != nil {
			return configError(fmt.Errorf("redis dsn: %w", err))
		}
		client := goredis.NewClient(opts)
		e.closers = append(e.closers, client.Close)
		e.store = redisstore.New(client, redisstore.WithLogger(e.logger), redisstore.WithCodec(codec))
		e.results = cache.NewRedis(client, cache.DefaultRedisPrefix, codec)

	case "mongo":
		client, err := mongod.Connect(options.Client().ApplyURI(dsnOr("mongodb://localhost:27017")))
		if err != nil {
			return transportError(fmt.Errorf("mongo connect: %w", err))
		}
		e.closers = append(e.closers, func() error {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(dctx)
		})
		e.store = mongo.New(client.Database(a.v.GetString("mongo-db")),
			mongo.WithLogger(e.logger), mongo.WithCodec(codec))

	default:
		return configError(fmt.Errorf("unknown store %q", kind))
	}
	e.closers = append(e.closers, e.store.Close)

	if err := e.store.Ping(ctx); err != nil {
		return transportError(fmt.Errorf("store ping: %w", err))
	}
	if err := e.store.Migrate(ctx); err != nil {
		return transportError(fmt.Errorf("store migrate: %w", err))
	}
	if e.results == nil {
		e.results = cache.NewMemory()
	}
	return nil
}
