package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	api "zigfeed/internal/api/http"
	"zigfeed/internal/api/http/handlers"
	"zigfeed/internal/api/http/mw"
	"zigfeed/internal/api/rest"
	"zigfeed/internal/config"
	"zigfeed/internal/domain"
	"zigfeed/internal/feed"
	"zigfeed/internal/kv"
	kvredis "zigfeed/internal/kv/redis"
	"zigfeed/internal/mapper"
	"zigfeed/internal/pubsub"
	"zigfeed/internal/pubsub/nats"
	"zigfeed/internal/stores/clickhouse"
	"zigfeed/internal/stores/redis"
	"zigfeed/internal/stream"
	"zigfeed/internal/tokenmeta"
)

type Container struct {
	app *App

	// infra
	redis *redis.Client
	ch    *clickhouse.Conn
	nc    *nats.Client

	// servers
	httpSrv *api.Server
}

func (c *Container) Start(ctx context.Context) error {
	return c.app.Start(ctx)
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

// Construct image app
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	// KV store for token metadata, redis when configured else in-memory
	var (
		rdb     *redis.Client
		kvStore kv.Store
		err     error
	)
	if cfg.Stores.Redis.Addr != "" {
		rdb, err = redis.New(ctx, &cfg.Stores.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}

		kvStore, err = kvredis.NewStore(lg, rdb, cfg.Stores.Redis.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis kv store: %w", err)
		}
		lg.Infof("Successfully initialize redis kv store, addr=%s", cfg.Stores.Redis.Addr)
	} else {
		kvStore = kv.NewMemoryStore()
		lg.Warn("Redis is not configured, token metadata persists in memory only")
	}

	// Upstream REST client
	restCl, err := rest.New(lg, &cfg.Upstream)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize rest client: %w", err)
	}
	lg.Infof("Successfully initialize rest client, base_url=%s", cfg.Upstream.APIBaseURL)

	// Token metadata cache and amount normalization
	metaCache := tokenmeta.NewCache(lg, restCl, kvStore, cfg.TokenMeta.TTL)
	normalizer := tokenmeta.NewNormalizer(metaCache)
	tradeMapper := mapper.New(lg, normalizer)

	// Stream connection manager
	if cfg.Upstream.WSURL == "" {
		return nil, nil, fmt.Errorf("upstream ws_url is required")
	}
	streamMgr := stream.NewManager(lg, cfg.Upstream.WSURL, &stream.Config{
		ReconnectMin: cfg.Stream.ReconnectMin,
		ReconnectMax: cfg.Stream.ReconnectMax,
		MaxAttempts:  cfg.Stream.MaxAttempts,
	})
	lg.Infof("Successfully initialize stream manager, url=%s", cfg.Upstream.WSURL)

	// NATS Broadcaster
	var (
		natsCl      *nats.Client
		broadcaster pubsub.Broadcaster
	)
	if cfg.PubSub.NATS.URL != "" {
		natsCl, err = nats.New(lg, &cfg.PubSub.NATS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		broadcaster = natsCl
		lg.Infof("Successfully initialize nats client, url=%s", cfg.PubSub.NATS.URL)
	}

	// ClickHouse archive
	var (
		ch       *clickhouse.Conn
		chWriter *clickhouse.Writer
		archiver feed.Archiver
	)
	if cfg.Stores.ClickHouse.DSN != "" {
		ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		url := strings.Split(cfg.Stores.ClickHouse.DSN, "?")
		lg.Infof("Successfully initialize clickhouse client, url=%s", url[0])

		chWriter = clickhouse.NewWriter(lg, ch.Native, cfg.Stores.ClickHouse)
		archiver = &chArchiver{log: lg, writer: chWriter, conn: ch}
		lg.Info("Successfully initialize clickhouse writer")
	}

	// Feed service
	feedSvc, err := feed.NewService(feed.ServiceDeps{
		Log:         lg,
		Mapper:      tradeMapper,
		Source:      restCl,
		Streams:     streamMgr,
		Broadcaster: broadcaster,
		Archiver:    archiver,
		Token:       cfg.Feed.Token,
		PoolID:      cfg.Feed.PoolID,
		Lookback:    cfg.Feed.Lookback,
		MaxTrades:   cfg.Feed.MaxTrades,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize feed service: %w", err)
	}

	// HTTP Server
	h := handlers.NewHandler(lg, feedSvc)
	logMW := mw.NewLogging(lg)
	var corsMW *mw.CORSMiddleware
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORSConfig(&cfg.API.HTTP.CORS)
	}

	httpSrv, err := api.NewServer(lg, &cfg.API.HTTP, api.BuildRouter(h, logMW, corsMW))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize http server: %w", err)
	}
	lg.Info("Successfully initialize HTTP server")

	c := &Container{
		app:     NewApp(lg, feedSvc, httpSrv),
		redis:   rdb,
		ch:      ch,
		nc:      natsCl,
		httpSrv: httpSrv,
	}

	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err = httpSrv.Shutdown(ctxClean); err != nil {
			lg.Errorf("Failed to shutdown by cleanupF HTTP server: %v", err)
		}

		if chWriter != nil {
			if err = chWriter.Close(ctxClean); err != nil {
				lg.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
			}
		}
		if ch != nil {
			if err = ch.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
			}
		}

		if natsCl != nil {
			if err = natsCl.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF nats client: %v", err)
			}
		}

		if rdb != nil {
			if err = rdb.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF redis client: %v", err)
			}
		}

		lg.Info("Successfully cleaned up dependency")
	}

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF, nil
}

// chArchiver feeds merged trades into the batch writer and exposes the
// native connection ping for readiness.
type chArchiver struct {
	log    logger.Logger
	writer *clickhouse.Writer
	conn   *clickhouse.Conn
}

func (a *chArchiver) Archive(t domain.Trade) {
	if err := a.writer.Enqueue(clickhouse.RowFromTrade(t)); err != nil {
		a.log.Errorf("Failed to enqueue trade %s to archive: %v", t.IdentityKey(), err)
	}
}

func (a *chArchiver) Health(ctx context.Context) error {
	return a.conn.Health(ctx)
}
