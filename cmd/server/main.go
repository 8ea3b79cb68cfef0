package main

import (
	"context"
	"log"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/opencdp/profile-engine/api/handler"
	"github.com/opencdp/profile-engine/internal/cache"
	"github.com/opencdp/profile-engine/internal/config"
	"github.com/opencdp/profile-engine/internal/consumer"
	"github.com/opencdp/profile-engine/internal/enrich"
	"github.com/opencdp/profile-engine/internal/infrastructure/monitor"
	pgInfra "github.com/opencdp/profile-engine/internal/infrastructure/postgres"
	redisInfra "github.com/opencdp/profile-engine/internal/infrastructure/redis"
	"github.com/opencdp/profile-engine/internal/router"
	"github.com/opencdp/profile-engine/internal/scheduler"
	"github.com/opencdp/profile-engine/internal/services/lifecycle"
	"github.com/opencdp/profile-engine/pkg/autoid"
	"github.com/opencdp/profile-engine/pkg/httpcontext"
	"github.com/opencdp/profile-engine/pkg/logger"
	"github.com/opencdp/profile-engine/repository/postgres"
	matchUC "github.com/opencdp/profile-engine/usecase/match"
	mergeUC "github.com/opencdp/profile-engine/usecase/merge"
	profileUC "github.com/opencdp/profile-engine/usecase/profile"
	trackUC "github.com/opencdp/profile-engine/usecase/track"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	localTier, err := cache.NewLocalTier(cfg.Cache.LocalMaxEntries, cfg.Cache.LocalTTL)
	if err != nil {
		zapLogger.Fatal("local cache init failed", zap.Error(err))
	}
	manager.Register("local_cache", func(ctx context.Context) error {
		localTier.Close()
		return nil
	})

	redisTier := cache.NewRedisTier(redisClient, cfg.Cache.RedisTTL)
	profileCache := cache.New(localTier, redisTier, zapLogger)

	var natsConn *natsgo.Conn
	if cfg.NATS.Enabled {
		natsConn, err = natsgo.Connect(cfg.NATS.URL,
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(cfg.NATS.MaxReconnects),
			natsgo.ReconnectWait(cfg.NATS.ReconnectWait),
		)
		if err != nil {
			zapLogger.Fatal("nats connection failed", zap.Error(err))
		}
		manager.Register("nats", func(ctx context.Context) error {
			natsConn.Close()
			return nil
		})
	}

	mon := monitor.New(pool, redisClient, natsConn, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	profileRepo := postgres.NewProfileRepository(pool)
	mappingRepo := postgres.NewMappingRepository(pool)
	masterRepo := postgres.NewMasterProfileRepository(pool)

	idgen := autoid.New()
	pipeline := enrich.New(zapLogger)
	matcher := matchUC.New(profileRepo, zapLogger)
	tracker := trackUC.New(profileRepo, mappingRepo, masterRepo, matcher, profileCache, idgen, zapLogger)
	reader := profileUC.New(profileRepo, mappingRepo, profileCache, zapLogger)
	detector := mergeUC.NewDetector(profileRepo, zapLogger)
	merger := mergeUC.New(profileRepo, masterRepo, detector, profileCache, idgen, zapLogger)

	if cfg.NATS.Enabled {
		publisher, err := consumer.NewPublisher(cfg.NATS, zapLogger)
		if err != nil {
			zapLogger.Fatal("enriched publisher init failed", zap.Error(err))
		}
		manager.Register("enriched_publisher", func(ctx context.Context) error {
			return publisher.Close()
		})

		subscriber, err := consumer.NewSubscriber(cfg.NATS, zapLogger)
		if err != nil {
			zapLogger.Fatal("raw subscriber init failed", zap.Error(err))
		}
		manager.Register("raw_subscriber", func(ctx context.Context) error {
			return subscriber.Close()
		})

		cons := consumer.New(subscriber, publisher, pipeline, tracker, cfg.NATS.RawTopic, zapLogger)
		go func() {
			if err := cons.Run(appCtx); err != nil && appCtx.Err() == nil {
				zapLogger.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(merger, cfg.Scheduler, zapLogger)
		if err != nil {
			zapLogger.Fatal("scheduler init failed", zap.Error(err))
		}
		sched.Start()
		manager.Register("scheduler", func(ctx context.Context) error {
			sched.Stop(ctx)
			return nil
		})
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Track:   apiHandler.NewTrackHandler(tracker, pipeline, ctxAdapter, zapLogger),
		Profile: apiHandler.NewProfileHandler(reader, ctxAdapter, zapLogger),
		Merge:   apiHandler.NewMergeHandler(merger, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	r := router.New(handlers, cfg.HTTP.EnableMetrics)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
