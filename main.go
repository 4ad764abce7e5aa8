package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkhealth/domain/model"
	"linkhealth/domain/repository"
	"linkhealth/infrastructure/awsclient"
	"linkhealth/infrastructure/cache"
	youtubeclient "linkhealth/infrastructure/clients/youtube"
	"linkhealth/infrastructure/configuration"
	"linkhealth/infrastructure/logger"
	"linkhealth/infrastructure/persistence"
	"linkhealth/infrastructure/queue"
	"linkhealth/infrastructure/realtime"
	httpHandler "linkhealth/interfaces/http"
	"linkhealth/server"
	"linkhealth/usecase"
	"linkhealth/usecase/linkcheck"

	"golang.org/x/sync/errgroup"
)

var httpServer *http.Server

// closers run in reverse order on shutdown.
var closers []func()

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	cfg := configuration.C

	store, err := initStore(ctx, cfg)
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Document store initialization failed")
	}
	scanRepository := persistence.NewScanRepository(store)

	workQueue, err := initQueue(ctx, cfg)
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Work queue initialization failed")
	}
	closers = append(closers, func() { _ = workQueue.Close() })
	dispatcher := queue.NewDispatcher(workQueue, cfg.Queue.MaxAttempts, cfg.Queue.BackoffBase)

	videos := initVideoProvider(ctx, cfg)

	engineConfig := linkcheck.Config{
		Timeout:         cfg.Scan.ProbeTimeout,
		MaxRetries:      cfg.Scan.MaxRetries,
		RetryDelay:      cfg.Scan.RetryDelay,
		MaxRedirects:    cfg.Scan.MaxRedirects,
		UserAgent:       cfg.Scan.UserAgent,
		TolerantDomains: cfg.Scan.TolerantDomains,
		RatePerSecond:   cfg.Scan.RatePerSecond,
		Burst:           cfg.Scan.Burst,
	}
	if len(engineConfig.TolerantDomains) == 0 {
		engineConfig.TolerantDomains = linkcheck.DefaultTolerantDomains
	}
	scanner := linkcheck.NewScanner(
		linkcheck.NewClassifier(engineConfig.TolerantDomains),
		linkcheck.NewProber(engineConfig),
		videos,
		engineConfig,
	)

	hub := realtime.NewScanHub()
	scanUsecase := usecase.NewScanUsecase(scanRepository, scanner, videos, dispatcher, usecase.ScanConfig{
		SyncVideoLimit:  cfg.Scan.SyncVideoLimit,
		PlanLimit:       cfg.PlanLimit,
		DefaultMode:     model.ScanMode(cfg.Scan.DefaultMode),
		Concurrency:     cfg.Scan.Concurrency,
		InterVideoPause: cfg.Scan.InterVideoPause,
		MaxAttempts:     cfg.Queue.MaxAttempts,
	}).WithBroadcaster(hub.BroadcastScanEvent)

	router := server.InitiateRouter(
		server.RouterConfig{SecretKey: cfg.App.SecretKey, AllowedOrigins: cfg.App.AllowedOrigins},
		httpHandler.NewScanHandler(scanUsecase),
		httpHandler.NewHealthHandler(),
		hub.Serve,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.GetLogger().WithField("driver", cfg.Queue.Driver).Info("Starting scan job consumer")
		return dispatcher.Run(ctx, scanUsecase.ProcessJob)
	})

	app := cfg.App
	logger.GetLogger().WithFields(map[string]interface{}{"port": app.Port, "tls": app.TLSEnabled}).Info("Starting application")
	httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		var err error
		if app.TLSEnabled && app.TLSCertFile != "" && app.TLSKeyFile != "" {
			logger.GetLogger().WithFields(map[string]interface{}{"cert": app.TLSCertFile, "key": app.TLSKeyFile}).Info("Serving HTTPS")
			err = httpServer.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile)
		} else {
			if app.TLSEnabled {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			}
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.GetLogger().WithField("error", err).Warn("HTTP server shutdown incomplete")
	}

	err = g.Wait()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

func initStore(ctx context.Context, cfg configuration.Config) (repository.IDocumentStore, error) {
	log := logger.GetLogger().WithField("driver", cfg.Store.Driver)
	switch cfg.Store.Driver {
	case "", "memory":
		log.Warn("Using in-memory document store; scan history is lost on restart")
		return persistence.NewMemoryStore(), nil

	case "mongo":
		client, err := persistence.NewMongoDb(cfg.Database.Mongo)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		store := persistence.NewMongoStore(client, cfg.Database.Mongo.Name)
		if err := store.EnsureIndexes(ctx, persistence.ScanIndexes); err != nil {
			log.WithField("error", err).Warn("Could not create mongo indexes")
		}
		log.Info("MongoDB connected successfully")
		return store, nil

	case "postgres":
		db, err := persistence.NewPostgreSQLDB(cfg.Database.Psql)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := persistence.EnsureDocumentSchema(db); err != nil {
			return nil, err
		}
		return persistence.NewPostgresStore(db), nil

	case "mssql":
		db, err := persistence.NewMSSQLDB(cfg.Database.Mssql)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := persistence.EnsureDocumentSchemaMSSQL(db); err != nil {
			return nil, err
		}
		return persistence.NewMSSQLStore(db), nil

	case "mysql":
		db, err := persistence.NewMySQLDb(cfg.Database.MySql)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		store := persistence.NewMySQLStore(db)
		if err := store.EnsureSchema(); err != nil {
			return nil, err
		}
		return store, nil

	case "dynamodb":
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Aws)
		if err != nil {
			return nil, err
		}
		return persistence.NewDynamoStore(awsclient.NewDynamoDB(awsCfg, cfg.Aws), cfg.Store.DynamoTable), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initQueue(ctx context.Context, cfg configuration.Config) (repository.IWorkQueue, error) {
	q := cfg.Queue
	switch q.Driver {
	case "", "memory":
		return queue.NewMemoryQueue(q.Buffer), nil

	case "pubsub":
		client, err := queue.NewPubSub(ctx, q.ProjectID)
		if err != nil {
			return nil, err
		}
		return queue.NewPubSubQueue(ctx, client, q.Topic, q.Subscription)

	case "servicebus":
		client, err := queue.NewServiceBus(q.Namespace)
		if err != nil {
			return nil, err
		}
		return queue.NewServiceBusQueue(client, q.QueueName)

	case "nats":
		return queue.NewNatsQueue(q.NatsURL, q.Stream, q.Subject, q.Durable)

	case "sqs":
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Aws)
		if err != nil {
			return nil, err
		}
		return queue.NewSQSQueue(awsclient.NewSQS(awsCfg, cfg.Aws), q.SqsURL), nil

	default:
		return nil, fmt.Errorf("unknown queue driver %q", q.Driver)
	}
}

// initVideoProvider returns nil when no YouTube credentials are configured;
// scans then need inline links or descriptions.
func initVideoProvider(ctx context.Context, cfg configuration.Config) repository.IVideoProvider {
	yt := configuration.GetYouTubeConfig()
	if !yt.HasCredentials() {
		logger.GetLogger().Warn("YouTube credentials not configured; metadata lookups are disabled")
		return nil
	}
	client, err := youtubeclient.NewYouTubeClient(ctx, &youtubeclient.Config{
		ClientID:     yt.ClientID,
		ClientSecret: yt.ClientSecret,
		RedirectURL:  yt.RedirectURL,
		AccessToken:  yt.AccessToken,
		RefreshToken: yt.RefreshToken,
		APIKey:       yt.APIKey,
	})
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Failed to create YouTube client")
		return nil
	}

	var videoCache repository.IVideoCache
	switch cfg.Cache.Driver {
	case "redis":
		redisClient, err := cache.NewCache(
			ctx,
			fmt.Sprintf("%s:%s", cfg.RedisClient.Host, cfg.RedisClient.Port),
			cfg.RedisClient.Username,
			cfg.RedisClient.Password,
		)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Redis not available - continuing without metadata cache")
			break
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		videoCache = cache.NewRedisVideoCache(redisClient)
	case "postgres":
		db, err := persistence.NewPostgreSQLDB(cfg.Database.Psql)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("PostgreSQL not available - continuing without metadata cache")
			break
		}
		if err := persistence.EnsureVideoCacheSchema(db); err != nil {
			_ = db.Close()
			logger.GetLogger().WithField("error", err).Warn("Could not create video cache table - continuing without metadata cache")
			break
		}
		closers = append(closers, func() { _ = db.Close() })
		videoCache = persistence.NewVideoCacheRepository(db)
	}
	if videoCache == nil {
		return client
	}
	return cache.NewCachedVideoProvider(client, videoCache, cfg.Cache.TTL)
}
