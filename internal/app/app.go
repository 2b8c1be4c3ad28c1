package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-pipeline/internal/broker"
	"github.com/gokatarajesh/trivia-pipeline/internal/config"
	"github.com/gokatarajesh/trivia-pipeline/internal/db/queries"
	"github.com/gokatarajesh/trivia-pipeline/internal/db/repository"
	"github.com/gokatarajesh/trivia-pipeline/internal/etl"
	"github.com/gokatarajesh/trivia-pipeline/internal/feed"
	"github.com/gokatarajesh/trivia-pipeline/internal/importer"
	"github.com/gokatarajesh/trivia-pipeline/internal/importer/external"
	"github.com/gokatarajesh/trivia-pipeline/internal/logging"
	"github.com/gokatarajesh/trivia-pipeline/internal/metrics"
	"github.com/gokatarajesh/trivia-pipeline/internal/question"
	"github.com/gokatarajesh/trivia-pipeline/internal/server"
	ws "github.com/gokatarajesh/trivia-pipeline/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, broker, HTTP server)
// and the role-specific workers built on top of it.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool      *pgxpool.Pool
	redis     *redis.Client
	session   *broker.Session
	publisher *broker.Publisher
	http      *http.Server
	hub       *ws.Hub

	// Service is the submission/retrieval entry point; nil in the etl role.
	Service *question.Service

	workers   []worker
	bgCancels []context.CancelFunc
	bgWG      sync.WaitGroup
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// New bootstraps logger, Postgres, Redis, the broker session and the components for cfg.Role.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.Role, cfg.LogLevel)
	logger.Info().Str("role", cfg.Role).Msg("starting application bootstrap")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	pool, err := pgxpool.New(ctx, cfg.Postgres.PoolDSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	session := broker.NewSession(broker.SessionOptions{
		URL: cfg.Broker.URL,
		Topology: broker.Topology{
			Queue:              cfg.Broker.Queue,
			DeadLetterExchange: cfg.Broker.DeadLetterExchange,
		},
		MinBackoff: cfg.Broker.ReconnectMin,
		MaxBackoff: cfg.Broker.ReconnectMax,
		OnStateChange: func(s broker.State) {
			m.BrokerState(int(s))
		},
	}, logger)

	questionRepo := repository.NewQuestionRepository(queries.New(pool), cfg.Runtime.StoreTimeout, m)
	categoryCache := question.NewCache(redisClient, cfg.Runtime.CategoryCacheTTL)

	a := &Application{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		redis:   redisClient,
		session: session,
		workers: []worker{{name: "broker session", run: session.Run}},
	}

	var feedHandler http.HandlerFunc
	var routes server.Routes
	if cfg.RunsAPI() {
		a.publisher = broker.NewPublisher(session, cfg.Broker.Queue, cfg.Broker.PublishTimeout, logger)
		shuffler := question.NewShuffler(nil)
		a.Service = question.NewService(question.ServiceOptions{
			Publisher:  question.NewQueuePublisher(a.publisher),
			Categories: questionRepo,
			Cache:      categoryCache,
			Sampler:    question.NewSampler(questionRepo, shuffler, cfg.Runtime.MaxQuestionCount),
			Metrics:    m,
		}, logger)

		handlers := question.NewHTTPHandlers(a.Service, logger)
		routes = server.Routes{
			Categories: handlers.Categories,
			Questions:  handlers.Questions,
			Submit:     handlers.Submit,
		}

		if cfg.Feed.Enabled {
			a.hub = ws.NewHub(logger)
			feedHandler = feed.NewHandler(a.hub, m, logger).HandleWebSocket
			broadcaster := feed.NewBroadcaster(redisClient, a.hub, cfg.Feed.Channel, m, logger)
			a.workers = append(a.workers, worker{name: "feed broadcaster", run: broadcaster.Run})
		}

		if cfg.Import.Interval > 0 {
			im := NewImporter(cfg, a.Service, shuffler, logger)
			req := importer.Request{Source: cfg.Import.Source, Amount: cfg.Import.Amount, Category: cfg.Import.Category}
			w := importer.NewWorker(im, req, cfg.Import.Interval, 0, logger)
			a.workers = append(a.workers, worker{name: "import worker", run: w.Run})
		}
	}
	routes.Feed = feedHandler

	if cfg.RunsETL() {
		notifiers := []etl.Notifier{categoryCache}
		if cfg.Feed.Enabled {
			notifiers = append(notifiers, feed.NewNotifier(redisClient, cfg.Feed.Channel))
		}
		processor := etl.NewProcessor(etl.ProcessorOptions{
			Store:           questionRepo,
			Attempts:        etl.NewRedisAttempts(redisClient, cfg.ETL.AttemptTTL),
			Notifiers:       notifiers,
			MaxAttempts:     cfg.ETL.MaxAttempts,
			RequeueDelay:    cfg.ETL.RequeueDelay,
			MaxRequeueDelay: cfg.ETL.RequeueDelayMax,
			Metrics:         m,
		}, logger)
		consumer := broker.NewConsumer(session, broker.ConsumerOptions{
			Queue:      cfg.Broker.Queue,
			Tag:        cfg.ETL.ConsumerTag,
			Prefetch:   cfg.Broker.Prefetch,
			Workers:    cfg.ETL.Workers,
			RetryDelay: cfg.ETL.RetryDelay,
		}, processor.Handle, logger)
		a.workers = append(a.workers, worker{name: "etl consumer", run: consumer.Run})
	}

	checks := []server.DependencyCheck{
		{Name: "postgres", Ping: pool.Ping},
		{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{Name: "broker", Ping: session.Ping},
	}
	a.http = server.NewHTTPServer(cfg, logger, registry, checks, routes)

	return a, nil
}

// NewImporter builds an importer over both upstream trivia APIs.
func NewImporter(cfg *config.App, submitter importer.Submitter, shuffler *question.Shuffler, logger zerolog.Logger) *importer.Importer {
	client := &http.Client{Timeout: cfg.Import.HTTPTimeout}
	return importer.New(submitter, shuffler, logger,
		external.NewOpenTDBClient(cfg.Import.OpenTDBURL, client),
		external.NewTriviaAPIClient(cfg.Import.TriviaAPIURL, cfg.Import.TriviaAPIKey, client),
	)
}

// Start launches the background workers without the HTTP server. Used by one-shot tools.
func (a *Application) Start(ctx context.Context) {
	for _, w := range a.workers {
		a.startWorker(ctx, w)
	}
}

// WaitBrokerReady blocks until the broker session is connected.
func (a *Application) WaitBrokerReady(ctx context.Context) error {
	return a.session.WaitReady(ctx)
}

// Run starts the HTTP server and workers and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.Start(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	a.Shutdown()
	return runErr
}

// Shutdown stops intake first, then the workers, then releases connections.
func (a *Application) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		a.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn().Msg("workers did not stop before shutdown timeout")
	}

	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.hub != nil {
		a.hub.CloseAll()
	}
	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
}

func (a *Application) startWorker(ctx context.Context, w worker) {
	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancel)
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		if err := w.run(bgCtx); err != nil && err != context.Canceled {
			a.logger.Warn().Err(err).Str("worker", w.name).Msg("background worker stopped")
		}
	}()
}
