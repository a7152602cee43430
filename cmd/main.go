package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"cardmarket/internal/config"
	"cardmarket/internal/core/enrich"
	"cardmarket/internal/core/image"
	"cardmarket/internal/core/listing"
	"cardmarket/internal/core/live"
	"cardmarket/internal/core/price"
	"cardmarket/internal/health"
	"cardmarket/internal/logger"
	"cardmarket/internal/platform/browser"
	"cardmarket/internal/platform/carddb"
	rds "cardmarket/internal/platform/redis"
	tasks "cardmarket/internal/platform/tasks"
	"cardmarket/internal/server"
	"cardmarket/internal/utils/detached"
	"cardmarket/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[cardmarket] starting at %s (env=%s, queue=%s, live=%s)\n", cfg.HTTPAddr, cfg.AppEnv, cfg.QueueBackend, cfg.LiveBackend)

	logr := logger.New("main")
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	selectors, err := config.LoadSelectors(cfg.SelectorsFile)
	if err != nil {
		log.Fatal(err)
	}

	healthHandler := health.NewHealthHandler()

	// Listing store
	var store listing.Store
	if cfg.DatabaseURL != "" {
		pool, err := listing.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		pg := listing.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		store = pg
		logr.LogInfo("using postgres listing store")
	} else {
		store = listing.NewMemoryStore()
		logr.LogWarn("DATABASE_URL not set, listings are kept in memory")
	}
	healthHandler.AddCheck("store", store.Ping)

	// Redis is optional unless a redis backend is selected; when present it also caches lookups.
	var redisSvc *rds.Service
	if cfg.RedisAddr != "" {
		redisSvc, err = rds.New(rds.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			if cfg.NeedsRedis() {
				log.Fatal(err)
			}
			logr.LogWarnf("redis unavailable, continuing without cache: %v", err)
			redisSvc = nil
		} else {
			defer redisSvc.Close()
			healthHandler.AddCheck("redis", redisSvc.HealthCheck)
		}
	}

	// Shared headless browser
	browsers := browser.NewManager(browser.NewPlaywrightLauncher(cfg.ChromiumPath, cfg.LaunchTimeout), cfg.BrowserIdleTimeout)
	defer browsers.Close()
	healthHandler.AddInfo("browser", func() map[string]any {
		open, borrowed, launches := browsers.Status()
		return map[string]any{"open": open, "borrowed": borrowed, "launches": launches}
	})

	// Lookups
	cardDB := carddb.New(cfg.CardDBBaseURL, cfg.HTTPTimeout, cfg.ScrapeRPS)
	priceSources := []price.Source{price.NewTCGPlayer(browsers, price.TCGPlayerOptions{
		BaseURL:           cfg.PriceBaseURL,
		ProductLine:       cfg.PriceProductLine,
		NavigationTimeout: cfg.NavigationTimeout,
		SelectorTimeout:   cfg.SelectorTimeout,
		Selectors:         selectors.Price,
		RPS:               cfg.ScrapeRPS,
	})}
	if cfg.PriceFallbackEnabled {
		priceSources = append(priceSources, price.NewCardDB(cardDB))
	}
	priceSvc := price.NewService(priceSources, price.Options{MaxRetries: cfg.PriceMaxRetries, Backoff: cfg.PriceRetryBackoff})
	imageSvc := image.NewService(
		image.NewWiki(image.WikiOptions{
			BaseURL:     cfg.WikiBaseURL,
			TargetWidth: cfg.ImageTargetWidth,
			Timeout:     cfg.HTTPTimeout,
			Selectors:   selectors.Wiki,
			RPS:         cfg.ScrapeRPS,
		}),
		image.NewCardDB(cardDB),
	)
	if redisSvc != nil {
		priceSvc.WithCache(redisSvc)
		imageSvc.WithCache(redisSvc)
	}

	// Live updates
	hub := live.NewHub(16)
	defer hub.Close()
	var publisher enrich.Publisher = hub
	if cfg.LiveBackend == config.BackendRedis {
		relay := live.NewRedisRelay(hub, redisSvc, live.DefaultChannel)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logr.LogErrorf("live relay stopped: %v", err)
			}
		}()
	}

	enrichSvc := enrich.NewService(store, priceSvc, imageSvc, publisher)

	// Job queue
	var (
		queue       enrich.Queue
		asynqServer *asynq.Server
	)
	switch cfg.QueueBackend {
	case config.BackendRedis:
		taskClient := tasks.New(redisSvc)
		defer taskClient.Close()
		queue = enrich.NewTaskQueue(taskClient, cfg.JobTimeout)

		asynqServer = asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
			Concurrency: cfg.QueueConcurrency,
			Queues:      map[string]int{tasks.QueueDefault: 1},
		})
		mux := worker.NewMux()
		mux.HandleFunc(tasks.TaskTypeEnrich, enrich.HandleTask(enrichSvc))
		go func() {
			if err := asynqServer.Start(mux.Mux()); err != nil {
				log.Printf("[worker] stopped: %v\n", err)
			}
		}()
	default:
		memQueue := enrich.NewMemoryQueue(enrichSvc, enrich.MemoryQueueOptions{
			Concurrency: cfg.QueueConcurrency,
			JobTimeout:  cfg.JobTimeout,
			OnDrain:     browsers.CloseIdle,
		})
		memQueue.Start(ctx)
		defer memQueue.Stop()
		queue = memQueue
		healthHandler.AddInfo("queue", func() map[string]any {
			queued, running := memQueue.Stats()
			return map[string]any{"queued": queued, "running": running}
		})
	}

	runner := detached.New("Detached", 30*time.Second)
	scanner := enrich.NewScanner(queue, runner)

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Card Market",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	server.RegisterRoutes(app, server.Dependencies{
		Listings: listing.NewHandler(store, queue, scanner),
		Events:   live.NewHandler(hub, cfg.SSEKeepAlive),
		Health:   healthHandler,
	})
	healthHandler.SetReady()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		hub.Close()
		if asynqServer != nil {
			asynqServer.Shutdown()
		}
		stop()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
	runner.Wait()
}
