package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contest_judge/internal/api"
	"contest_judge/internal/api/handler"
	"contest_judge/internal/app/broadcast"
	"contest_judge/internal/app/judge"
	"contest_judge/internal/app/leaderboard"
	"contest_judge/internal/app/ratelimit"
	"contest_judge/internal/app/service"
	"contest_judge/internal/app/worker"
	"contest_judge/internal/common/security"
	"contest_judge/internal/domain/repository"
	"contest_judge/internal/platform/config"
	"contest_judge/internal/platform/database"
	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"
	"contest_judge/internal/platform/queue"

	"github.com/sirupsen/logrus"
)

// Headroom on top of the poll window for dispatch and persistence.
const judgeMargin = 30 * time.Second

func main() {
	// 1. Configuration and logging
	config.Load()
	cfg := config.AppConfig
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logrus.Info("Configuration loaded.")

	shutdownTracing, err := observability.InitTracing("contest_judge", cfg.OTelExporter)
	if err != nil {
		logrus.WithError(err).Warn("Tracing disabled")
	}

	// 2. JWT
	security.InitJWT()

	// 3. Database
	if err := database.Connect(); err != nil {
		logging.DBLog.WithError(err).Fatal("Could not connect to database")
	}
	defer database.Close()
	if cfg.DBApplySchema {
		if err := database.ApplySchema(context.Background(), database.DB); err != nil {
			logging.DBLog.WithError(err).Fatal("Could not apply schema")
		}
	}

	// 4. Redis, needed whenever a backend uses it
	needsRedis := cfg.QueueBackend == "redis" || cfg.LeaderboardBackend == "redis" || cfg.BroadcastRelay == "redis"
	if needsRedis {
		if err := queue.ConnectRedis(); err != nil {
			logging.QueueLog.WithError(err).Fatal("Could not connect to Redis")
		}
		defer queue.CloseRedis()
	}

	// 5. Repositories and catalog
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	problemRepo := repository.NewPgProblemRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)
	tx := repository.NewSQLTransactor(database.DB)

	catalog, err := judge.LoadCatalog(cfg.LanguageCatalogPath)
	if err != nil {
		logging.JudgeLog.WithError(err).Fatal("Could not load language catalog")
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	limiter := ratelimit.New(ratelimit.Config{
		GlobalCapacity: cfg.RateLimitGlobalCapacity,
		GlobalInterval: cfg.RateLimitGlobalInterval,
		UserCapacity:   cfg.RateLimitUserCapacity,
		UserInterval:   cfg.RateLimitUserInterval,
	})
	go limiter.RunJanitor(bgCtx, time.Minute)

	var submissionQueue queue.Queue
	if cfg.QueueBackend == "redis" {
		submissionQueue = queue.NewRedisQueue(queue.RDB, cfg.SubmissionQueueKey)
	} else {
		submissionQueue = queue.NewMemoryQueue(4096)
	}

	var boardCache leaderboard.Cache
	if cfg.LeaderboardBackend == "redis" {
		boardCache = leaderboard.NewRedisCache(queue.RDB, "leaderboard")
	} else {
		boardCache = leaderboard.NewMemoryCache()
	}

	// 6. Broadcast hub and leaderboard engine
	hub := broadcast.NewHub()
	if cfg.BroadcastRelay == "redis" {
		hub.UseRelay(broadcast.NewRedisRelay(queue.RDB, ""))
		go func() {
			if err := hub.RunRelay(bgCtx); err != nil && bgCtx.Err() == nil {
				logging.BoardLog.WithError(err).Error("Broadcast relay stopped")
			}
		}()
	}

	engine := leaderboard.NewEngine(leaderboard.Config{
		Submissions: submissionRepo,
		Contests:    contestRepo,
		Tx:          tx,
		Cache:       boardCache,
		Publisher:   hub,
		TopN:        cfg.LeaderboardTopN,
	})

	// 7. Services
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, contestRepo, tx, catalog, limiter, submissionQueue)
	leaderboardService := service.NewLeaderboardService(contestRepo, engine, cfg.LeaderboardTopN)

	// 8. Judging workers and the stale sweeper
	orchestrator := worker.NewOrchestrator(worker.OrchestratorConfig{
		Submissions: submissionRepo,
		Problems:    problemRepo,
		Judge: judge.NewJudge0Client(judge.Judge0Config{
			URL:       cfg.JudgeURL,
			AuthToken: cfg.JudgeAuthToken,
			Timeout:   cfg.JudgeHTTPTimeout,
		}),
		Languages: catalog,
		Poll:      judge.PollPolicy{Interval: cfg.JudgePollInterval, MaxAttempts: cfg.JudgePollAttempts},
		Board:     engine,
	})
	jobWindow := cfg.PollWindow() + judgeMargin
	pool := worker.NewPool(submissionQueue, orchestrator, cfg.WorkerConcurrency, jobWindow)
	pool.Start(bgCtx)
	logging.JudgeLog.Infof("Started %d judging workers", cfg.WorkerConcurrency)

	sweeper := worker.NewSweeper(submissionRepo, jobWindow, cfg.PendingStaleAfter)
	go sweeper.Run(bgCtx, cfg.StaleSweepInterval)

	// 9. Router and HTTP server
	checks := map[string]handler.Check{
		"database": func(ctx context.Context) error { return database.DB.PingContext(ctx) },
	}
	if needsRedis {
		checks["redis"] = func(ctx context.Context) error { return queue.RDB.Ping(ctx).Err() }
	}
	router := api.NewRouter(submissionService, leaderboardService, catalog, hub, handler.NewSystemHandler(checks, observability.Default))

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logging.HTTPLog.Infof("Server starting on port %s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.HTTPLog.WithError(err).Fatalf("Could not listen on %s", cfg.APIPort)
		}
	}()

	<-stop

	logrus.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.HTTPLog.WithError(err).Error("Server shutdown failed")
	}

	// In-flight judgements run on detached contexts and finish or time out.
	bgCancel()
	pool.Wait()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logrus.WithError(err).Warn("Tracing shutdown failed")
	}
	logrus.Info("Server and workers stopped gracefully.")
}
