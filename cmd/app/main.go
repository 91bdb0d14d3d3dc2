package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voltfarm/internal/bot"
	"voltfarm/internal/config"
	"voltfarm/internal/db"
	"voltfarm/internal/domain"
	httpServer "voltfarm/internal/http"
	"voltfarm/internal/http/handlers"
	"voltfarm/internal/http/middleware"
	"voltfarm/internal/logger"
	"voltfarm/internal/migrations"
	"voltfarm/internal/repository"
	"voltfarm/internal/service"
	"voltfarm/internal/worker"
	"voltfarm/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	var pool *pgxpool.Pool
	var deps service.Deps
	if cfg.DatabaseURL != "" {
		pool = db.Connect(cfg.DatabaseURL)
		defer pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := migrations.Apply(ctx, pool, func(name string) {
			logger.Info("migration applied", "name", name)
		})
		cancel()
		if err != nil {
			logger.Fatal("migrations failed", "error", err)
		}

		deps = service.Deps{
			States:       repository.NewMinerRepository(pool),
			Tasks:        repository.NewTaskRepository(pool),
			Invoices:     repository.NewInvoiceRepository(pool),
			Withdrawals:  repository.NewWithdrawalRepository(pool),
			Transactions: repository.NewTransactionRepository(pool),
		}
	} else {
		// DEV MODE: всё в памяти, после рестарта пусто
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		withdrawals := repository.NewMemoryWithdrawals()
		deps = service.Deps{
			States: repository.NewMemoryMiners(withdrawals),
			Tasks: repository.NewMemoryTasks(
				domain.Task{ID: "join-channel", Title: "Join the channel", Reward: 10, Kind: domain.TaskKindGeneric, Active: true},
				domain.Task{ID: "share-to-group", Title: "Share to a group", Reward: 5, Kind: domain.TaskKindGroupShare, Active: true, SortOrder: 1},
			),
			Invoices:     repository.NewMemoryInvoices(),
			Withdrawals:  withdrawals,
			Transactions: repository.NewMemoryTransactions(),
		}
	}

	hub := ws.NewHub()
	notifiers := service.MultiNotifier{hub}

	var tg *bot.Client
	if cfg.BotEnabled {
		var err error
		tg, err = bot.NewClient(cfg.BotToken)
		if err != nil {
			logger.Fatal("bot init failed", "error", err)
		}
		deps.Provider = tg
		notifiers = append(notifiers, tg)
	}
	deps.Notifier = notifiers

	svc := service.NewMiningService(deps, service.Options{
		Mining:             cfg.MiningParams(),
		Withdraw:           cfg.WithdrawRules(),
		CheckIn:            cfg.CheckInRules(),
		CoolingMultiplier:  cfg.CoolingMultiplier,
		ReferralBonus:      cfg.ReferralBonus,
		Offers:             cfg.Offers(),
		AutoCollect:        cfg.AutoCollect,
		TrustClientBalance: cfg.TrustClientBalance,
		StoreTimeout:       cfg.StoreTimeout,
		InvoiceTTL:         cfg.InvoiceTTL,
		BotUsername:        cfg.BotUsername,
		WebAppShortName:    cfg.WebAppShortName,
	})

	sched, err := worker.Start(svc, time.Minute)
	if err != nil {
		logger.Fatal("scheduler init failed", "error", err)
	}

	var tgBot *bot.Bot
	if tg != nil {
		tgBot = bot.New(tg, svc, cfg.AdminTelegramIDs, bot.App{Username: cfg.BotUsername, ShortName: cfg.WebAppShortName})
		go tgBot.Start()
	}

	redisClient := middleware.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	h := handlers.NewHandler(svc, service.NewTokenIssuer(cfg.JWTSecret, 24*time.Hour), cfg.BotToken)
	h.DevMode = cfg.DevMode
	h.WebhookSecret = cfg.PaymentWebhookSecret

	var checks []handlers.Check
	if pool != nil {
		checks = append(checks, handlers.Check{Name: "database", Ping: pool.Ping})
	}
	if redisClient != nil {
		// лимитер работает и без redis
		checks = append(checks, handlers.Check{Name: "redis", Optional: true, Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, httpServer.Server{
		Config:  cfg,
		Handler: h,
		Health:  handlers.NewHealthHandler(version, checks...),
		Limiter: middleware.NewLimiter(redisClient),
		Hub:     hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if tgBot != nil {
		tgBot.Stop()
	}
	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler stop failed", "error", err)
	}
	hub.CloseAll()
	svc.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server exited")
}
