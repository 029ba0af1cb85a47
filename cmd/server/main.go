package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/agent"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/config"
	cronrunner "github.com/AdamAbramowitz0/Codex-TCLinks/internal/cron"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/db"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/handler"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/jobs"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/logger"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/market"
	gormrepository "github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository/gorm"
)

func main() {
	cfgPath := os.Getenv("TCM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TCM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm, cfg.Market)
	marketSvc := &market.Service{
		Repo:                store,
		Logger:              log,
		CurationMinAgeHours: cfg.Market.CurationMinAgeHours,
	}
	runner, err := agent.NewRunner(store, marketSvc, log, cfg.Agents.ConfigPath)
	if err != nil {
		log.Fatal("model agent config invalid", zap.Error(err))
	}
	jobSvc := &jobs.Service{
		Repo:   store,
		Market: marketSvc,
		Runner: runner,
		Logger: log,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	marketHandler := &handler.MarketHandler{Repo: store, Market: marketSvc, Logger: log}
	marketHandler.Register(engine)
	jobHandler := &handler.JobHandler{Jobs: jobSvc, Logger: log}
	jobHandler.Register(engine)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cronRunner *cronrunner.Runner
	if cfg.Cron.Enabled {
		cronRunner = cronrunner.New(log, rootCtx)
		mustAdd := func(spec string, name string, job func(context.Context)) {
			if _, err := cronRunner.Add(spec, job); err != nil {
				log.Fatal("cron schedule invalid", zap.String("job", name), zap.String("spec", spec), zap.Error(err))
			}
		}
		mustAdd(cfg.Cron.DailyFaucet, jobs.JobDailyFaucet, func(ctx context.Context) {
			if _, err := jobSvc.RunDailyFaucet(ctx, "", false); err != nil {
				log.Warn("daily faucet failed", zap.Error(err))
			}
		})
		mustAdd(cfg.Cron.ModelRun, jobs.JobModelRun, func(ctx context.Context) {
			if _, err := jobSvc.RunModels(ctx, "", false); err != nil {
				log.Warn("model run failed", zap.Error(err))
			}
		})
		mustAdd(cfg.Cron.IngestSync, jobs.JobSyncLinks, func(ctx context.Context) {
			if _, err := jobSvc.SyncLinks(ctx, false); err != nil {
				log.Warn("link sync failed", zap.Error(err))
			}
		})
		mustAdd(cfg.Cron.CurationRewards, jobs.JobCurationRewards, func(ctx context.Context) {
			if _, err := jobSvc.RunCurationRewards(ctx, "", false); err != nil {
				log.Warn("curation rewards failed", zap.Error(err))
			}
		})
		cronRunner.Start()
	}

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	if cronRunner != nil {
		cronRunner.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
}
