package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	polymarketgamma "github.com/Scotty108/Cascadian-sub021/internal/client/polymarket/gamma"
	"github.com/Scotty108/Cascadian-sub021/internal/config"
	cronrunner "github.com/Scotty108/Cascadian-sub021/internal/cron"
	"github.com/Scotty108/Cascadian-sub021/internal/db"
	"github.com/Scotty108/Cascadian-sub021/internal/engine"
	"github.com/Scotty108/Cascadian-sub021/internal/handler"
	"github.com/Scotty108/Cascadian-sub021/internal/logger"
	"github.com/Scotty108/Cascadian-sub021/internal/metrics"
	"github.com/Scotty108/Cascadian-sub021/internal/models"
	gormrepository "github.com/Scotty108/Cascadian-sub021/internal/repository/gorm"
	"github.com/Scotty108/Cascadian-sub021/internal/service"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "config file path (default $ATTR_CONFIG or config/config.yaml)")
		envOnly    = flag.Bool("env-only", false, "skip the config file and read ATTR_* env vars only")
		once       = flag.Bool("once", false, "run one attribution pass, print the summary, exit")
		syncFirst  = flag.Bool("sync", false, "with -once: refresh resolutions from Gamma before the run")
		windowDays = flag.Int("window", 0, "with -once: trailing window in days (0 = configured default)")
		markets    = flag.String("markets", "", "with -once: comma-separated market ids (overrides window)")
		workers    = flag.Int("workers", 0, "with -once: worker count override")
		minCost    = flag.String("min-cost", "", "with -once: dust threshold override, e.g. 0.01")
	)
	flag.Parse()

	path := strings.TrimSpace(*cfgPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("ATTR_CONFIG"))
	}
	if path == "" {
		path = "config/config.yaml"
	}
	envOnlyMode := *envOnly
	if raw := os.Getenv("ATTR_ENV_ONLY"); raw != "" {
		envOnlyMode = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(path, envOnlyMode)
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
	defer dbConn.Close()

	if err := dbConn.SetTimezone(cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	gammaClient := polymarketgamma.NewClient(cfg.Gamma, log)
	syncSvc := &service.ResolutionSyncService{
		Repo:   store,
		Gamma:  gammaClient,
		Config: cfg.ResolutionSync,
		Logger: log,
	}
	var agg *metrics.Aggregator
	if cfg.Metrics.Enabled {
		agg = &metrics.Aggregator{Repo: store, Logger: log, Config: cfg.Metrics}
	}
	runSvc := &service.AttributionService{
		Repo:    store,
		Engine:  &engine.Engine{Repo: store, Logger: log, Config: cfg.Engine},
		Metrics: agg,
		Logger:  log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		code := runBatch(ctx, log, syncSvc, runSvc, batchOptions{
			sync:       *syncFirst,
			windowDays: *windowDays,
			markets:    *markets,
			workers:    *workers,
			minCost:    strings.TrimSpace(*minCost),
		})
		stop()
		log.Sync()
		os.Exit(code)
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(handler.RequestID())
	router.Use(handler.AccessLog(log))
	router.Use(handler.RequireToken(cfg.Server.AuthToken))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	runsHandler := &handler.RunsHandler{Runs: runSvc, Repo: store, Logger: log}
	runsHandler.Register(router)
	walletsHandler := &handler.WalletsHandler{Repo: store}
	walletsHandler.Register(router)

	if cfg.Cron.Enabled {
		runner := cronrunner.New(log, ctx)
		if cfg.ResolutionSync.Enabled && cfg.Cron.ResolutionSync != "" {
			if _, err := runner.Add("resolution_sync", cfg.Cron.ResolutionSync, func(ctx context.Context) error {
				_, err := syncSvc.RunOnce(ctx)
				return err
			}); err != nil {
				log.Warn("cron register resolution sync failed", zap.Error(err))
			}
		}
		if cfg.Engine.Enabled && cfg.Cron.Attribution != "" {
			if _, err := runner.Add("attribution", cfg.Cron.Attribution, func(ctx context.Context) error {
				_, _, err := runSvc.RunOnce(ctx, service.RunRequest{Trigger: models.RunTriggerCron})
				return err
			}); err != nil {
				log.Warn("cron register attribution failed", zap.Error(err))
			}
		}
		runner.Start()
		defer runner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type batchOptions struct {
	sync       bool
	windowDays int
	markets    string
	workers    int
	minCost    string
}

// runBatch is the -once path: optional sync, one attribution run, summary
// table on stdout. Exit code reflects the run status.
func runBatch(ctx context.Context, log *zap.Logger, syncSvc *service.ResolutionSyncService, runSvc *service.AttributionService, opts batchOptions) int {
	if opts.sync {
		if _, err := syncSvc.RunOnce(ctx); err != nil {
			log.Error("resolution sync failed", zap.Error(err))
			return 1
		}
	}

	req := service.RunRequest{
		Trigger:      models.RunTriggerCLI,
		WorkerCount:  opts.workers,
		MinTradeCost: opts.minCost,
	}
	if ids := splitCSV(opts.markets); len(ids) > 0 {
		req.MarketIDs = ids
	} else if opts.windowDays > 0 {
		until := time.Now().UTC()
		since := until.AddDate(0, 0, -opts.windowDays)
		req.Since = &since
		req.Until = &until
	}

	sum, run, err := runSvc.RunOnce(ctx, req)
	if err != nil {
		log.Error("attribution run failed", zap.Error(err))
		return 1
	}
	sum.RenderTable(os.Stdout)
	log.Info("attribution run complete", zap.String("run_id", run.ID))
	return 0
}

func splitCSV(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(v); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
