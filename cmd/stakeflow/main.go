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
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/config"
	cronrunner "github.com/skybase-int/tarmac-sub003/internal/cron"
	"github.com/skybase-int/tarmac-sub003/internal/db"
	"github.com/skybase-int/tarmac-sub003/internal/handler"
	"github.com/skybase-int/tarmac-sub003/internal/logger"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
	gormrepository "github.com/skybase-int/tarmac-sub003/internal/repository/gorm"
	memrepository "github.com/skybase-int/tarmac-sub003/internal/repository/memory"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
	"github.com/skybase-int/tarmac-sub003/internal/service"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

func main() {
	cfgPath := os.Getenv("SF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	var store repository.Repository
	if dbConn != nil {
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Warn("no db dsn configured, attempts and checkpoints are kept in memory")
		store = memrepository.New()
	}

	settingsSvc := &service.SystemSettingsService{Repo: store, DefaultMode: cfg.Executor.Mode}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	contracts, err := chain.ContractsFromConfig(cfg.Chain)
	if err != nil {
		logger.Fatal("invalid chain addresses", zap.Error(err))
	}
	ethClient, err := chain.Dial(ctx, cfg.Chain)
	if err != nil {
		logger.Fatal("rpc dial failed", zap.Error(err))
	}

	var (
		reader  service.ChainReader
		watcher *chain.ReceiptWatcher
	)
	if ethClient != nil {
		defer ethClient.Close()
		reader = &chain.Reader{
			Client:     ethClient,
			Contracts:  contracts,
			Logger:     logger,
			MaxElapsed: cfg.Chain.ReadMaxElapsed,
		}
		watcher = &chain.ReceiptWatcher{
			Client:   ethClient,
			Logger:   logger,
			Interval: cfg.Chain.ReceiptPoll,
			MaxWait:  cfg.Chain.ReceiptPollMax,
		}
	} else {
		logger.Warn("no rpc url configured, chain reads stay unresolved")
	}

	wallet := &chain.WalletBridge{Watcher: watcher, Logger: logger, BaseCtx: ctx}
	submitter := &chain.ModeSwitch{
		Mode:    settingsSvc.Mode,
		Default: chain.ModeDryRun,
		Submitters: map[string]txdriver.Submitter{
			chain.ModeDryRun: &chain.DryRun{Logger: logger, Delay: cfg.Executor.DryRunDelay},
			chain.ModeWallet: wallet,
		},
	}

	registry := service.NewRegistry(service.Deps{
		Reader:       reader,
		Submitter:    submitter,
		Discarder:    wallet,
		Addresses:    contracts.Addresses(),
		Repo:         store,
		Settings:     settingsSvc,
		Risk:         riskParams(cfg.Risk),
		Referral:     cfg.Chain.ReferralCode,
		Buffer:       decimal.NewFromFloat(cfg.Wizard.RepayAllBuffer),
		Debounce:     cfg.Wizard.Debounce,
		RefreshLimit: cfg.Wizard.RefreshLimit,
		Logger:       logger,
		BaseCtx:      ctx,
	}, cfg.Wizard.SessionTTL)
	defer wallet.Wait()
	defer registry.Close()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst).Middleware())

	healthHandler := &handler.HealthHandler{DB: db.GormOrNil(dbConn), Registry: registry}
	healthHandler.Register(engine)
	sessions := &handler.SessionHandler{
		Registry:      registry,
		Wallet:        wallet,
		Logger:        logger,
		StreamOrigins: cfg.Server.StreamOrigins,
	}
	sessions.Register(engine)
	attempts := &handler.AttemptHandler{Repo: store}
	attempts.Register(engine)
	settings := &handler.SettingsHandler{Repo: store, Settings: settingsSvc}
	settings.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		pruner := &service.Pruner{Repo: store, Retention: cfg.Wizard.AttemptRetention, Logger: logger}
		jobs := []cronrunner.Job{
			{
				Name:    "session_checkpoint",
				Spec:    cfg.Cron.SessionCheckpoint,
				Gate:    switchGate(settingsSvc, service.FeatureSessionCheckpoint),
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context) error {
					n, err := registry.Checkpoint(ctx)
					if n > 0 {
						logger.Debug("sessions checkpointed", zap.Int("count", n))
					}
					return err
				},
			},
			{
				Name:    "attempt_prune",
				Spec:    cfg.Cron.AttemptPrune,
				Gate:    switchGate(settingsSvc, service.FeatureAttemptPrune),
				Timeout: time.Minute,
				Run: func(ctx context.Context) error {
					_, _, err := pruner.Prune(ctx)
					return err
				},
			},
		}
		for _, job := range jobs {
			if _, err := cronRunner.Add(job); err != nil {
				logger.Warn("cron register failed", zap.String("job", job.Name), zap.Error(err))
			}
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("mode", settingsSvc.Mode(ctx)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}
	// ends receipt watches and background reads before the deferred cleanup
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func switchGate(settings *service.SystemSettingsService, key string) cronrunner.Gate {
	return func(ctx context.Context) bool {
		return settings.IsEnabled(ctx, key, true)
	}
}

func riskParams(cfg config.RiskConfig) risk.Params {
	return risk.Params{
		CollateralPrice:  decimal.NewFromFloat(cfg.CollateralPrice),
		LiquidationRatio: decimal.NewFromFloat(cfg.LiquidationRatio),
		Dust:             decimal.NewFromFloat(cfg.Dust),
		DebtCeiling:      decimal.NewFromFloat(cfg.DebtCeiling),
		DebtUtilized:     decimal.NewFromFloat(cfg.DebtUtilized),
		MaxRiskPct:       decimal.NewFromFloat(cfg.MaxRiskPct),
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
