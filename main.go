package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adaptive-trading-bot/config"
	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/api"
	"adaptive-trading-bot/internal/auth"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/engine"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/sentiment"
	"adaptive-trading-bot/internal/strategy"
	"adaptive-trading-bot/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().
		Str("symbol", cfg.TradingConfig.Symbol).
		Bool("mock_mode", cfg.ExchangeConfig.MockMode).
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Msg("Starting adaptive trading bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, stream := buildMarketClient(cfg, logger)
	if stream != nil {
		stream.Start()
		defer stream.Stop()
	}

	var sentimentProvider sentiment.Provider
	if cfg.SentimentConfig.Enabled {
		sentimentProvider = sentiment.NewAnalyzer(client, cfg.SentimentConfig.CryptoPanicAPIKey, logger)
		logger.Info().Msg("Sentiment analysis enabled")
	}
	fuser := sentiment.NewFuser(cfg.SentimentConfig.MinSoloConfidence)

	riskPercent, maxExposurePct := sessionRiskLimits(cfg, preSessionScan(ctx, sentimentProvider, cfg.TradingConfig.Symbol, logger))
	if riskPercent != cfg.RiskConfig.RiskPercent || maxExposurePct != cfg.RiskConfig.MaxExposurePct {
		logger.Info().
			Float64("risk_percent", riskPercent).
			Float64("max_exposure_pct", maxExposurePct).
			Msg("Risk limits set from pre-session sentiment scan")
	}

	riskManager := risk.NewManager(risk.Config{
		RiskPercent:       riskPercent,
		BaseStopLossPct:   cfg.RiskConfig.BaseStopLossPct,
		MaxStopLossPct:    cfg.RiskConfig.MaxStopLossPct,
		MaxDailyLossPct:   cfg.RiskConfig.MaxDailyLossPct,
		MaxExposurePct:    maxExposurePct,
		DrawdownPausePct:  cfg.RiskConfig.DrawdownPausePct,
		DrawdownResumePct: cfg.RiskConfig.DrawdownResumePct,
	}, cfg.RiskConfig.InitialCapital, logger)

	momentum := strategy.NewMomentum(strategy.MomentumConfig{
		MinVolume:           cfg.TradingConfig.MinVolume,
		RSILower:            cfg.StrategyConfig.RSILower,
		RSIUpper:            cfg.StrategyConfig.RSIUpper,
		ADXTrendThreshold:   cfg.StrategyConfig.ADXTrendThreshold,
		ATRVolatilityCeil:   cfg.StrategyConfig.ATRVolatilityCeil,
		RangingTrendPct:     cfg.StrategyConfig.RangingTrendPct,
		RangingMACDDiff:     cfg.StrategyConfig.RangingMACDDiff,
		RangingBandWidthPct: cfg.StrategyConfig.RangingBandWidthPct,
		SRProximityPct:      cfg.StrategyConfig.SRProximityPct,
	})
	meanReversion := strategy.NewMeanReversion(strategy.MeanReversionConfig{
		SupportThreshold:    cfg.StrategyConfig.SupportThreshold,
		ResistanceThreshold: cfg.StrategyConfig.ResistanceThreshold,
	})

	timeframes := analysis.NewAnalyzer(
		client,
		cfg.TimeframeConfig.Intervals,
		cfg.TimeframeConfig.CandleLimit,
		cfg.TimeframeConfig.TrendWindow,
		logger,
	)

	var repo *database.Repository
	var carriedPnL float64
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Database migrations failed")
		}
		repo = database.NewRepository(db)

		// losses already booked today keep counting after a restart
		startOfDay := time.Now().Truncate(24 * time.Hour)
		pnl, err := repo.DailyPnL(ctx, startOfDay)
		if err != nil {
			logger.Warn().Err(err).Msg("Could not load today's realized pnl, starting from zero")
		} else if pnl != 0 {
			carriedPnL = pnl
			logger.Info().Float64("carried_pnl", carriedPnL).Msg("Carrying today's realized pnl into the session")
		}
	}

	deps := engine.Deps{
		Client:        client,
		Risk:          riskManager,
		Momentum:      momentum,
		MeanReversion: meanReversion,
		Fuser:         fuser,
		Sentiment:     sentimentProvider,
		Timeframes:    timeframes,
	}
	if stream != nil {
		deps.Prices = stream
	}
	if repo != nil {
		deps.Store = repo
	}

	eng := engine.New(engine.Config{
		Symbol:               cfg.TradingConfig.Symbol,
		Interval:             cfg.TradingConfig.Interval,
		CandleLimit:          cfg.TradingConfig.CandleLimit,
		TickInterval:         time.Duration(cfg.TradingConfig.TickSeconds) * time.Second,
		SessionDuration:      time.Duration(cfg.TradingConfig.DurationMinutes) * time.Minute,
		MinConfidence:        cfg.TradingConfig.MinConfidence,
		RiskPercent:          riskPercent,
		TakeProfitPct:        cfg.TradingConfig.TakeProfitPct,
		TrailingStopPct:      cfg.TradingConfig.TrailingStopPct,
		MeanRevStopLossPct:   cfg.RiskConfig.MeanRevStopLossPct,
		MeanRevTakeProfitPct: cfg.RiskConfig.MeanRevTakeProfitPct,
		CarriedPnL:           carriedPnL,
	}, cfg.RiskConfig.InitialCapital, deps, logger)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = buildAPIServer(cfg, eng, riskManager, repo, stream, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	report, err := eng.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Session ended with error")
	} else if report != nil {
		logger.Info().Float64("end_capital", report.EndCapital).Msg("Session complete")
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerConfig.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API server shutdown failed")
		}
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// buildMarketClient assembles the market data stack: mock, paper, or live,
// optionally behind the Redis cache, with a kline stream alongside live
// connections.
func buildMarketClient(cfg *config.Config, logger zerolog.Logger) (market.Client, *market.KlineStream) {
	if cfg.ExchangeConfig.MockMode {
		logger.Warn().Msg("Mock mode: all market data and fills are simulated")
		return market.NewMockClient(logger), nil
	}

	apiKey, secretKey := exchangeCredentials(cfg, logger)
	var client market.Client = market.NewRESTClient(apiKey, secretKey, cfg.ExchangeConfig.BaseURL, logger)

	if cfg.TradingConfig.DryRun {
		logger.Info().Msg("Dry run: live market data, simulated fills")
		client = market.NewPaperClient(client, logger)
	}

	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		ttl := time.Duration(cfg.RedisConfig.CacheTTL) * time.Second
		client = market.NewCachedClient(client, rdb, ttl, logger)
		logger.Info().Str("address", cfg.RedisConfig.Address).Msg("Candle cache enabled")
	}

	stream := market.NewKlineStream(
		cfg.ExchangeConfig.StreamURL,
		cfg.TradingConfig.Symbol,
		cfg.TradingConfig.Interval,
		logger,
	)
	stream.OnCandle(func(c market.Candle) {
		logger.Debug().
			Str("symbol", cfg.TradingConfig.Symbol).
			Float64("close", c.Close).
			Float64("volume", c.Volume).
			Msg("Candle closed")
	})

	return client, stream
}

// preSessionScan runs one sentiment analysis before the session starts. Any
// failure means no view; the session then runs on the configured limits.
func preSessionScan(ctx context.Context, provider sentiment.Provider, symbol string, logger zerolog.Logger) *sentiment.MarketView {
	if provider == nil {
		return nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	view, err := provider.AnalyzeMarket(scanCtx, symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("Pre-session sentiment scan failed, using configured risk limits")
		return nil
	}
	return view
}

// sessionRiskLimits maps a directional pre-session sentiment view onto the
// risk ladder; without one the configured limits stand.
func sessionRiskLimits(cfg *config.Config, view *sentiment.MarketView) (riskPercent, maxExposurePct float64) {
	if view == nil || view.Action == sentiment.ActionHold {
		return cfg.RiskConfig.RiskPercent, cfg.RiskConfig.MaxExposurePct
	}
	return sentiment.RiskProfile(view.Confidence)
}

// exchangeCredentials prefers Vault over config/environment keys.
func exchangeCredentials(cfg *config.Config, logger zerolog.Logger) (string, string) {
	if !cfg.VaultConfig.Enabled {
		return cfg.ExchangeConfig.APIKey, cfg.ExchangeConfig.SecretKey
	}

	vaultClient, err := vault.NewClient(vault.Config{
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Vault client setup failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	creds, err := vaultClient.ExchangeCredentials(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load exchange credentials from Vault")
	}
	return creds.APIKey, creds.SecretKey
}

func buildAPIServer(cfg *config.Config, eng *engine.Engine, riskManager *risk.Manager, repo *database.Repository, stream *market.KlineStream, logger zerolog.Logger) *api.Server {
	adminHash := cfg.ServerConfig.AdminPassword
	if adminHash != "" && !auth.IsHash(adminHash) {
		hashed, err := auth.HashPassword(adminHash)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to hash admin password")
		}
		adminHash = hashed
	}

	var streamStats api.StreamStats
	if stream != nil {
		streamStats = stream
	}

	return api.NewServer(api.Config{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		AllowedOrigins: []string{cfg.ServerConfig.AllowedOrigins},
		JWTSecret:      cfg.ServerConfig.JWTSecret,
		AdminUser:      "admin",
		AdminHash:      adminHash,
		TokenDuration:  cfg.ServerConfig.TokenDuration,
	}, eng, riskManager, repo, streamStats, logger)
}
