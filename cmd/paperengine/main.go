package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paperbot/engine/internal/accounting"
	"github.com/paperbot/engine/internal/clock"
	"github.com/paperbot/engine/internal/config"
	"github.com/paperbot/engine/internal/logger"
	"github.com/paperbot/engine/internal/marketdata"
	"github.com/paperbot/engine/internal/model"
	"github.com/paperbot/engine/internal/notifier"
	"github.com/paperbot/engine/internal/observability"
	"github.com/paperbot/engine/internal/orchestrator"
	"github.com/paperbot/engine/internal/register"
	"github.com/paperbot/engine/internal/risk"
	"github.com/paperbot/engine/internal/store"
	"github.com/paperbot/engine/internal/strategy"
)

// Exit codes per the operator contract: 0 on clean shutdown, 1 on an
// unrecoverable initialization error, 2 on invalid arguments.
const (
	exitOK       = 0
	exitInit     = 1
	exitBadArgs  = 2
)

const botVersion = "1.2.0"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return exitBadArgs
	}

	gin.SetMode(cfg.GinMode)
	logger.SetGlobalLogger(logger.NewLogger("paperengine"))

	// Resolve the configured strategy before touching the database so a typo
	// in STRATEGY or a schema violation in STRATEGY_PARAMS fails as an
	// argument error, not mid-bootstrap.
	var sessionStrategy strategy.Strategy
	if cfg.Strategy != "" {
		sessionStrategy, err = strategy.Build(cfg.Strategy, cfg.StrategyParams)
		if err != nil {
			log.Printf("invalid strategy configuration: %v", err)
			return exitBadArgs
		}
	}

	db, err := gorm.Open(postgres.Open(cfg.DBDSN()), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		log.Printf("db connection failed: %v", err)
		return exitInit
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	st := store.NewGormStore(db)
	if err := st.AutoMigrate(); err != nil {
		log.Printf("automigrate failed: %v", err)
		return exitInit
	}
	if err := db.AutoMigrate(&observability.ServiceMetric{}, &observability.ServiceLog{}, &observability.ServiceSpan{}); err != nil {
		log.Printf("observability automigrate failed: %v", err)
		return exitInit
	}

	otelShutdown, err := observability.SetupOTelSDK(context.Background())
	if err != nil {
		log.Printf("otel setup failed: %v", err)
		return exitInit
	}
	defer func() { _ = otelShutdown(context.Background()) }()
	promMetrics := observability.NewPromMetrics()
	dbMetrics := observability.NewMetricsCollector(db, "paperengine")
	dbLogger := observability.NewLogger(db, "paperengine")

	account, err := ensureAccount(context.Background(), st, cfg)
	if err != nil {
		log.Printf("account bootstrap failed: %v", err)
		return exitInit
	}

	sinks := []notifier.Sink{notifier.NewConsoleSink()}
	if cfg.SoundEnabled {
		sinks = append(sinks, notifier.NewSoundSink(cfg.SoundTTS))
	}
	if cfg.RedisAddr != "" {
		redisSink, err := notifier.NewRedisSink(cfg.RedisAddr, "paperengine.events")
		if err != nil {
			logger.Warn("redis notifier disabled, connection failed", "error", err.Error())
		} else {
			sinks = append(sinks, redisSink)
			defer redisSink.Close()
		}
	}
	var wsHub *notifier.WebSocketHub
	if cfg.WebSocketPush {
		wsHub = notifier.NewWebSocketHub()
		go wsHub.Run()
		sinks = append(sinks, wsHub)
	}
	notify := notifier.New(sinks...)

	var mkt marketdata.Source = marketdata.NewLimiter(
		marketdata.NewWithTimeout(newMarketSource(), marketdata.DefaultTimeout),
		5, 10,
	)
	if cfg.RedisAddr != "" {
		tickerCache, err := marketdata.NewRedisTickerCache(cfg.RedisAddr, marketdata.DefaultTickerTTL)
		if err != nil {
			logger.Warn("ticker cache disabled, redis connection failed", "error", err.Error())
		} else {
			// cache sits outermost so a hit skips both the rate limiter and
			// the upstream fetch
			mkt = marketdata.NewCachedSource(mkt, tickerCache)
			defer tickerCache.Close()
		}
	}

	realClock := clock.NewReal()
	engine := accounting.New(st, mkt, notify, realClock, decimal.NewFromFloat(0.05))

	// Idempotent restart: resume exit monitoring for positions still open
	// from a previous run, and surface any orphaned register rows.
	openCount, orphans, err := engine.ReconcileStartup(context.Background(), account.ID)
	if err != nil {
		log.Printf("startup reconciliation failed: %v", err)
		return exitInit
	}
	if orphans > 0 {
		logger.Warn("orphaned trade-register rows detected at startup", "count", orphans)
	}
	if openCount > 0 {
		logger.Info("resumed open positions from previous run", "count", openCount)
	}

	// At most one active session per account: a session left active by a
	// crashed run is closed out with end_reason=error before a new one starts.
	if stale, err := st.Sessions().GetActive(context.Background(), account.ID); err == nil && stale != nil {
		now := realClock.Now()
		reason := model.EndError
		stale.EndedAt = &now
		stale.EndReason = &reason
		stale.DurationSeconds = int64(now.Sub(stale.StartedAt).Seconds())
		if err := st.Sessions().Update(context.Background(), stale); err != nil {
			logger.Warn("failed to close stale session", "session_id", stale.SessionID, "error", err.Error())
		} else {
			logger.Warn("closed stale active session from previous run", "session_id", stale.SessionID)
		}
	}

	var maxDrawdown *decimal.Decimal
	if cfg.MaxDrawdownPercent > 0 {
		v := decimal.NewFromFloat(cfg.MaxDrawdownPercent)
		maxDrawdown = &v
	}
	startedAt := realClock.Now()
	guard := risk.New(startedAt, cfg.TimeLimit, decimal.NewFromFloat(cfg.MaxLoss), maxDrawdown, time.Duration(cfg.CooldownSeconds)*time.Second, cfg.MaxPositions)

	sessionID := fmt.Sprintf("%s_%s", cfg.Account, startedAt.UTC().Format("20060102_150405"))
	if err := st.Sessions().Create(context.Background(), &model.TradingSession{
		SessionID:        sessionID,
		AccountID:        account.ID,
		StrategyID:       cfg.Strategy,
		Mode:             model.ModePaper,
		Symbols:          model.StringList(cfg.Symbols),
		StartedAt:        startedAt,
		TimeLimitSeconds: cfg.TimeLimit,
		MaxLossLimit:     decimal.NewFromFloat(cfg.MaxLoss),
		MaxPositions:     cfg.MaxPositions,
		StartingBalance:  account.CurrentBalance,
		PeakBalance:      account.PeakBalance,
	}); err != nil {
		log.Printf("failed to create trading session: %v", err)
		return exitInit
	}
	dbMetrics.SetSession(sessionID)
	dbMetrics.RecordCounter("sessions_started", 1, map[string]string{"account": cfg.Account})
	// console output from here on carries the session tag, matching the
	// session scoping of the DB-backed logger below
	logger.SetGlobalLogger(logger.NewLogger("paperengine").WithSession(sessionID))
	engine.Log = engine.Log.WithSession(sessionID)
	logCtx := dbLogger.WithSession(context.Background(), sessionID)
	dbLogger.Info(logCtx, "trading session started", map[string]interface{}{
		"account": cfg.Account,
		"symbols": cfg.Symbols,
	})
	spanRecorder := observability.NewSpanRecorder(db, "paperengine", sessionID)

	orch := orchestrator.New(engine, guard, st, mkt, realClock, account.ID, sessionID,
		time.Duration(cfg.CheckInterval)*time.Second, decimal.NewFromFloat(cfg.Leverage))
	orch.Log = orch.Log.WithSession(sessionID)
	if cfg.LLMJournalPath != "" {
		orch.LLMJournal = strategy.NewLLMJournal(cfg.LLMJournalPath)
		defer orch.LLMJournal.Close()
	}
	orch.Spans = spanRecorder
	orch.OnTick = func(d time.Duration) { promMetrics.TickDuration.Observe(d.Seconds()) }
	orch.OnTradeClosed = func(t model.Trade) {
		promMetrics.TradesClosed.WithLabelValues(string(t.ExitReason)).Inc()
		dbMetrics.RecordGauge("trade_net_pnl", toFloat(t.NetPnL), map[string]string{"symbol": t.Symbol, "exit_reason": string(t.ExitReason)})
	}
	orch.BotVersion = botVersion
	orch.Session = strategy.SessionContext{
		SessionID:        sessionID,
		AccountName:      cfg.Account,
		Mode:             model.ModePaper,
		StartedAt:        startedAt,
		TimeLimitSeconds: cfg.TimeLimit,
		MaxLossLimit:     decimal.NewFromFloat(cfg.MaxLoss),
		MaxPositions:     cfg.MaxPositions,
		Symbols:          cfg.Symbols,
	}
	if cfg.PositionSizeBase != "" {
		orch.SizeOverrides = map[string]decimal.Decimal{
			cfg.PositionSizeBase: decimal.NewFromFloat(cfg.PositionSizeAmount),
		}
	}
	if sessionStrategy != nil {
		for _, symbol := range cfg.Symbols {
			orch.Register(symbol, sessionStrategy, 200)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/summary", func(c *gin.Context) {
		summary, err := engine.AccountSummary(c.Request.Context(), account.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		promMetrics.AccountBalance.Set(toFloat(summary.CurrentBalance))
		promMetrics.Equity.Set(toFloat(summary.Equity))
		promMetrics.OpenPositions.Set(float64(summary.OpenPositions))
		c.JSON(http.StatusOK, summary)
	})
	router.GET("/register", func(c *gin.Context) {
		sid := c.DefaultQuery("session_id", sessionID)
		rows, err := st.Register().ListBySession(c.Request.Context(), sid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		payload, err := register.MarshalBatch(rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", payload)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if wsHub != nil {
		router.GET("/ws", gin.WrapF(wsHub.HandleWebSocket))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server stopped", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan model.SessionEndReason, 1)
	go func() {
		done <- orch.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var endReason model.SessionEndReason
	select {
	case endReason = <-done:
		// session ended on its own (time limit, max loss, or error latch)
		cancel()
	case <-quit:
		logger.Info("shutdown signal received")
		cancel()
		endReason = <-done
	}
	logger.Info("session finished", "session_id", sessionID, "reason", string(endReason))
	dbLogger.Info(logCtx, "trading session finished", map[string]interface{}{"reason": string(endReason)})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown error", "error", err.Error())
	}
	return exitOK
}

func ensureAccount(ctx context.Context, st store.Store, cfg *config.Config) (*model.Account, error) {
	acc, err := st.Accounts().GetByName(ctx, cfg.Account)
	if err == nil {
		return acc, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}
	acc = &model.Account{
		ID:              uuid.New(),
		Name:            cfg.Account,
		InitialBalance:  decimal.NewFromFloat(cfg.Balance),
		CurrentBalance:  decimal.NewFromFloat(cfg.Balance),
		PeakBalance:     decimal.NewFromFloat(cfg.Balance),
		LeverageDefault: decimal.NewFromFloat(cfg.Leverage),
		LeverageCap:     decimal.NewFromFloat(cfg.Leverage).Mul(decimal.NewFromInt(5)),
		MakerFee:        decimal.NewFromFloat(0.0002),
		TakerFee:        decimal.NewFromFloat(0.0005),
	}
	if err := st.Accounts().Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// newMarketSource returns the MarketDataSource wired for this process.
// Exchange connectors are deliberately abstracted out of this engine
// (candles/ticker/orderbook/funding only); operators swap this for a real
// venue adapter satisfying marketdata.Source. The Fake here keeps the
// binary runnable out of the box against no external dependency.
func newMarketSource() marketdata.Source {
	return marketdata.NewFake()
}
