// Package main serves the swing-entry engine over HTTP: full backtest runs
// and latest-bar scans against the configured bar source.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"swing-engine/services/engine"
	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
	"swing-engine/services/sentiment"
)

// SwingService bundles the bar source, the scorer and the logger behind the
// HTTP handlers.
type SwingService struct {
	source      marketdata.BarSource
	listTickers func(ctx context.Context) ([]string, error)
	scorer      sentiment.Scorer
	logger      *zap.Logger
	closer      func() error
}

// NewSwingService wires the bar source from the environment: CSV_DIR selects
// the directory source, otherwise ClickHouse via the CH_* variables.
func NewSwingService(ctx context.Context, logger *zap.Logger) (*SwingService, error) {
	svc := &SwingService{
		scorer: sentiment.NewRuleScorer(),
		logger: logger,
	}
	if dir := strings.TrimSpace(os.Getenv("CSV_DIR")); dir != "" {
		ds := marketdata.NewDirSource(dir)
		svc.source = ds
		svc.listTickers = func(context.Context) ([]string, error) { return ds.Tickers() }
		logger.Info("Using CSV bar source", zap.String("dir", dir))
		return svc, nil
	}
	store, err := marketdata.OpenBarStore(ctx, marketdata.ClickHouseConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to open bar store: %w", err)
	}
	svc.source = store
	svc.listTickers = store.Tickers
	svc.closer = store.Close
	logger.Info("Using ClickHouse bar source")
	return svc, nil
}

// Close releases the bar source.
func (s *SwingService) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// BacktestRequest is the POST /api/v1/backtest body.
type BacktestRequest struct {
	Tickers            []string `json:"tickers"`
	Universe           string   `json:"universe"`
	Limit              int      `json:"limit"`
	From               string   `json:"from"`
	To                 string   `json:"to"`
	Months             int      `json:"months"`
	Variant            string   `json:"variant"`
	Lanes              []string `json:"lanes"`
	Workers            int      `json:"workers"`
	WarmupBars         *int     `json:"warmupBars"`
	HoldBars           *int     `json:"holdBars"`
	CooldownDays       *int     `json:"cooldownDays"`
	SimulateRejected   *bool    `json:"simulateRejectedBuys"`
	IncludeTrades      *bool    `json:"includeTrades"`
	IncludeEvents      *bool    `json:"includeEvents"`
	TopRejected        int      `json:"topRejectedReasons"`
	ExamplesCap        int      `json:"examplesCap"`
	TargetTradesPerDay float64  `json:"targetTradesPerDay"`
}

// ScanRequest is the POST /api/v1/scan body.
type ScanRequest struct {
	Tickers  []string `json:"tickers"`
	Universe string   `json:"universe"`
	Limit    int      `json:"limit"`
	AsOf     string   `json:"asOf"`
	Variant  string   `json:"variant"`
	Lanes    []string `json:"lanes"`
	BuysOnly bool     `json:"buysOnly"`
}

func (s *SwingService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktest)
		api.POST("/scan", s.handleScan)
		api.GET("/health", s.handleHealth)
		api.GET("/variants", s.handleVariants)
	}
}

func (s *SwingService) handleBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.New().String()
	started := time.Now()
	s.logger.Info("Starting backtest run",
		zap.String("run_id", runID),
		zap.String("variant", req.Variant),
		zap.Int("tickers", len(req.Tickers)),
	)

	cfg, opts, err := s.buildRun(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	tickers, err := s.resolveTickers(ctx, req.Tickers, req.Universe, req.Limit)
	if err != nil {
		s.logger.Error("Ticker resolution failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runner := &engine.Runner{Source: s.source, Scorer: s.scorer, Cfg: cfg, Opts: opts}
	run, err := runner.Run(ctx, tickers)
	if err != nil {
		s.logger.Error("Backtest run failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	report := engine.BuildReport(run, cfg, opts)
	report.RunID = runID

	s.logger.Info("Backtest completed",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("trades", report.Summary.Trades),
		zap.Int("fetch_errors", len(report.FetchErrors)),
	)
	c.JSON(http.StatusOK, report)
}

func (s *SwingService) handleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := presetWithLanes(req.Variant, req.Lanes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var cutoff time.Time
	if req.AsOf != "" {
		cutoff, err = time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad asOf: %v", err)})
			return
		}
	}

	ctx := c.Request.Context()
	tickers, err := s.resolveTickers(ctx, req.Tickers, req.Universe, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var decisions []engine.Decision
	var skipped []string
	for _, tk := range tickers {
		bars, err := s.source.DailyBars(ctx, tk, time.Time{}, cutoff)
		if err != nil || len(bars) == 0 {
			skipped = append(skipped, tk)
			continue
		}
		snap := indicators.Build(tk, bars)
		scores := s.scorer.Score(snap, bars)
		dec := engine.Decide(bars, snap, &scores, &cfg)
		if req.BuysOnly && !dec.BuyNow {
			continue
		}
		decisions = append(decisions, dec)
	}
	c.JSON(http.StatusOK, gin.H{
		"asOf":      req.AsOf,
		"variant":   cfg.Variant,
		"decisions": decisions,
		"skipped":   skipped,
	})
}

func (s *SwingService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   engine.ReportVersion,
	})
}

func (s *SwingService) handleVariants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"variants": engine.PresetNames(),
		"default":  "default",
	})
}

// buildRun translates a request into a validated config and options pair.
func (s *SwingService) buildRun(req *BacktestRequest) (engine.Config, engine.Options, error) {
	cfg, err := presetWithLanes(req.Variant, req.Lanes)
	if err != nil {
		return cfg, engine.Options{}, err
	}
	if req.WarmupBars != nil {
		cfg.WarmupBars = *req.WarmupBars
	}
	if req.HoldBars != nil {
		cfg.HoldBars = *req.HoldBars
	}
	if req.CooldownDays != nil {
		cfg.CooldownDays = *req.CooldownDays
	}
	if err := cfg.Validate(); err != nil {
		return cfg, engine.Options{}, err
	}

	opts := engine.DefaultOptions()
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	if req.SimulateRejected != nil {
		opts.SimulateRejected = *req.SimulateRejected
	}
	if req.IncludeTrades != nil {
		opts.IncludeTrades = *req.IncludeTrades
	}
	if req.IncludeEvents != nil {
		opts.IncludeEvents = *req.IncludeEvents
	}
	if req.TopRejected > 0 {
		opts.TopRejected = req.TopRejected
	}
	if req.ExamplesCap > 0 {
		opts.ExamplesCap = req.ExamplesCap
	}
	opts.TargetTradesPerDay = req.TargetTradesPerDay

	if req.From != "" && req.Months > 0 {
		return cfg, opts, errors.New("from and months are mutually exclusive")
	}
	if req.To != "" {
		opts.To, err = time.Parse("2006-01-02", req.To)
		if err != nil {
			return cfg, opts, fmt.Errorf("bad to: %w", err)
		}
	}
	if req.From != "" {
		opts.From, err = time.Parse("2006-01-02", req.From)
		if err != nil {
			return cfg, opts, fmt.Errorf("bad from: %w", err)
		}
	} else if req.Months > 0 {
		anchor := opts.To
		if anchor.IsZero() {
			anchor = time.Now().UTC().Truncate(24 * time.Hour)
		}
		opts.From = anchor.AddDate(0, -req.Months, 0)
	}
	return cfg, opts, nil
}

func (s *SwingService) resolveTickers(ctx context.Context, tickers []string, universePath string, limit int) ([]string, error) {
	out := tickers
	if len(out) == 0 && universePath != "" {
		var err error
		out, err = marketdata.LoadUniverse(universePath)
		if err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		var err error
		out, err = s.listTickers(ctx)
		if err != nil {
			return nil, err
		}
	}
	out = marketdata.ApplyLimit(out, limit)
	if len(out) == 0 {
		return nil, errors.New("no tickers to run")
	}
	return out, nil
}

func presetWithLanes(variant string, lanes []string) (engine.Config, error) {
	cfg, err := engine.Preset(variant)
	if err != nil {
		return cfg, err
	}
	if len(lanes) > 0 {
		parsed, err := engine.ParseLanes(strings.Join(lanes, ","))
		if err != nil {
			return cfg, err
		}
		cfg.Lanes = parsed
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	service, err := NewSwingService(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to create service", zap.Error(err))
	}
	defer service.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupHTTPRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
