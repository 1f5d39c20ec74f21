package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"argus-terminal/internal/alerts"
	"argus-terminal/internal/backtest"
	"argus-terminal/internal/council"
	"argus-terminal/internal/market"
	"argus-terminal/internal/paper"
	"argus-terminal/internal/risk"
	"argus-terminal/internal/store"
)

const defaultCandleLimit = 200

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if err := s.st.Ping(c.Request.Context()); err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"autopilot": s.pilot.IsRunning(),
	})
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", market.Interval1h)
	if !market.ValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil || limit < 1 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in [1, 1000]"})
		return
	}

	candles, err := s.source.GetCandles(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, candles)
}

func (s *Server) handleTicker(c *gin.Context) {
	ticker, err := s.source.GetTicker(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ticker)
}

func (s *Server) handleTickers(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols is required"})
		return
	}
	tickers, err := s.source.GetTickers(c.Request.Context(), strings.Split(raw, ","))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tickers)
}

func (s *Server) handleSymbols(c *gin.Context) {
	symbols, err := s.source.GetTradableSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, symbols)
}

func (s *Server) handleDepth(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	depth, err := s.source.GetOrderBookDepth(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, depth)
}

func (s *Server) handleAnalysis(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", market.Interval1h)
	if !market.ValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval"})
		return
	}

	candles, err := s.source.GetCandles(c.Request.Context(), symbol, interval, defaultCandleLimit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, council.Analyze(candles, symbol))
}

func (s *Server) handleRiskLevels(c *gin.Context) {
	symbol := c.Param("symbol")
	entry, err := strconv.ParseFloat(c.Query("entry"), 64)
	if err != nil || entry <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry must be a positive number"})
		return
	}
	direction := risk.Direction(c.DefaultQuery("direction", string(risk.Long)))
	if direction != risk.Long && direction != risk.Short {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be long or short"})
		return
	}
	interval := c.DefaultQuery("interval", market.Interval1h)
	if !market.ValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval"})
		return
	}

	candles, err := s.source.GetCandles(c.Request.Context(), symbol, interval, defaultCandleLimit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, risk.Calculate(candles, entry, direction, risk.DefaultConfig()))
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, backtest.Strategies())
}

type backtestRequest struct {
	Symbol            string  `json:"symbol" binding:"required"`
	Strategy          string  `json:"strategy" binding:"required"`
	Interval          string  `json:"interval"`
	Limit             int     `json:"limit"`
	InitialCapital    float64 `json:"initialCapital"`
	PositionSize      float64 `json:"positionSize"`
	StopLossPercent   float64 `json:"stopLossPercent"`
	TakeProfitPercent float64 `json:"takeProfitPercent"`
	Commission        float64 `json:"commission"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Interval == "" {
		req.Interval = market.Interval1h
	}
	if !market.ValidInterval(req.Interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 500
	}

	cfg := backtest.DefaultConfig(req.Strategy)
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	if req.PositionSize > 0 {
		cfg.PositionSize = req.PositionSize
	}
	if req.StopLossPercent > 0 {
		cfg.StopLossPercent = req.StopLossPercent
	}
	if req.TakeProfitPercent > 0 {
		cfg.TakeProfitPercent = req.TakeProfitPercent
	}
	if req.Commission > 0 {
		cfg.Commission = req.Commission
	}

	candles, err := s.source.GetCandles(c.Request.Context(), req.Symbol, req.Interval, req.Limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result, err := backtest.Run(req.Symbol, candles, cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handlePortfolioStats(c *gin.Context) {
	stats, err := s.engine.PerformanceStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type resetRequest struct {
	InitialBalance float64 `json:"initialBalance" binding:"required,gt=0"`
}

func (s *Server) handlePortfolioReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.Reset(c.Request.Context(), req.InitialBalance); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

type buyRequest struct {
	Symbol     string  `json:"symbol" binding:"required"`
	Notional   float64 `json:"notional" binding:"required,gt=0"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Accumulate bool    `json:"accumulate"`
}

func (s *Server) handleBuy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := paper.BuyOrder{
		Symbol:     req.Symbol,
		Notional:   req.Notional,
		Reason:     req.Reason,
		Confidence: req.Confidence,
	}

	var (
		trade *paper.Trade
		err   error
	)
	if req.Accumulate {
		trade, err = s.engine.AddToPosition(c.Request.Context(), order)
	} else {
		trade, err = s.engine.Buy(c.Request.Context(), order)
	}
	if err != nil {
		c.JSON(tradeErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trade)
}

type sellRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason"`
}

func (s *Server) handleSell(c *gin.Context) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trade, err := s.engine.Sell(c.Request.Context(), req.Symbol, req.Quantity, req.Reason)
	if err != nil {
		c.JSON(tradeErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trade)
}

// tradeErrorStatus maps trade precondition failures to client errors.
func tradeErrorStatus(err error) int {
	switch {
	case errors.Is(err, paper.ErrDuplicatePosition):
		return http.StatusConflict
	case errors.Is(err, paper.ErrInsufficientFunds),
		errors.Is(err, paper.ErrNoPosition),
		errors.Is(err, paper.ErrQuantityExceedsHolding),
		errors.Is(err, paper.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleAutoPilotStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": s.pilot.IsRunning(),
		"config":  s.pilot.Config(),
	})
}

func (s *Server) handleAutoPilotConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.pilot.Config())
}

func (s *Server) handleAutoPilotConfigUpdate(c *gin.Context) {
	var cfg paper.AutoPilotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.pilot.UpdateConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.pilot.Config())
}

func (s *Server) handleAutoPilotStart(c *gin.Context) {
	if err := s.pilot.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleAutoPilotStop(c *gin.Context) {
	s.pilot.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleAlertsList(c *gin.Context) {
	c.JSON(http.StatusOK, s.alertSvc.List())
}

type alertRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Condition string  `json:"condition" binding:"required"`
	Target    float64 `json:"target" binding:"required,gt=0"`
}

func (s *Server) handleAlertAdd(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alert, err := s.alertSvc.Add(c.Request.Context(), req.Symbol, alerts.Condition(req.Condition), req.Target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) handleAlertRemove(c *gin.Context) {
	err := s.alertSvc.Remove(c.Request.Context(), c.Param("id"))
	if errors.Is(err, alerts.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleWatchlistGet(c *gin.Context) {
	var watchlist []string
	err := s.st.GetJSON(c.Request.Context(), store.KeyWatchlist, &watchlist)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if watchlist == nil {
		watchlist = []string{}
	}
	c.JSON(http.StatusOK, watchlist)
}

func (s *Server) handleWatchlistPut(c *gin.Context) {
	var watchlist []string
	if err := c.ShouldBindJSON(&watchlist); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.st.SetJSON(c.Request.Context(), store.KeyWatchlist, watchlist); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, watchlist)
}
