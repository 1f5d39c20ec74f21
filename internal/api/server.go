// Package api exposes the engine over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"argus-terminal/internal/alerts"
	"argus-terminal/internal/events"
	"argus-terminal/internal/market"
	"argus-terminal/internal/paper"
	"argus-terminal/internal/store"
)

// Config holds HTTP server settings.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
}

// Server wires the engine components behind REST and WebSocket endpoints.
type Server struct {
	cfg      Config
	router   *gin.Engine
	source   market.DataSource
	engine   *paper.Engine
	pilot    *paper.AutoPilot
	alertSvc *alerts.Service
	st       store.Store
	bus      *events.Bus
	hub      *wsHub
	logger   zerolog.Logger

	httpServer *http.Server
}

func NewServer(
	cfg Config,
	source market.DataSource,
	engine *paper.Engine,
	pilot *paper.AutoPilot,
	alertSvc *alerts.Service,
	st store.Store,
	bus *events.Bus,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:      cfg,
		router:   router,
		source:   source,
		engine:   engine,
		pilot:    pilot,
		alertSvc: alertSvc,
		st:       st,
		bus:      bus,
		hub:      newWSHub(logger),
		logger:   logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	s.bridgeEvents()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)

	marketGroup := s.router.Group("/api/market")
	{
		marketGroup.GET("/candles", s.handleCandles)
		marketGroup.GET("/ticker/:symbol", s.handleTicker)
		marketGroup.GET("/tickers", s.handleTickers)
		marketGroup.GET("/symbols", s.handleSymbols)
		marketGroup.GET("/depth/:symbol", s.handleDepth)
	}

	s.router.GET("/api/analysis/:symbol", s.handleAnalysis)
	s.router.GET("/api/risk/:symbol", s.handleRiskLevels)

	s.router.GET("/api/backtest/strategies", s.handleStrategies)
	s.router.POST("/api/backtest", s.handleBacktest)

	portfolio := s.router.Group("/api/portfolio")
	{
		portfolio.GET("", s.handlePortfolio)
		portfolio.GET("/stats", s.handlePortfolioStats)
		portfolio.POST("/reset", s.handlePortfolioReset)
		portfolio.POST("/buy", s.handleBuy)
		portfolio.POST("/sell", s.handleSell)
	}

	autopilot := s.router.Group("/api/autopilot")
	{
		autopilot.GET("/status", s.handleAutoPilotStatus)
		autopilot.GET("/config", s.handleAutoPilotConfig)
		autopilot.PUT("/config", s.handleAutoPilotConfigUpdate)
		autopilot.POST("/start", s.handleAutoPilotStart)
		autopilot.POST("/stop", s.handleAutoPilotStop)
	}

	alertsGroup := s.router.Group("/api/alerts")
	{
		alertsGroup.GET("", s.handleAlertsList)
		alertsGroup.POST("", s.handleAlertAdd)
		alertsGroup.DELETE("/:id", s.handleAlertRemove)
	}

	s.router.GET("/api/watchlist", s.handleWatchlistGet)
	s.router.PUT("/api/watchlist", s.handleWatchlistPut)

	s.router.GET("/ws", s.handleWebSocket)
}

// bridgeEvents forwards bus events and portfolio snapshots to connected
// WebSocket clients.
func (s *Server) bridgeEvents() {
	s.bus.SubscribeAll(func(e events.Event) {
		s.hub.broadcast(wsMessage{Kind: "event", Payload: e})
	})

	snapshots := s.engine.Subscribe()
	go func() {
		for snap := range snapshots {
			s.hub.broadcast(wsMessage{Kind: "portfolio", Payload: snap})
		}
	}()
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
