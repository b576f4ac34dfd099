package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/database"
	"ufo-trading-engine/internal/engine"
	"ufo-trading-engine/internal/events"
	"ufo-trading-engine/internal/logging"
)

// Server is the read-only status API. It exposes the engine's view of the
// world; it never accepts trading commands.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	eng        *engine.Engine
	repo       *database.Repository
	bus        *events.EventBus
	log        *logging.Logger
	startedAt  time.Time
}

// NewServer builds the router. eng provides live state; repo may be nil.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, repo *database.Repository, bus *events.EventBus, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	s := &Server{
		router: router,
		eng:    eng,
		repo:   repo,
		bus:    bus,
		log:    log.WithComponent("api"),
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
		startedAt: time.Now().UTC(),
	}
	s.httpServer.Handler = router
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/positions", s.handlePositions)
		v1.GET("/portfolio", s.handlePortfolio)
		v1.GET("/strength", s.handleStrength)
		v1.GET("/trades", s.handleTrades)
	}
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Status API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
