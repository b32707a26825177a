package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"stockroom/internal/config"
	custommiddleware "stockroom/internal/middleware"
	"stockroom/internal/service"
	"stockroom/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	storage *storage
	limiter *redis.Client
	store   *service.ProductStore
}

// HealthResponse is served on /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Storage map[string]string `json:"storage"`
	Version uint64            `json:"version"`
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	st, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		storage: st,
		store:   service.NewProductStore(st.repo, logger),
	}

	if cfg.RateLimit.Enabled {
		// reuse the storage connection when the slot already lives in redis
		s.limiter = st.redis
		if s.limiter == nil {
			if s.limiter, err = openRedis(cfg.Redis); err != nil {
				_ = st.close()
				return nil, err
			}
		}
	}

	// request contexts end on shutdown so open event streams return
	baseCtx, cancel := context.WithCancel(context.Background())

	s.Server = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           s.routes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	s.Server.RegisterOnShutdown(cancel)

	return s, nil
}

// Store returns the product store served by this server
func (s *Server) Store() *service.ProductStore {
	return s.store
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(s.logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(s.logger))
	router.Use(custommiddleware.CORSMiddleware(s.config.CORS.AllowedOrigins, s.config.IsDevelopment()))

	router.Get("/health", s.health)

	productHandler := transport.NewProductHandler(s.store, s.logger)
	router.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(custommiddleware.RateLimitMiddleware(s.limiter, custommiddleware.RateLimitConfig{
				RequestsPerWindow: s.config.RateLimit.Requests,
				Window:            s.config.RateLimit.Window,
				KeyPrefix:         "stockroom:ratelimit",
			}, s.logger))
		}
		productHandler.RegisterRoutes(r)
	})

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats := s.storage.health(r.Context())

	response := HealthResponse{
		Status:  "ok",
		Storage: stats,
		Version: s.store.Version(),
	}
	status := http.StatusOK
	if stats["status"] != "up" {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	custommiddleware.RespondWithJSON(w, status, response)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.limiter != nil && s.limiter != s.storage.redis {
		if err := s.limiter.Close(); err != nil {
			s.logger.Error("Failed to close rate limit connection", zap.Error(err))
		}
	}

	if err := s.storage.close(); err != nil {
		s.logger.Error("Failed to close storage", zap.Error(err))
		return err
	}

	_ = s.logger.Sync()
	return nil
}
