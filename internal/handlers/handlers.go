package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/storage"
	"github.com/rankforge/rankforge/internal/worker"
)

// MaxBodySize limits uploaded log files to 32MB.
const MaxBodySize = 32 << 20

// IngestQueue is the worker pool surface the ingest endpoint needs.
type IngestQueue interface {
	Enqueue(job worker.Job) bool
	QueueDepth() int
}

// Leaderboard is the ranking service surface used by the read endpoints.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]models.PlayerStats, error)
}

// Pinger covers the optional analytics connection in readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	WorkerPool  IngestQueue
	Store       storage.Store
	Leaderboard Leaderboard
	ClickHouse  Pinger
	Redis       *redis.Client
	Logger      *zap.Logger
}

type Handler struct {
	pool        IngestQueue
	store       storage.Store
	leaderboard Leaderboard
	ch          Pinger
	redis       *redis.Client
	logger      *zap.SugaredLogger
	validator   *validator.Validate
}

func New(cfg Config) *Handler {
	return &Handler{
		pool:        cfg.WorkerPool,
		store:       cfg.Store,
		leaderboard: cfg.Leaderboard,
		ch:          cfg.ClickHouse,
		redis:       cfg.Redis,
		logger:      cfg.Logger.Sugar(),
		validator:   validator.New(),
	}
}

// NewRouter builds the API surface.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Source-Name"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest/logfile", h.IngestLogFile)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/players/{steamID}/stats", h.GetPlayerStats)
		r.Get("/matches/{id}", h.GetMatch)
	})

	return r
}
