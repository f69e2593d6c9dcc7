// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/FractionEstate/decentralized-did/pkg/app/http"
	"github.com/FractionEstate/decentralized-did/pkg/auth"
	"github.com/FractionEstate/decentralized-did/pkg/config"
	"github.com/FractionEstate/decentralized-did/pkg/did"
	"github.com/FractionEstate/decentralized-did/pkg/enrollment"
	"github.com/FractionEstate/decentralized-did/pkg/storage"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("network", cfg.DID.Network),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	store, cleanup, err := s.openStorage(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mode, err := did.ParseMode(cfg.DID.Mode)
	if err != nil {
		return fmt.Errorf("parse did mode: %w", err)
	}

	svc := enrollment.NewService(enrollment.Params{
		GridSize:       cfg.Biometrics.GridSize,
		AngleBins:      cfg.Biometrics.AngleBins,
		Network:        cfg.DID.Network,
		Mode:           mode,
		PayloadBuilder: did.NewPayloadBuilder(cfg.DID.MetadataLabel, 0),
		Store:          store,
		Rng:            rand.Reader,
	})

	router := s.setupRouter(enrollment.NewLog(svc, logger), logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

// openStorage builds the configured helper-data backend. The returned
// cleanup releases any held connection and is safe to call once.
func (s *Server) openStorage(ctx context.Context, logger *zap.Logger) (storage.Backend, func(), error) {
	noop := func() {}

	switch s.cfg.Storage.Backend {
	case "inline":
		return storage.NewInline(), noop, nil

	case "file":
		store, err := storage.NewFile(s.cfg.Storage.File.DataDir)
		if err != nil {
			return nil, noop, fmt.Errorf("open file storage: %w", err)
		}
		logger.Info("Helper storage ready", zap.String("backend", "file"),
			zap.String("data_dir", s.cfg.Storage.File.DataDir))
		return store, noop, nil

	case "ipfs":
		store := storage.NewIPFS(s.cfg.Storage.IPFS.APIURL, s.cfg.Storage.IPFS.Timeout)
		logger.Info("Helper storage ready", zap.String("backend", "ipfs"),
			zap.String("api_url", s.cfg.Storage.IPFS.APIURL))
		return store, noop, nil

	case "postgres":
		db, err := storage.ConnectPostgres(&s.cfg.Storage.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("connect db: %w", err)
		}
		store := storage.NewPostgres(db)
		if err := store.CreateSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("create schema: %w", err)
		}
		logger.Info("Helper storage ready", zap.String("backend", "postgres"),
			zap.String("host", s.cfg.Storage.Database.Host),
			zap.String("database", s.cfg.Storage.Database.Database))
		return store, func() { _ = db.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", s.cfg.Storage.Backend)
	}
}

func (s *Server) setupRouter(svc enrollment.Service, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		if s.cfg.Auth.Enabled {
			validator := auth.NewJWTValidator(s.cfg.Auth.JWKSURL, s.cfg.Auth.Issuer)
			api.Use(auth.Middleware(validator))
			logger.Info("Bearer authentication enabled", zap.String("jwks_url", s.cfg.Auth.JWKSURL))
		}
		enrollment.RegisterRoutes(api, svc, logger)
	})

	return r
}
