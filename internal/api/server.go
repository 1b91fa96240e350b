package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/config"
	"github.com/kashguard/go-sentinel/internal/security/engine"
	"github.com/kashguard/go-sentinel/internal/security/storage"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

type Router struct {
	Routes        []*echo.Route
	Root          *echo.Group
	Management    *echo.Group
	APIV1Security *echo.Group
}

// Server is a central struct keeping all the dependencies.
// Echo and Router are initialized with router.Init(s) after InitNewServer.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config   config.Server
	DB       *sql.DB
	Security *engine.Engine
}

func NewServer(config config.Server) *Server {
	return &Server{
		Config: config,
	}
}

// InitNewServer 构建存储与安全引擎并启动维护任务
func InitNewServer(ctx context.Context, cfg config.Server) (*Server, error) {
	s := NewServer(cfg)

	var store storage.Store
	switch cfg.Database.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to prepare database schema: %w", err)
		}

		s.DB = db
		store = storage.NewPostgreSQLStore(db)
	default:
		store = storage.NewMemoryStore()
	}

	eng, err := engine.New(ctx, engine.Options{
		OrganizationID:      cfg.Security.OrganizationID,
		Store:               store,
		MaintenanceInterval: cfg.Security.MaintenanceInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize security engine: %w", err)
	}

	eng.Start()
	s.Security = eng

	return s, nil
}

func (s *Server) Ready() bool {
	if s.Echo == nil || s.Router == nil || s.Security == nil {
		log.Debug().Msg("Server is not fully initialized")
		return false
	}

	return true
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Security != nil {
		log.Debug().Msg("Stopping security engine maintenance")
		s.Security.Shutdown()
	}

	if s.DB != nil {
		log.Debug().Msg("Closing database connection")

		if err := s.DB.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			log.Error().Err(err).Msg("Failed to close database connection")
			errs = append(errs, err)
		}
	}

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	return errs
}
