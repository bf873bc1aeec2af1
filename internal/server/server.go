package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/resolveit/apiserver/config"
	"github.com/resolveit/apiserver/internal/confirm"
	"github.com/resolveit/apiserver/internal/db"
	"github.com/resolveit/apiserver/internal/handlers"
	"github.com/resolveit/apiserver/internal/ledger"
	"github.com/resolveit/apiserver/internal/logging"
	"github.com/resolveit/apiserver/internal/metrics"
	"github.com/resolveit/apiserver/internal/mq"
	"github.com/resolveit/apiserver/internal/notify"
	"github.com/resolveit/apiserver/internal/services"
	"github.com/resolveit/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	closers    []func() error
	logger     *slog.Logger
}

// New connects to the database and the configured mail transport and
// builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: logger}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.db = dbConn

	notifier, err := s.openNotifier(ctx, cfg)
	if err != nil {
		_ = s.close()
		return nil, err
	}

	var used services.Ledger
	if cfg.Confirm.SingleUse {
		redisLedger, err := ledger.NewRedisLedger(ctx, cfg.Redis)
		if err != nil {
			_ = s.close()
			return nil, fmt.Errorf("connect redis ledger: %w", err)
		}
		s.closers = append(s.closers, redisLedger.Close)
		used = redisLedger
	}

	signer, err := confirm.NewSigner(cfg.Confirm.Secret, cfg.Confirm.TTL)
	if err != nil {
		_ = s.close()
		return nil, err
	}

	complaintRepo := store.NewComplaintRepository(dbConn)
	userRepo := store.NewUserRepository(dbConn)

	userService := services.NewUserService(userRepo)
	complaintService := services.NewComplaintService(complaintRepo)
	confirmationService := services.NewConfirmationService(complaintRepo, signer, notifier, services.ConfirmationOptions{
		PublicURL:     cfg.HTTP.PublicURL,
		ApproverEmail: cfg.Confirm.ApproverEmail,
		Ledger:        used,
		Logger:        logger,
	})

	auth := handlers.NewAuthHandler(userService, complaintService, cfg.Auth)
	complaints := handlers.NewComplaintHandler(complaintService, confirmationService, cfg.HTTP.FrontendURL, logger)
	s.router = NewRouter(cfg, logger, auth, complaints)

	port := cfg.ServerPort
	if port == 0 {
		port = 5000
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// NewRouter mounts the middleware stack and all routes.
func NewRouter(cfg config.Config, logger *slog.Logger, auth *handlers.AuthHandler, complaints *handlers.ComplaintHandler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.RequestLogger(logger),
		metrics.Middleware,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.HTTP.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/user", func(r chi.Router) {
		handlers.AuthRouter(r, auth)
	})
	router.Route("/complaint", func(r chi.Router) {
		handlers.ComplaintRouter(r, complaints, auth)
	})
	return router
}

func (s *Server) openNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, error) {
	switch cfg.Mail.Transport {
	case "log":
		return notify.NewLogNotifier(s.logger), nil
	case "smtp":
		return notify.NewSMTPNotifier(cfg.Mail)
	case "queue":
		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, queue.Close)
		return notify.NewQueueNotifier(queue, cfg.Mail.Channel), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.Mail.Transport)
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
