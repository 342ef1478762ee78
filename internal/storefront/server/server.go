// Package server wires the storefront stores, guards and handlers into one
// HTTP server. main() builds a Server, calls Run, done.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/audit"
	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/cart"
	"github.com/marcus-qen/storefront/internal/storefront/catalog"
	"github.com/marcus-qen/storefront/internal/storefront/config"
	"github.com/marcus-qen/storefront/internal/storefront/csrf"
	"github.com/marcus-qen/storefront/internal/storefront/customers"
	"github.com/marcus-qen/storefront/internal/storefront/database"
	"github.com/marcus-qen/storefront/internal/storefront/ratelimit"
)

// Version info injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const auditLogSize = 10000

// Server is the assembled storefront API.
type Server struct {
	cfg    config.Config
	logger *zap.Logger
	db     *database.DB

	customers *customers.Store
	catalog   *catalog.Store
	carts     *cart.Store
	auditLog  *audit.Log

	tokens  *auth.TokenIssuer
	gate    *auth.Gate
	authz   *auth.Authorizer
	authH   *auth.Handlers
	limiter *ratelimit.Limiter
	csrf    *csrf.Guard

	scheduler  *cron.Cron
	handler    http.Handler
	httpServer *http.Server
}

// New opens and migrates the database and assembles every subsystem.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.OpenAndMigrate(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	s, err := newWithDB(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.bootstrapAdmin(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newWithDB(cfg config.Config, db *database.DB, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		customers: customers.NewStore(db),
		catalog:   catalog.NewStore(db),
		carts:     cart.NewStore(db, logger.Named("cart")),
		auditLog:  audit.NewLog(auditLogSize),
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, cfg.Auth.AdminTokenTTL)
	if err != nil {
		return nil, err
	}
	s.tokens = tokens
	s.gate = auth.NewGate(tokens, logger.Named("auth"))
	s.authz = auth.NewAuthorizer(logger.Named("auth"), s.auditLog)
	s.authH = auth.NewHandlers(&accountAdapter{store: s.customers}, tokens, s.auditLog, logger.Named("auth"))
	s.authH.SetErrorWriter(s.writeError)

	rules, err := rateLimitRules(cfg.RateLimits)
	if err != nil {
		return nil, err
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{Rules: rules, TrustProxy: cfg.TrustProxy},
		ratelimit.NewMemoryStore(), logger.Named("ratelimit"), s.auditLog)
	s.csrf = csrf.NewGuard(csrf.NewMemoryStore(), cfg.CSRF.TTL, logger.Named("csrf"), s.auditLog)

	if s.scheduler, err = s.newScheduler(); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = chain(mux, s.observe, s.recoverPanics, maxBodySizeMiddleware)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// rateLimitRules overlays configured overrides on the default rules.
func rateLimitRules(overrides map[string]config.RateLimitOverride) (map[ratelimit.Class]ratelimit.Rule, error) {
	rules := ratelimit.DefaultRules()
	for name, o := range overrides {
		class, err := ratelimit.ParseClass(name)
		if err != nil {
			return nil, err
		}
		rule := rules[class]
		if o.Window > 0 {
			rule.Window = o.Window
		}
		if o.Max > 0 {
			rule.Max = o.Max
		}
		if o.FailedOnly != nil {
			rule.FailedOnly = *o.FailedOnly
		}
		rules[class] = rule
	}
	return rules, nil
}

// bootstrapAdmin seeds the configured super admin, if any.
func (s *Server) bootstrapAdmin(ctx context.Context) error {
	email, password := s.cfg.Bootstrap.AdminEmail, s.cfg.Bootstrap.AdminPassword
	if email == "" || password == "" {
		return nil
	}
	c, created, err := s.customers.EnsureAccount(ctx, email, "Administrator", password, auth.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap admin ready",
		zap.Int64("customer_id", c.ID),
		zap.String("email", c.Email),
		zap.Bool("created", created),
	)
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.scheduler.Start()
	defer func() {
		<-s.scheduler.Stop().Done()
	}()

	s.logger.Info("starting storefront",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("version", Version),
		zap.String("environment", s.cfg.Environment),
		zap.String("database", string(s.db.Dialect)),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}
