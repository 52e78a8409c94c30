// Package admin is the operator API of the VTN: VEN enrollment, events and
// report requests, plus an HTML status page.
package admin

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/evidenceledger/oadrvtn/internal/database"
	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/html"
	"github.com/evidenceledger/oadrvtn/internal/jwt"
	"github.com/evidenceledger/oadrvtn/internal/middleware"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/report"
)

// Operator is the part of the VTN driven by the admin API.
type Operator interface {
	AddEvent(ctx context.Context, e *models.Event) error
	CancelEvent(ctx context.Context, eventID string) (*models.Event, error)
	RequestReport(ctx context.Context, venID string, req models.ReportRequest) (models.ReportRequest, error)
	Bindings(venID string) []report.Binding
}

// Invalidator drops cached registry entries after a VEN changes.
type Invalidator interface {
	Invalidate(venID string)
}

// Config holds the admin surface settings
type Config struct {
	VTNID    string
	TokenTTL time.Duration

	// TemplateDir loads the views from disk instead of the embedded copy.
	TemplateDir string

	Now func() time.Time
}

// Server is the admin HTTP server
type Server struct {
	cfg        Config
	app        *fiber.App
	db         *database.Database
	adminAuth  *middleware.AdminAuth
	jwtService *jwt.Service
	html       *html.Renderer
	vtn        Operator
	registry   Invalidator
}

//go:embed views/*
var viewsfs embed.FS

// New creates the admin server. registry may be nil.
func New(db *database.Database, adminAuth *middleware.AdminAuth, jwtService *jwt.Service, vtn Operator, registry Invalidator, cfg Config) (*Server, error) {
	var errs []error
	if db == nil {
		errs = append(errs, errors.New("database is required"))
	}
	if adminAuth == nil {
		errs = append(errs, errors.New("admin auth is required"))
	}
	if jwtService == nil {
		errs = append(errs, errors.New("jwt service is required"))
	}
	if vtn == nil {
		errs = append(errs, errors.New("vtn operator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, errl.Errorf("invalid admin configuration: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	renderer, err := html.NewRenderer(viewsfs, cfg.TemplateDir)
	if err != nil {
		return nil, errl.Errorf("failed to initialize template engine: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "OpenADR VTN admin",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		cfg:        cfg,
		app:        app,
		db:         db,
		adminAuth:  adminAuth,
		jwtService: jwtService,
		html:       renderer,
		vtn:        vtn,
		registry:   registry,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes sets up all the admin routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "vtn_id": s.cfg.VTNID})
	})

	// Public key of reply signatures and admin tokens
	s.app.Get("/.well-known/jwks.json", s.handleJWKS)

	s.app.Post("/admin/login", s.Login)

	// Admin routes (protected)
	admin := s.app.Group("/admin")
	admin.Use(s.adminAuth.AuthMiddleware())

	admin.Get("/status", s.Status)

	admin.Get("/vens", s.ListVens)
	admin.Post("/vens", s.SaveVen)
	admin.Get("/vens/:id", s.GetVen)
	admin.Delete("/vens/:id", s.DeleteVen)
	admin.Post("/vens/:id/report-requests", s.RequestReport)

	admin.Post("/events", s.AddEvent)
	admin.Delete("/events/:id", s.CancelEvent)
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleJWKS(c *fiber.Ctx) error {
	jwks := s.jwtService.GetJWKS()
	if jwks == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "key set unavailable")
	}
	return c.JSON(jwks)
}

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

// Login exchanges the admin password for a bearer token
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !s.adminAuth.CheckPassword(req.Password) {
		slog.Warn("Admin login failed", "from", c.IP())
		return fiber.NewError(fiber.StatusUnauthorized, "invalid admin credentials")
	}

	token, err := s.jwtService.IssueAdminToken("admin", s.cfg.TokenTTL)
	if err != nil {
		return errl.Errorf("failed to issue admin token: %w", err)
	}

	slog.Info("Admin logged in", "from", c.IP())
	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.TokenTTL.Seconds()),
	})
}

// errorHandler answers with a JSON error; unexpected errors are logged and hidden.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	slog.Error("Admin request failed", "method", c.Method(), "path", c.Path(), "error", errl.Detail(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// Start runs the admin server until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	slog.Info("Starting admin server", "addr", addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(addr); err != nil {
			errChan <- fmt.Errorf("failed to start admin server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.app.Shutdown()
	}
}
