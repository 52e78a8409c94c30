// Package vtn is the OpenADR 2.0b HTTP surface of the VTN: it authenticates each
// inbound message, routes it to the sub-service of its type and turns the outcome
// into a protocol reply.
package vtn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/pollstate"
	"github.com/evidenceledger/oadrvtn/internal/registration"
	"github.com/evidenceledger/oadrvtn/internal/registry"
	"github.com/evidenceledger/oadrvtn/internal/report"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
)

// CertHeader carries the client leaf certificate forwarded by the TLS-terminating load balancer.
// The load balancer must strip any value sent by the client itself.
const CertHeader = x509util.ClientCertHeader

// SignatureHeader carries the detached JWS of the reply body.
const SignatureHeader = "X-OpenADR-Signature"

// Store is the persistence used by the sub-services.
type Store interface {
	GetVen(ctx context.Context, venID string) (*models.VenRecord, error)
	SaveVen(ctx context.Context, ven *models.VenRecord) error
	SetRegistration(ctx context.Context, venID, registrationID string) (bool, error)

	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ListEvents(ctx context.Context, venID string) ([]models.Event, error)
	CancelEvent(ctx context.Context, eventID string) (*models.Event, error)
	SaveEventResponse(ctx context.Context, r *models.EventResponse) error

	CreateOpt(ctx context.Context, opt *models.OptSchedule) error
	DeleteOpt(ctx context.Context, venID, optID string) (bool, error)
}

// Signer signs reply bodies.
type Signer interface {
	SignDetached(body []byte) (string, error)
}

// Invalidator drops cached registry entries after a registration change.
type Invalidator interface {
	Invalidate(venID string)
}

// Notifier tells operators about registrations.
type Notifier interface {
	VenRegistered(ctx context.Context, ven models.VenRecord) error
	VenCancelled(ctx context.Context, venID, registrationID string) error
}

// Config holds the collaborators of one VTN instance.
type Config struct {
	VTNID         string
	PathPrefix    string
	PollFrequency time.Duration

	// Registry resolves VEN records for reregistration checks and authentication.
	// Nil means no registry: reregistration is never requested and every VEN id fails authentication.
	Registry    registry.Port
	Invalidator Invalidator

	Store         Store
	Decider       registration.Decider
	Negotiator    *report.Negotiator
	Subscriptions *report.Subscriptions
	PollState     pollstate.Store

	// Optional
	Signer          Signer
	Notifier        Notifier
	OnEventResponse func(ctx context.Context, r models.EventResponse)
	Now             func() time.Time
}

// Server represents the VTN OpenADR server
type Server struct {
	app      *fiber.App
	cfg      Config
	handlers map[string]handlerFunc
}

// New creates a new VTN server
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.VTNID == "" {
		errs = append(errs, errors.New("vtn id is required"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if cfg.Decider == nil {
		errs = append(errs, errors.New("registration decider is required"))
	}
	if cfg.Negotiator == nil {
		errs = append(errs, errors.New("report negotiator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid vtn configuration: %w", err)
	}

	if cfg.Subscriptions == nil {
		cfg.Subscriptions = report.NewSubscriptions()
	}
	if cfg.PollState == nil {
		cfg.PollState = pollstate.NewMemory()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{cfg: cfg}

	app := fiber.New(fiber.Config{
		AppName:      "OpenADR VTN " + cfg.VTNID,
		ErrorHandler: s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	s.app = app
	s.handlers = s.routes()

	for service := range services {
		s.app.Post(cfg.PathPrefix+"/"+service, s.handleMessage(service))
	}

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "vtn_id": cfg.VTNID})
	})

	return s, nil
}

// App returns the fiber app, for tests and for embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	slog.Info("Starting VTN server", "addr", addr, "vtn_id", s.cfg.VTNID, "prefix", s.cfg.PathPrefix)

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(addr); err != nil {
			errChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.app.Shutdown()
	}
}
