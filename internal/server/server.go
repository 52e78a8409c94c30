// Package server wires the VTN together: storage, registry, registration deciders,
// poll state, signing, notifications, and the OpenADR and admin HTTP servers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/evidenceledger/oadrvtn/internal/admin"
	"github.com/evidenceledger/oadrvtn/internal/database"
	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/jwt"
	"github.com/evidenceledger/oadrvtn/internal/middleware"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/notify"
	"github.com/evidenceledger/oadrvtn/internal/pollstate"
	"github.com/evidenceledger/oadrvtn/internal/registration"
	"github.com/evidenceledger/oadrvtn/internal/registry"
	"github.com/evidenceledger/oadrvtn/internal/report"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
	"github.com/evidenceledger/oadrvtn/internal/vtn"
	"github.com/evidenceledger/oadrvtn/internal/vtnconfig"
)

// adminViewsDir holds the admin templates when they are loaded from disk in development.
const adminViewsDir = "internal/admin/views"

// Server manages the OpenADR and admin servers
type Server struct {
	cfg   vtnconfig.Config
	db    *database.Database
	redis *pollstate.Redis
	vtn   *vtn.Server
	admin *admin.Server
}

// New creates a server instance. Nothing is listening and the database is not opened until Start.
func New(ctx context.Context, cfg vtnconfig.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errl.Errorf("invalid configuration: %w", err)
	}

	db := database.New(cfg.DatabasePath)

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}

	// Registry over the database, cached unless the TTL is zero
	var reg registry.Port = registry.FromDatabase(db)
	var invalidator vtn.Invalidator
	if cfg.RegistryCacheTTL > 0 {
		cached := registry.NewCached(reg, cfg.RegistryCacheTTL)
		reg, invalidator = cached, cached
	}

	decider, err := newDecider(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, db: db}

	var state pollstate.Store = pollstate.NewMemory()
	if cfg.RedisAddr != "" {
		s.redis, err = pollstate.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "oadrvtn:"+cfg.VTNID)
		if err != nil {
			return nil, errl.Errorf("failed to create redis poll state: %w", err)
		}
		state = s.redis
	}

	vtnCfg := vtn.Config{
		VTNID:         cfg.VTNID,
		PathPrefix:    cfg.PathPrefix,
		PollFrequency: cfg.PollFrequency,
		Registry:      reg,
		Invalidator:   invalidator,
		Store:         db,
		Decider:       decider,
		Negotiator:    report.NewNegotiator(report.MultiSink{report.LogSink{}, report.StoreSink{Store: db}}),
		PollState:     state,
		Signer:        signer,
		OnEventResponse: func(_ context.Context, r models.EventResponse) {
			slog.Info("Event response received",
				"ven_id", r.VenID, "event_id", r.EventID, "modification_number", r.ModificationNumber, "opt_type", r.OptType)
		},
	}
	notifier, err := notify.NewService(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		To:       cfg.NotifyEmail,
		VTNID:    cfg.VTNID,
	})
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		vtnCfg.Notifier = notifier
	}

	s.vtn, err = vtn.New(vtnCfg)
	if err != nil {
		return nil, err
	}

	adminAuth, err := middleware.NewAdminAuth(cfg.AdminPassword, signer)
	if err != nil {
		return nil, err
	}
	if cfg.AdminOIDCIssuer != "" {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AdminOIDCIssuer, cfg.AdminOIDCClientID)
		if err != nil {
			return nil, err
		}
		adminAuth.WithOIDC(verifier)
		slog.Info("Admin OIDC login enabled", "issuer", cfg.AdminOIDCIssuer)
	}

	adminCfg := admin.Config{VTNID: cfg.VTNID, TokenTTL: cfg.AdminTokenTTL}
	if cfg.Development {
		adminCfg.TemplateDir = adminViewsDir
	}
	s.admin, err = admin.New(db, adminAuth, signer, s.vtn, invalidator, adminCfg)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func newSigner(cfg vtnconfig.Config) (*jwt.Service, error) {
	if cfg.SigningKeyFile == "" {
		slog.Warn("No signing key configured, generated an ephemeral one")
		return jwt.NewService(cfg.VTNID)
	}
	return jwt.NewServiceFromFile(cfg.SigningKeyFile, cfg.VTNID)
}

// newDecider chains the configured VENs, the VENs enrolled in the database, the
// optional rego policy and the optional remote enrollment service.
func newDecider(ctx context.Context, cfg vtnconfig.Config, db *database.Database) (registration.Decider, error) {
	chain := registration.Chain{
		registration.NewStatic(seedRecords(cfg.Vens)),
		registration.NewEnrolled(db),
	}

	if cfg.RegistrationPolicyFile != "" {
		policy, err := registration.NewPolicyFromFile(ctx, cfg.RegistrationPolicyFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, policy)
		slog.Info("Registration policy loaded", "file", cfg.RegistrationPolicyFile)
	}

	if cfg.RegistrationServiceURL != "" {
		chain = append(chain, registration.NewRemote(ctx, registration.RemoteConfig{
			URL:          cfg.RegistrationServiceURL,
			TokenURL:     cfg.RegistrationTokenURL,
			ClientID:     cfg.RegistrationClientID,
			ClientSecret: cfg.RegistrationClientSecret,
			Scopes:       cfg.RegistrationScopes,
		}))
		slog.Info("Remote registration service enabled", "url", cfg.RegistrationServiceURL)
	}

	return chain, nil
}

func seedRecords(seeds []vtnconfig.VenSeed) []models.VenRecord {
	vens := make([]models.VenRecord, 0, len(seeds))
	for _, v := range seeds {
		vens = append(vens, models.VenRecord{
			VenID:          v.VenID,
			VenName:        v.VenName,
			Fingerprint:    v.Fingerprint,
			RegistrationID: v.RegistrationID,
		})
	}
	return vens
}

// Start opens the database and runs both servers until ctx is cancelled or one of them fails
func (s *Server) Start(ctx context.Context) error {
	if err := s.db.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer s.db.Close()

	if err := s.db.SeedVens(ctx, seedRecords(s.cfg.Vens)); err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			return err
		}
		defer s.redis.Close()
	}

	if s.cfg.SigningCertFile != "" {
		data, err := os.ReadFile(s.cfg.SigningCertFile)
		if err != nil {
			return errl.Errorf("failed to read signing certificate: %w", err)
		}
		fp, err := x509util.FingerprintPEM(data)
		if err != nil {
			return errl.Errorf("invalid signing certificate: %w", err)
		}
		slog.Info("VTN certificate", "fingerprint", fp)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.vtn.Start(ctx, s.cfg.ListenAddr); err != nil {
			errChan <- fmt.Errorf("vtn server failed: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.admin.Start(ctx, s.cfg.AdminListenAddr); err != nil {
			errChan <- fmt.Errorf("admin server failed: %w", err)
		}
	}()

	slog.Info("Servers started",
		"vtn_id", s.cfg.VTNID,
		"listen", s.cfg.ListenAddr,
		"admin_listen", s.cfg.AdminListenAddr,
		"prefix", s.cfg.PathPrefix,
		"poll_frequency", s.cfg.PollFrequency,
		"development", s.cfg.Development)

	var err error
	select {
	case err = <-errChan:
	case <-ctx.Done():
		slog.Info("Shutting down servers")
	}
	cancel()
	wg.Wait()
	return err
}
