package admin

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
	"github.com/evidenceledger/oadrvtn/internal/report"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
)

// venRequest enrolls a VEN out of band. The fingerprint is taken from Certificate when given.
type venRequest struct {
	VenID          string `json:"ven_id"`
	VenName        string `json:"ven_name"`
	Fingerprint    string `json:"fingerprint"`
	Certificate    string `json:"certificate"`
	RegistrationID string `json:"registration_id"`
}

type bindingView struct {
	RID               string `json:"r_id"`
	ReportSpecifierID string `json:"report_specifier_id"`
	ReportName        string `json:"report_name"`
	Category          string `json:"category"`
	MeasurementName   string `json:"measurement_name"`
	Unit              string `json:"unit"`
	SamplingPeriod    string `json:"sampling_period"`
}

func bindingViews(bindings []report.Binding) []bindingView {
	views := make([]bindingView, 0, len(bindings))
	for _, b := range bindings {
		views = append(views, bindingView{
			RID:               b.RID,
			ReportSpecifierID: b.Series.ReportSpecifierID,
			ReportName:        b.Series.ReportName,
			Category:          b.Category.String(),
			MeasurementName:   b.Series.MeasurementName,
			Unit:              b.Series.Unit,
			SamplingPeriod:    openadr.FormatDuration(b.SamplingPeriod),
		})
	}
	return views
}

// ListVens lists every known VEN
func (s *Server) ListVens(c *fiber.Ctx) error {
	vens, err := s.db.ListVens(c.UserContext())
	if err != nil {
		return err
	}
	if vens == nil {
		vens = []models.VenRecord{}
	}
	return c.JSON(vens)
}

// GetVen returns a VEN with its negotiated reports, events and opt schedules
func (s *Server) GetVen(c *fiber.Ctx) error {
	ctx := c.UserContext()
	venID := utils.CopyString(c.Params("id"))

	ven, err := s.db.GetVen(ctx, venID)
	if err != nil {
		return err
	}
	if ven == nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown ven "+venID)
	}

	events, err := s.db.ListEvents(ctx, venID)
	if err != nil {
		return err
	}
	opts, err := s.db.ListOpts(ctx, venID)
	if err != nil {
		return err
	}
	if opts == nil {
		opts = []models.OptSchedule{}
	}

	return c.JSON(fiber.Map{
		"ven":     ven,
		"reports": bindingViews(s.vtn.Bindings(venID)),
		"events":  s.eventViews(events),
		"opts":    opts,
	})
}

// SaveVen creates or replaces a VEN record
func (s *Server) SaveVen(c *fiber.Ctx) error {
	var req venRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ven := models.VenRecord{
		VenID:          strings.TrimSpace(req.VenID),
		VenName:        strings.TrimSpace(req.VenName),
		Fingerprint:    strings.TrimSpace(req.Fingerprint),
		RegistrationID: strings.TrimSpace(req.RegistrationID),
	}
	if ven.VenID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "ven_id is required")
	}
	if req.Certificate != "" {
		fp, err := x509util.FingerprintPEM([]byte(req.Certificate))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid certificate: "+err.Error())
		}
		if ven.Fingerprint != "" && ven.Fingerprint != fp {
			return fiber.NewError(fiber.StatusBadRequest, "fingerprint does not match certificate")
		}
		ven.Fingerprint = fp
	}

	if err := s.db.SaveVen(c.UserContext(), &ven); err != nil {
		return errl.Errorf("failed to save ven %s: %w", ven.VenID, err)
	}
	s.invalidate(ven.VenID)

	slog.Info("VEN enrolled", "ven_id", ven.VenID, "ven_name", ven.VenName, "fingerprint", ven.Fingerprint, "registered", ven.Registered())

	saved, err := s.db.GetVen(c.UserContext(), ven.VenID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

// DeleteVen removes a VEN. Its next message is answered with a reregistration request.
func (s *Server) DeleteVen(c *fiber.Ctx) error {
	venID := utils.CopyString(c.Params("id"))

	deleted, err := s.db.DeleteVen(c.UserContext(), venID)
	if err != nil {
		return err
	}
	if !deleted {
		return fiber.NewError(fiber.StatusNotFound, "unknown ven "+venID)
	}
	s.invalidate(venID)

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) invalidate(venID string) {
	if s.registry != nil {
		s.registry.Invalidate(venID)
	}
}
