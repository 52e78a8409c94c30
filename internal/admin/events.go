package admin

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
	"github.com/evidenceledger/oadrvtn/internal/report"
)

// intervalRequest is one event interval. Duration is an ISO 8601 duration such as PT1H.
type intervalRequest struct {
	Start    time.Time `json:"dtstart"`
	Duration string    `json:"duration"`
	Payload  float64   `json:"signal_payload"`
}

type eventRequest struct {
	EventID          string            `json:"event_id"`
	VenID            string            `json:"ven_id"`
	Priority         int               `json:"priority"`
	MarketContext    string            `json:"market_context"`
	SignalName       string            `json:"signal_name"`
	SignalType       string            `json:"signal_type"`
	ResponseRequired string            `json:"response_required"`
	Intervals        []intervalRequest `json:"intervals"`
}

type intervalView struct {
	Start    time.Time `json:"dtstart"`
	Duration string    `json:"duration"`
	Payload  float64   `json:"signal_payload"`
}

type eventView struct {
	EventID            string         `json:"event_id"`
	VenID              string         `json:"ven_id"`
	ModificationNumber int            `json:"modification_number"`
	Priority           int            `json:"priority"`
	MarketContext      string         `json:"market_context,omitempty"`
	SignalName         string         `json:"signal_name"`
	SignalType         string         `json:"signal_type"`
	Status             string         `json:"status"`
	Start              time.Time      `json:"dtstart"`
	Duration           string         `json:"duration"`
	Intervals          []intervalView `json:"intervals"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (s *Server) eventView(e models.Event) eventView {
	v := eventView{
		EventID:            e.EventID,
		VenID:              e.VenID,
		ModificationNumber: e.ModificationNumber,
		Priority:           e.Priority,
		MarketContext:      e.MarketContext,
		SignalName:         e.SignalName,
		SignalType:         e.SignalType,
		Status:             e.Status(s.cfg.Now()),
		Start:              e.Start(),
		Duration:           openadr.FormatDuration(e.Duration()),
		CreatedAt:          e.CreatedAt,
	}
	for _, iv := range e.Intervals {
		v.Intervals = append(v.Intervals, intervalView{
			Start:    iv.Start,
			Duration: openadr.FormatDuration(iv.Duration),
			Payload:  iv.Payload,
		})
	}
	return v
}

func (s *Server) eventViews(events []models.Event) []eventView {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, s.eventView(e))
	}
	return views
}

// AddEvent creates an event for a VEN; the VEN receives it on its next poll
func (s *Server) AddEvent(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	e := models.Event{
		EventID:          strings.TrimSpace(req.EventID),
		VenID:            strings.TrimSpace(req.VenID),
		Priority:         req.Priority,
		MarketContext:    req.MarketContext,
		SignalName:       req.SignalName,
		SignalType:       req.SignalType,
		ResponseRequired: req.ResponseRequired,
	}
	if e.VenID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "ven_id is required")
	}
	if len(req.Intervals) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one interval is required")
	}

	// Intervals without dtstart follow the previous one
	next := s.cfg.Now().UTC()
	for i, iv := range req.Intervals {
		d, err := openadr.ParseDuration(iv.Duration)
		if err != nil || d <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("intervals[%d]: invalid duration %q", i, iv.Duration))
		}
		start := iv.Start
		if start.IsZero() {
			start = next
		}
		e.Intervals = append(e.Intervals, models.EventInterval{Start: start, Duration: d, Payload: iv.Payload})
		next = start.Add(d)
	}

	ven, err := s.db.GetVen(ctx, e.VenID)
	if err != nil {
		return err
	}
	if ven == nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown ven "+e.VenID)
	}

	if err := s.vtn.AddEvent(ctx, &e); err != nil {
		return errl.Errorf("failed to add event for %s: %w", e.VenID, err)
	}

	slog.Info("Event added", "event_id", e.EventID, "ven_id", e.VenID, "start", e.Start(), "duration", e.Duration())
	return c.Status(fiber.StatusCreated).JSON(s.eventView(e))
}

// CancelEvent cancels an event; the VEN receives the cancellation on its next poll
func (s *Server) CancelEvent(c *fiber.Ctx) error {
	eventID := utils.CopyString(c.Params("id"))

	e, err := s.vtn.CancelEvent(c.UserContext(), eventID)
	if err != nil {
		return err
	}
	if e == nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown event "+eventID)
	}
	return c.JSON(s.eventView(*e))
}

type reportRequestBody struct {
	ReportRequestID    string   `json:"report_request_id"`
	ReportSpecifierID  string   `json:"report_specifier_id"`
	Granularity        string   `json:"granularity"`
	ReportBackDuration string   `json:"report_back_duration"`
	RIDs               []string `json:"r_ids"`
}

// RequestReport queues an oadrCreateReport for the VEN's next poll
func (s *Server) RequestReport(c *fiber.Ctx) error {
	ctx := c.UserContext()
	venID := utils.CopyString(c.Params("id"))

	var body reportRequestBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if body.ReportSpecifierID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "report_specifier_id is required")
	}

	req := models.ReportRequest{
		ReportRequestID:   body.ReportRequestID,
		ReportSpecifierID: body.ReportSpecifierID,
		RIDs:              body.RIDs,
	}
	var err error
	if body.Granularity != "" {
		if req.Granularity, err = openadr.ParseDuration(body.Granularity); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid granularity "+body.Granularity)
		}
	}
	if body.ReportBackDuration != "" {
		if req.ReportBackDur, err = openadr.ParseDuration(body.ReportBackDuration); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid report_back_duration "+body.ReportBackDuration)
		}
	}

	ven, err := s.db.GetVen(ctx, venID)
	if err != nil {
		return err
	}
	if !ven.Registered() {
		return fiber.NewError(fiber.StatusNotFound, "ven "+venID+" is not registered")
	}

	if len(req.RIDs) == 0 && !hasSeries(s.vtn.Bindings(venID), req.ReportSpecifierID) {
		return fiber.NewError(fiber.StatusBadRequest, "no r_ids given and none negotiated for "+req.ReportSpecifierID)
	}

	req, err = s.vtn.RequestReport(ctx, venID, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"report_request_id":    req.ReportRequestID,
		"report_specifier_id":  req.ReportSpecifierID,
		"granularity":          openadr.FormatDuration(req.Granularity),
		"report_back_duration": openadr.FormatDuration(req.ReportBackDur),
		"r_ids":                req.RIDs,
	})
}

func hasSeries(bindings []report.Binding, specifierID string) bool {
	for _, b := range bindings {
		if b.Series.ReportSpecifierID == specifierID {
			return true
		}
	}
	return false
}
