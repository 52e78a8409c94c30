package vtn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/report"
)

// Event defaults for operator-created events.
const (
	DefaultSignalName = "SIMPLE"
	DefaultSignalType = "level"
)

// AddEvent stores a new event and flags it for the target VEN's next poll.
// Missing ids are generated.
func (s *Server) AddEvent(ctx context.Context, e *models.Event) error {
	if e.VenID == "" {
		return errors.New("event must target a ven_id")
	}
	if len(e.Intervals) == 0 {
		return errors.New("event needs at least one interval")
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.SignalID == "" {
		e.SignalID = uuid.NewString()
	}
	if e.SignalName == "" {
		e.SignalName = DefaultSignalName
	}
	if e.SignalType == "" {
		e.SignalType = DefaultSignalType
	}
	if e.ResponseRequired == "" {
		e.ResponseRequired = "always"
	}
	e.CreatedAt = s.cfg.Now()

	if err := s.cfg.Store.CreateEvent(ctx, e); err != nil {
		return errl.Errorf("failed to add event: %w", err)
	}
	if err := s.cfg.PollState.MarkEventsUpdated(ctx, e.VenID); err != nil {
		return errl.Errorf("failed to flag events of %s: %w", e.VenID, err)
	}
	return nil
}

// CancelEvent marks an event cancelled and flags it for the VEN's next poll.
// It returns nil when the event does not exist.
func (s *Server) CancelEvent(ctx context.Context, eventID string) (*models.Event, error) {
	e, err := s.cfg.Store.CancelEvent(ctx, eventID)
	if err != nil {
		return nil, errl.Errorf("failed to cancel event %s: %w", eventID, err)
	}
	if e == nil {
		return nil, nil
	}
	if err := s.cfg.PollState.MarkEventsUpdated(ctx, e.VenID); err != nil {
		return nil, errl.Errorf("failed to flag events of %s: %w", e.VenID, err)
	}

	slog.Info("Event cancelled", "event_id", eventID, "ven_id", e.VenID, "modification_number", e.ModificationNumber)
	return e, nil
}

// RequestReport queues a report request that the VEN receives as oadrCreateReport on its next poll.
func (s *Server) RequestReport(ctx context.Context, venID string, req models.ReportRequest) (models.ReportRequest, error) {
	if req.ReportSpecifierID == "" {
		return req, errors.New("report_specifier_id is required")
	}
	if req.ReportRequestID == "" {
		req.ReportRequestID = uuid.NewString()
	}
	if len(req.RIDs) == 0 {
		for _, b := range s.cfg.Subscriptions.List(venID) {
			if b.Series.ReportSpecifierID == req.ReportSpecifierID {
				req.RIDs = append(req.RIDs, b.RID)
			}
		}
	}
	if len(req.RIDs) == 0 {
		return req, fmt.Errorf("no series negotiated with %s for %s", venID, req.ReportSpecifierID)
	}

	if err := s.cfg.PollState.PushReportRequest(ctx, venID, req); err != nil {
		return req, errl.Errorf("failed to queue report request for %s: %w", venID, err)
	}

	slog.Info("Report request queued", "ven_id", venID, "report_request_id", req.ReportRequestID, "report_specifier_id", req.ReportSpecifierID)
	return req, nil
}

// Bindings lists the report series negotiated with a VEN.
func (s *Server) Bindings(venID string) []report.Binding {
	return s.cfg.Subscriptions.List(venID)
}
