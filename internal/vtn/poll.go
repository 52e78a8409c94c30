package vtn

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
)

// poll hands the VEN its pending work without waiting: changed events first, then
// queued report requests, otherwise a plain acknowledgement.
func (s *Server) poll(ctx context.Context, msg *message) (Result, error) {
	if msg.VenID == "" {
		return Acknowledge{}, nil
	}

	updated, err := s.cfg.PollState.TakeEventsUpdated(ctx, msg.VenID)
	if err != nil {
		return nil, errl.Errorf("failed to read poll state of %s: %w", msg.VenID, err)
	}
	if updated {
		events, err := s.currentEvents(ctx, msg.VenID)
		if err != nil {
			// keep the flag so the next poll retries
			if markErr := s.cfg.PollState.MarkEventsUpdated(ctx, msg.VenID); markErr != nil {
				slog.Error("Failed to restore events flag", "ven_id", msg.VenID, "error", markErr)
			}
			return nil, err
		}
		slog.Debug("Distributing events on poll", "ven_id", msg.VenID, "events", len(events))
		return DistributeEvents{Events: events}, nil
	}

	requests, err := s.cfg.PollState.TakeReportRequests(ctx, msg.VenID)
	if err != nil {
		return nil, errl.Errorf("failed to read report requests of %s: %w", msg.VenID, err)
	}
	if len(requests) > 0 {
		slog.Debug("Sending report requests on poll", "ven_id", msg.VenID, "requests", len(requests))
		return Raw{
			Type: openadr.MsgCreateReport,
			Body: &openadr.ReportRequests{RequestID: uuid.NewString(), Requests: requests},
		}, nil
	}

	return Acknowledge{}, nil
}
