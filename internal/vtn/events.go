package vtn

import (
	"context"
	"log/slog"
	"strings"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
)

// currentEvents returns the events of a VEN that have not ended yet, cancelled ones included.
func (s *Server) currentEvents(ctx context.Context, venID string) ([]models.Event, error) {
	all, err := s.cfg.Store.ListEvents(ctx, venID)
	if err != nil {
		return nil, errl.Errorf("failed to list events of %s: %w", venID, err)
	}

	now := s.cfg.Now()
	var events []models.Event
	for _, e := range all {
		if !now.Before(e.Start().Add(e.Duration())) {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *Server) requestEvent(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.RequestEvent](msg)
	if err != nil {
		return nil, err
	}

	events, err := s.currentEvents(ctx, msg.VenID)
	if err != nil {
		return nil, err
	}
	if m.ReplyLimit > 0 && len(events) > m.ReplyLimit {
		events = events[:m.ReplyLimit]
	}
	return DistributeEvents{Events: events}, nil
}

// createdEvent records the opt decision of the VEN for each event it answers
func (s *Server) createdEvent(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CreatedEvent](msg)
	if err != nil {
		return nil, err
	}

	for _, er := range m.EventResponses {
		eventID := strings.TrimSpace(er.EventID)
		event, err := s.cfg.Store.GetEvent(ctx, eventID)
		if err != nil {
			return nil, errl.Errorf("failed to load event %s: %w", eventID, err)
		}
		if event == nil || event.VenID != msg.VenID {
			slog.Warn("Ignoring response to unknown event", "ven_id", msg.VenID, "event_id", eventID)
			continue
		}

		resp := models.EventResponse{
			VenID:              msg.VenID,
			EventID:            eventID,
			ModificationNumber: er.ModificationNumber,
			OptType:            strings.TrimSpace(er.OptType),
			ResponseCode:       er.ResponseCode,
			ReceivedAt:         s.cfg.Now(),
		}
		if err := s.cfg.Store.SaveEventResponse(ctx, &resp); err != nil {
			return nil, errl.Errorf("failed to store response to event %s: %w", eventID, err)
		}

		slog.Info("Event response received",
			"ven_id", msg.VenID, "event_id", eventID, "modification_number", resp.ModificationNumber, "opt_type", resp.OptType)

		if s.cfg.OnEventResponse != nil {
			s.cfg.OnEventResponse(ctx, resp)
		}
	}

	return Acknowledge{}, nil
}
