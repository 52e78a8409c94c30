package vtn

import (
	"context"
	"log/slog"
	"strings"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
)

func (s *Server) createOpt(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CreateOpt](msg)
	if err != nil {
		return nil, err
	}

	sched, err := m.Schedule()
	if err != nil {
		return nil, openadr.NewProtocolError(openadr.CodeInvalidData, "invalid availability in opt %s: %v", m.OptID, err)
	}
	if sched.OptID == "" {
		return nil, openadr.NewProtocolError(openadr.CodeInvalidData, "optID is required")
	}
	sched.VenID = msg.VenID
	sched.CreatedAt = s.cfg.Now()

	if err := s.cfg.Store.CreateOpt(ctx, &sched); err != nil {
		return nil, errl.Errorf("failed to store opt %s: %w", sched.OptID, err)
	}

	slog.Info("Opt schedule created",
		"ven_id", msg.VenID, "opt_id", sched.OptID, "opt_type", sched.OptType, "windows", len(sched.Availability))
	return Raw{Type: openadr.MsgCreatedOpt, Body: &openadr.OptResult{OptID: sched.OptID}}, nil
}

func (s *Server) cancelOpt(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CancelOpt](msg)
	if err != nil {
		return nil, err
	}
	optID := strings.TrimSpace(m.OptID)

	deleted, err := s.cfg.Store.DeleteOpt(ctx, msg.VenID, optID)
	if err != nil {
		return nil, errl.Errorf("failed to delete opt %s: %w", optID, err)
	}
	if !deleted {
		return nil, openadr.NewProtocolError(openadr.CodeInvalidData, "unknown optID %s", optID)
	}

	slog.Info("Opt schedule cancelled", "ven_id", msg.VenID, "opt_id", optID)
	return Raw{Type: openadr.MsgCanceledOpt, Body: &openadr.OptResult{OptID: optID}}, nil
}
