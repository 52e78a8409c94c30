package vtn

import (
	"context"
	"log/slog"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
)

// bodyOf returns the typed message body.
func bodyOf[T any](msg *message) (*T, error) {
	b, ok := msg.Body.(*T)
	if !ok {
		return nil, errl.Errorf("%s: unexpected body %T", msg.Type, msg.Body)
	}
	return b, nil
}

// queryRegistration advertises the supported profiles and poll frequency
func (s *Server) queryRegistration(_ context.Context, _ *message) (Result, error) {
	return Raw{
		Type: openadr.MsgCreatedPartyRegistration,
		Body: &openadr.RegistrationInfo{
			PollFrequency: s.cfg.PollFrequency,
			Profiles:      openadr.DefaultProfiles(),
		},
	}, nil
}

// createPartyRegistration asks the decision hook whether to admit the VEN. An admitted
// VEN is stored with the fingerprint it registered with.
func (s *Server) createPartyRegistration(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CreatePartyRegistration](msg)
	if err != nil {
		return nil, err
	}

	profile := openadr.Profile{Name: m.ProfileName, Transports: []string{m.TransportName}}
	if profile.Name == "" {
		profile.Name = openadr.ProfileName
	}
	if m.TransportName == "" {
		profile.Transports = []string{openadr.TransportHTTP}
	}
	info := &openadr.RegistrationInfo{
		PollFrequency: s.cfg.PollFrequency,
		Profiles:      []openadr.Profile{profile},
	}
	rejected := Raw{Type: openadr.MsgCreatedPartyRegistration, Body: info}

	dec, err := s.cfg.Decider.Decide(ctx, m.Request(msg.Fingerprint))
	if err != nil {
		return nil, errl.Errorf("failed to decide registration of %s: %w", m.VenName, err)
	}
	if !dec.Accepted {
		slog.Info("Registration rejected", "ven_name", m.VenName, "ven_id", msg.VenID, "fingerprint", msg.Fingerprint)
		return rejected, nil
	}
	if !dec.Complete() {
		slog.Error("Registration decision lacks ven_id or registration_id, rejecting",
			"ven_name", m.VenName, "ven_id", dec.VenID, "registration_id", dec.RegistrationID)
		return rejected, nil
	}

	// A decision never rebinds a VEN enrolled with another certificate
	enrolled, err := s.cfg.Store.GetVen(ctx, dec.VenID)
	if err != nil {
		return nil, errl.Errorf("failed to load ven %s: %w", dec.VenID, err)
	}
	if enrolled != nil && enrolled.Fingerprint != "" && enrolled.Fingerprint != msg.Fingerprint {
		slog.Warn("Registration rejected: fingerprint differs from enrollment",
			"ven_id", dec.VenID, "ven_name", m.VenName, "presented", msg.Fingerprint, "enrolled", enrolled.Fingerprint)
		return rejected, nil
	}

	ven := models.VenRecord{
		VenID:          dec.VenID,
		VenName:        m.VenName,
		Fingerprint:    msg.Fingerprint,
		RegistrationID: dec.RegistrationID,
	}
	if err := s.cfg.Store.SaveVen(ctx, &ven); err != nil {
		return nil, errl.Errorf("failed to store registration of %s: %w", ven.VenID, err)
	}
	s.invalidate(ven.VenID)

	slog.Info("VEN registered",
		"ven_id", ven.VenID, "ven_name", ven.VenName, "registration_id", ven.RegistrationID, "fingerprint", ven.Fingerprint)

	if s.cfg.Notifier != nil {
		if err := s.cfg.Notifier.VenRegistered(ctx, ven); err != nil {
			slog.Warn("Failed to notify registration", "ven_id", ven.VenID, "error", err)
		}
	}

	info.RegistrationID = ven.RegistrationID
	return Raw{Type: openadr.MsgCreatedPartyRegistration, VenID: ven.VenID, Body: info}, nil
}

// cancelPartyRegistration clears the registration of a VEN and drops its report bindings
func (s *Server) cancelPartyRegistration(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CancelPartyRegistration](msg)
	if err != nil {
		return nil, err
	}

	ven, err := s.cfg.Store.GetVen(ctx, msg.VenID)
	if err != nil {
		return nil, errl.Errorf("failed to load ven %s: %w", msg.VenID, err)
	}
	if !ven.Registered() {
		return nil, openadr.NewProtocolError(openadr.CodeInvalidID, "VEN %s is not registered", msg.VenID)
	}
	if m.RegistrationID != ven.RegistrationID {
		return nil, openadr.NewProtocolError(openadr.CodeInvalidID,
			"registrationID %s does not belong to VEN %s", m.RegistrationID, msg.VenID)
	}

	if _, err := s.cfg.Store.SetRegistration(ctx, ven.VenID, ""); err != nil {
		return nil, errl.Errorf("failed to cancel registration of %s: %w", ven.VenID, err)
	}
	s.invalidate(ven.VenID)
	s.cfg.Subscriptions.Drop(ven.VenID)

	slog.Info("VEN registration cancelled", "ven_id", ven.VenID, "registration_id", ven.RegistrationID)

	if s.cfg.Notifier != nil {
		if err := s.cfg.Notifier.VenCancelled(ctx, ven.VenID, ven.RegistrationID); err != nil {
			slog.Warn("Failed to notify cancellation", "ven_id", ven.VenID, "error", err)
		}
	}

	return Raw{
		Type: openadr.MsgCanceledPartyRegistration,
		Body: &openadr.RegistrationInfo{RegistrationID: ven.RegistrationID},
	}, nil
}

func (s *Server) invalidate(venID string) {
	if s.cfg.Invalidator != nil {
		s.cfg.Invalidator.Invalidate(venID)
	}
}
