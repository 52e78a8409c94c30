package vtn

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
	"github.com/evidenceledger/oadrvtn/internal/report"
)

// registerReport negotiates every offered report and requests the accepted series
func (s *Server) registerReport(_ context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.RegisterReport](msg)
	if err != nil {
		return nil, err
	}

	var requests []models.ReportRequest
	for i := range m.Reports {
		reg := m.Reports[i].Registration()
		bindings := s.cfg.Negotiator.Negotiate(msg.VenID, reg)
		s.cfg.Subscriptions.Replace(msg.VenID, reg.ReportSpecifierID, bindings)
		requests = append(requests, reportRequests(reg.ReportSpecifierID, bindings)...)
	}

	return Raw{
		Type: openadr.MsgRegisteredReport,
		Body: &openadr.ReportRequests{RequestID: msg.RequestID, Requests: requests},
	}, nil
}

// reportRequests groups the bindings of one report by sampling period, so that
// every series is requested at exactly the period negotiated for it.
func reportRequests(specifierID string, bindings []report.Binding) []models.ReportRequest {
	var periods []time.Duration
	byPeriod := make(map[time.Duration][]string)
	for _, b := range bindings {
		if _, ok := byPeriod[b.SamplingPeriod]; !ok {
			periods = append(periods, b.SamplingPeriod)
		}
		byPeriod[b.SamplingPeriod] = append(byPeriod[b.SamplingPeriod], b.RID)
	}

	out := make([]models.ReportRequest, 0, len(periods))
	for _, p := range periods {
		out = append(out, models.ReportRequest{
			ReportRequestID:   uuid.NewString(),
			ReportSpecifierID: specifierID,
			Granularity:       p,
			ReportBackDur:     p,
			RIDs:              byPeriod[p],
		})
	}
	return out
}

// updateReport delivers report samples to the bindings of their series
func (s *Server) updateReport(ctx context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.UpdateReport](msg)
	if err != nil {
		return nil, err
	}

	for i := range m.Reports {
		r := &m.Reports[i]
		specifierID := strings.TrimSpace(r.ReportSpecifierID)
		samples := r.Samples()

		rIDs := make([]string, 0, len(samples))
		for rID := range samples {
			rIDs = append(rIDs, rID)
		}
		slices.Sort(rIDs)

		for _, rID := range rIDs {
			binding, ok := s.cfg.Subscriptions.Find(msg.VenID, specifierID, rID)
			if !ok {
				slog.Warn("Skipping samples of a series that was not negotiated",
					"ven_id", msg.VenID, "report_specifier_id", specifierID, "r_id", rID)
				continue
			}
			if err := binding.Deliver(ctx, samples[rID]); err != nil {
				return nil, errl.Errorf("failed to deliver samples of %s/%s: %w", msg.VenID, rID, err)
			}
		}
	}

	return Raw{Type: openadr.MsgUpdatedReport}, nil
}

// createReport answers a VEN asking for reports. This VTN offers none.
func (s *Server) createReport(_ context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CreateReport](msg)
	if err != nil {
		return nil, err
	}

	for _, rr := range m.ReportRequests {
		slog.Info("VEN requested a report the VTN does not offer",
			"ven_id", msg.VenID, "report_request_id", rr.ReportRequestID,
			"report_specifier_id", rr.Specifier.ReportSpecifierID)
	}

	return Raw{Type: openadr.MsgCreatedReport, Body: &openadr.PendingReports{}}, nil
}

// createdReport is the VEN confirming report requests
func (s *Server) createdReport(_ context.Context, msg *message) (Result, error) {
	m, err := bodyOf[openadr.CreatedReport](msg)
	if err != nil {
		return nil, err
	}
	slog.Debug("VEN confirmed report requests", "ven_id", msg.VenID, "pending", m.PendingReportIDs)
	return Acknowledge{}, nil
}

func (s *Server) requestReport(_ context.Context, msg *message) (Result, error) {
	slog.Debug("Report request acknowledged", "ven_id", msg.VenID)
	return Acknowledge{}, nil
}
