// Package report negotiates the reports VENs offer and routes the samples they
// later send to report sinks.
package report

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

// metadataPrefix marks report names in oadrRegisterReport metadata reports.
const metadataPrefix = "METADATA_"

// Well-known report names.
const (
	ReportTelemetryUsage  = "TELEMETRY_USAGE"
	ReportTelemetryStatus = "TELEMETRY_STATUS"
)

// Category selects how the samples of a series are handled.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryUsage
	CategoryStatus
)

func (c Category) String() string {
	switch c {
	case CategoryUsage:
		return "usage"
	case CategoryStatus:
		return "status"
	default:
		return "generic"
	}
}

// NormalizeReportName strips a leading METADATA_ marker.
func NormalizeReportName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), metadataPrefix)
}

// Classify maps a report name, with or without the METADATA_ marker, to its category.
func Classify(reportName string) Category {
	switch NormalizeReportName(reportName) {
	case ReportTelemetryUsage:
		return CategoryUsage
	case ReportTelemetryStatus:
		return CategoryStatus
	default:
		return CategoryGeneric
	}
}

// Update is a batch of samples for one accepted series.
type Update struct {
	Category Category
	models.SampleSeries
	Samples []models.Sample
}

// Sink receives report updates.
type Sink interface {
	Update(ctx context.Context, u Update) error
}

// Binding is an accepted series: where its samples go and at which rate the VEN sends them.
type Binding struct {
	RID            string
	Category       Category
	SamplingPeriod time.Duration
	Series         models.SampleSeries
	sink           Sink
}

// Deliver hands samples of the bound series to its sink.
func (b Binding) Deliver(ctx context.Context, samples []models.Sample) error {
	if b.sink == nil || len(samples) == 0 {
		return nil
	}
	return b.sink.Update(ctx, Update{Category: b.Category, SampleSeries: b.Series, Samples: samples})
}

// Negotiator decides which offered series to accept.
type Negotiator struct {
	sink Sink
}

// NewNegotiator creates a negotiator whose bindings deliver to sink.
func NewNegotiator(sink Sink) *Negotiator {
	return &Negotiator{sink: sink}
}

// Negotiate returns one binding per usable descriptor, in offer order. Every usable
// descriptor is accepted, at the minimum sampling period the VEN offered. Descriptors
// without an r_id or a measurement are skipped.
func (n *Negotiator) Negotiate(venID string, reg models.ReportRegistration) []Binding {
	reportName := NormalizeReportName(reg.ReportName)
	category := Classify(reportName)

	var bindings []Binding
	for i, desc := range reg.Descriptors {
		if desc.RID == "" || desc.MeasurementName == "" {
			slog.Warn("Skipping report descriptor",
				"ven_id", venID,
				"report_specifier_id", reg.ReportSpecifierID,
				"index", i,
				"r_id", desc.RID,
				"reason", "missing r_id or measurement")
			continue
		}

		bindings = append(bindings, Binding{
			RID:            desc.RID,
			Category:       category,
			SamplingPeriod: desc.MinSamplingPeriod,
			Series: models.SampleSeries{
				VenID:             venID,
				ReportSpecifierID: reg.ReportSpecifierID,
				ReportName:        reportName,
				RID:               desc.RID,
				MeasurementName:   desc.MeasurementName,
				Unit:              desc.MeasurementUnit,
			},
			sink: n.sink,
		})
	}

	slog.Info("Negotiated report",
		"ven_id", venID,
		"report_specifier_id", reg.ReportSpecifierID,
		"report_name", reportName,
		"category", category.String(),
		"offered", len(reg.Descriptors),
		"accepted", len(bindings))
	return bindings
}
