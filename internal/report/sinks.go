package report

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, u Update) error

// Update calls f.
func (f SinkFunc) Update(ctx context.Context, u Update) error {
	return f(ctx, u)
}

// LogSink writes every sample to the log.
type LogSink struct {
	Logger *slog.Logger
}

// Update logs the samples, one line each.
func (s LogSink) Update(ctx context.Context, u Update) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, sample := range u.Samples {
		logger.InfoContext(ctx, "Report sample",
			"category", u.Category.String(),
			"ven_id", u.VenID,
			"report_name", u.ReportName,
			"r_id", u.RID,
			"report_specifier_id", u.ReportSpecifierID,
			"measurement", u.MeasurementName,
			"value", sample.Value,
			"unit", u.Unit,
			"ts", sample.Timestamp)
	}
	return nil
}

// SampleStore persists samples, implemented by the database.
type SampleStore interface {
	SaveSamples(ctx context.Context, series models.SampleSeries, samples []models.Sample) error
}

// StoreSink persists samples.
type StoreSink struct {
	Store SampleStore
}

// Update saves the samples.
func (s StoreSink) Update(ctx context.Context, u Update) error {
	if err := s.Store.SaveSamples(ctx, u.SampleSeries, u.Samples); err != nil {
		return errl.Errorf("failed to store report samples: %w", err)
	}
	return nil
}

// MultiSink delivers each update to all sinks, in order, and joins their errors.
type MultiSink []Sink

// Update fans out to all sinks.
func (m MultiSink) Update(ctx context.Context, u Update) error {
	var errs []error
	for _, s := range m {
		if err := s.Update(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
