package database

import (
	"context"
	"log/slog"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// SaveSamples appends samples of one report series in a single transaction
func (d *Database) SaveSamples(ctx context.Context, series models.SampleSeries, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errl.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_samples (ven_id, report_specifier_id, report_name, r_id, measurement, unit, ts, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errl.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.ExecContext(ctx,
			series.VenID, series.ReportSpecifierID, series.ReportName, series.RID,
			series.MeasurementName, series.Unit, s.Timestamp.UTC(), s.Value,
		)
		if err != nil {
			return errl.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errl.Errorf("failed to commit samples: %w", err)
	}

	slog.Debug("Stored report samples", "ven_id", series.VenID, "r_id", series.RID, "count", len(samples))
	return nil
}

// ListSamples returns the latest samples of a VEN series, newest first. A limit of 0 means no limit.
func (d *Database) ListSamples(ctx context.Context, venID, rID string, limit int) ([]models.StoredSample, error) {
	query := `
		SELECT ven_id, report_specifier_id, report_name, r_id, measurement, unit, ts, value
		FROM report_samples
		WHERE ven_id = ? AND r_id = ?
		ORDER BY ts DESC, id DESC
	`
	args := []any{venID, rID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errl.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var out []models.StoredSample
	for rows.Next() {
		var s models.StoredSample
		err := rows.Scan(
			&s.VenID, &s.ReportSpecifierID, &s.ReportName, &s.RID, &s.MeasurementName, &s.Unit,
			&s.Timestamp, &s.Value,
		)
		if err != nil {
			return nil, errl.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
