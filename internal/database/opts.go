package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// CreateOpt stores an opt schedule. An existing schedule with the same id is replaced.
func (d *Database) CreateOpt(ctx context.Context, opt *models.OptSchedule) error {
	availability, err := json.Marshal(opt.Availability)
	if err != nil {
		return errl.Errorf("failed to encode availability: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO opt_schedules (
			opt_id, ven_id, opt_type, opt_reason, market_context, event_id, availability, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(ctx, query,
		opt.OptID, opt.VenID, opt.OptType, opt.OptReason, opt.MarketContext, opt.EventID, string(availability), opt.CreatedAt.UTC(),
	)
	if err != nil {
		return errl.Errorf("failed to create opt schedule: %w", err)
	}

	slog.Debug("Created opt schedule", "ven_id", opt.VenID, "opt_id", opt.OptID, "opt_type", opt.OptType)
	return nil
}

// GetOpt retrieves an opt schedule of a VEN. It returns nil, nil when not found.
func (d *Database) GetOpt(ctx context.Context, venID, optID string) (*models.OptSchedule, error) {
	query := `
		SELECT opt_id, ven_id, opt_type, opt_reason, market_context, event_id, availability, created_at
		FROM opt_schedules
		WHERE ven_id = ? AND opt_id = ?
	`

	opt, err := scanOpt(d.db.QueryRowContext(ctx, query, venID, optID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errl.Errorf("failed to get opt schedule: %w", err)
	}
	return opt, nil
}

// ListOpts retrieves the opt schedules of a VEN
func (d *Database) ListOpts(ctx context.Context, venID string) ([]models.OptSchedule, error) {
	query := `
		SELECT opt_id, ven_id, opt_type, opt_reason, market_context, event_id, availability, created_at
		FROM opt_schedules
		WHERE ven_id = ?
		ORDER BY created_at
	`

	rows, err := d.db.QueryContext(ctx, query, venID)
	if err != nil {
		return nil, errl.Errorf("failed to list opt schedules: %w", err)
	}
	defer rows.Close()

	var opts []models.OptSchedule
	for rows.Next() {
		opt, err := scanOpt(rows)
		if err != nil {
			return nil, errl.Errorf("failed to scan opt schedule: %w", err)
		}
		opts = append(opts, *opt)
	}
	return opts, rows.Err()
}

// DeleteOpt deletes an opt schedule of a VEN. It reports whether the schedule existed.
func (d *Database) DeleteOpt(ctx context.Context, venID, optID string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM opt_schedules WHERE ven_id = ? AND opt_id = ?`, venID, optID)
	if err != nil {
		return false, errl.Errorf("failed to delete opt schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errl.Errorf("failed to delete opt schedule: %w", err)
	}

	slog.Debug("Deleted opt schedule", "ven_id", venID, "opt_id", optID, "found", n > 0)
	return n > 0, nil
}

func scanOpt(row interface{ Scan(...any) error }) (*models.OptSchedule, error) {
	var opt models.OptSchedule
	var availability string
	err := row.Scan(
		&opt.OptID, &opt.VenID, &opt.OptType, &opt.OptReason, &opt.MarketContext, &opt.EventID,
		&availability, &opt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(availability), &opt.Availability); err != nil {
		return nil, errl.Errorf("failed to decode availability: %w", err)
	}
	return &opt, nil
}
