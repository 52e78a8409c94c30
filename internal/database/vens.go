package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

const venColumns = `ven_id, ven_name, fingerprint, registration_id, created_at, updated_at`

func scanVen(row interface{ Scan(...any) error }) (*models.VenRecord, error) {
	var v models.VenRecord
	if err := row.Scan(&v.VenID, &v.VenName, &v.Fingerprint, &v.RegistrationID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVen retrieves a VEN by id. It returns nil, nil when the VEN is unknown.
func (d *Database) GetVen(ctx context.Context, venID string) (*models.VenRecord, error) {
	query := `SELECT ` + venColumns + ` FROM vens WHERE ven_id = ?`

	ven, err := scanVen(d.db.QueryRowContext(ctx, query, venID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errl.Errorf("failed to get ven: %w", err)
	}

	return ven, nil
}

// GetVenByName retrieves a VEN by its self-declared name
func (d *Database) GetVenByName(ctx context.Context, venName string) (*models.VenRecord, error) {
	query := `SELECT ` + venColumns + ` FROM vens WHERE ven_name = ? ORDER BY created_at LIMIT 1`

	ven, err := scanVen(d.db.QueryRowContext(ctx, query, venName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errl.Errorf("failed to get ven by name: %w", err)
	}

	return ven, nil
}

// ListVens retrieves all VENs
func (d *Database) ListVens(ctx context.Context) ([]models.VenRecord, error) {
	query := `SELECT ` + venColumns + ` FROM vens ORDER BY ven_id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errl.Errorf("failed to list vens: %w", err)
	}
	defer rows.Close()

	var vens []models.VenRecord
	for rows.Next() {
		ven, err := scanVen(rows)
		if err != nil {
			return nil, errl.Errorf("failed to scan ven: %w", err)
		}
		vens = append(vens, *ven)
	}

	return vens, rows.Err()
}

// SaveVen creates or replaces a VEN record
func (d *Database) SaveVen(ctx context.Context, ven *models.VenRecord) error {
	query := `
		INSERT INTO vens (ven_id, ven_name, fingerprint, registration_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ven_id) DO UPDATE SET
			ven_name = excluded.ven_name,
			fingerprint = excluded.fingerprint,
			registration_id = excluded.registration_id,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := d.db.ExecContext(ctx, query, ven.VenID, ven.VenName, ven.Fingerprint, ven.RegistrationID)
	if err != nil {
		return errl.Errorf("failed to save ven: %w", err)
	}

	slog.Info("Saved VEN", "ven_id", ven.VenID, "ven_name", ven.VenName, "registered", ven.Registered())
	return nil
}

// SetRegistration changes the registration id of a VEN. An empty id cancels the registration.
// It reports whether the VEN exists.
func (d *Database) SetRegistration(ctx context.Context, venID, registrationID string) (bool, error) {
	query := `UPDATE vens SET registration_id = ?, updated_at = CURRENT_TIMESTAMP WHERE ven_id = ?`

	res, err := d.db.ExecContext(ctx, query, registrationID, venID)
	if err != nil {
		return false, errl.Errorf("failed to set registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errl.Errorf("failed to set registration: %w", err)
	}

	slog.Info("Updated VEN registration", "ven_id", venID, "registration_id", registrationID)
	return n > 0, nil
}

// DeleteVen deletes a VEN. It reports whether the VEN existed.
func (d *Database) DeleteVen(ctx context.Context, venID string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM vens WHERE ven_id = ?`, venID)
	if err != nil {
		return false, errl.Errorf("failed to delete ven: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errl.Errorf("failed to delete ven: %w", err)
	}

	slog.Info("Deleted VEN", "ven_id", venID)
	return n > 0, nil
}

// SeedVens adds the given VENs when they are not known yet. Existing records are left untouched,
// so registrations made at runtime survive a restart.
func (d *Database) SeedVens(ctx context.Context, vens []models.VenRecord) error {
	query := `
		INSERT INTO vens (ven_id, ven_name, fingerprint, registration_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ven_id) DO NOTHING
	`

	added := 0
	for _, ven := range vens {
		res, err := d.db.ExecContext(ctx, query, ven.VenID, ven.VenName, ven.Fingerprint, ven.RegistrationID)
		if err != nil {
			return errl.Errorf("failed to seed ven %s: %w", ven.VenID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if added > 0 {
		slog.Info("Seeded VENs", "count", added)
	} else {
		slog.Debug("Database already contains the configured VENs, skipping seed")
	}
	return nil
}
