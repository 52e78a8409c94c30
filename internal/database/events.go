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

const eventColumns = `event_id, ven_id, modification_number, priority, market_context,
	signal_name, signal_type, signal_id, intervals, response_required, cancelled, created_at`

// CreateEvent stores a new event
func (d *Database) CreateEvent(ctx context.Context, e *models.Event) error {
	intervals, err := json.Marshal(e.Intervals)
	if err != nil {
		return errl.Errorf("failed to encode intervals: %w", err)
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = d.db.ExecContext(ctx, query,
		e.EventID, e.VenID, e.ModificationNumber, e.Priority, e.MarketContext,
		e.SignalName, e.SignalType, e.SignalID, string(intervals), e.ResponseRequired, e.Cancelled, e.CreatedAt.UTC(),
	)
	if err != nil {
		return errl.Errorf("failed to create event: %w", err)
	}

	slog.Info("Created event", "event_id", e.EventID, "ven_id", e.VenID, "signal", e.SignalName)
	return nil
}

// GetEvent retrieves an event by id. It returns nil, nil when not found.
func (d *Database) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_id = ?`

	e, err := scanEvent(d.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errl.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListEvents retrieves the events of a VEN, or of every VEN when venID is empty
func (d *Database) ListEvents(ctx context.Context, venID string) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if venID != "" {
		query += ` WHERE ven_id = ?`
		args = append(args, venID)
	}
	query += ` ORDER BY created_at, event_id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errl.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errl.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// CancelEvent marks an event cancelled and bumps its modification number.
// It returns the updated event, or nil when the event does not exist.
func (d *Database) CancelEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query := `
		UPDATE events
		SET cancelled = 1, modification_number = modification_number + 1
		WHERE event_id = ? AND cancelled = 0
	`
	if _, err := d.db.ExecContext(ctx, query, eventID); err != nil {
		return nil, errl.Errorf("failed to cancel event: %w", err)
	}

	slog.Info("Cancelled event", "event_id", eventID)
	return d.GetEvent(ctx, eventID)
}

// SaveEventResponse records a VEN's answer to an event
func (d *Database) SaveEventResponse(ctx context.Context, r *models.EventResponse) error {
	query := `
		INSERT INTO event_responses (ven_id, event_id, modification_number, opt_type, response_code, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		r.VenID, r.EventID, r.ModificationNumber, r.OptType, r.ResponseCode, r.ReceivedAt.UTC(),
	)
	if err != nil {
		return errl.Errorf("failed to save event response: %w", err)
	}
	return nil
}

// ListEventResponses retrieves the answers received for an event, oldest first
func (d *Database) ListEventResponses(ctx context.Context, eventID string) ([]models.EventResponse, error) {
	query := `
		SELECT ven_id, event_id, modification_number, opt_type, response_code, received_at
		FROM event_responses
		WHERE event_id = ?
		ORDER BY id
	`

	rows, err := d.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, errl.Errorf("failed to list event responses: %w", err)
	}
	defer rows.Close()

	var out []models.EventResponse
	for rows.Next() {
		var r models.EventResponse
		if err := rows.Scan(&r.VenID, &r.EventID, &r.ModificationNumber, &r.OptType, &r.ResponseCode, &r.ReceivedAt); err != nil {
			return nil, errl.Errorf("failed to scan event response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	var e models.Event
	var intervals string
	err := row.Scan(
		&e.EventID, &e.VenID, &e.ModificationNumber, &e.Priority, &e.MarketContext,
		&e.SignalName, &e.SignalType, &e.SignalID, &intervals, &e.ResponseRequired, &e.Cancelled, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(intervals), &e.Intervals); err != nil {
		return nil, errl.Errorf("failed to decode intervals: %w", err)
	}
	return &e, nil
}
