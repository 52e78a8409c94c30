// Package registration decides whether a VEN asking to register is admitted, and
// under which ven_id and registration_id.
package registration

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Decision is the outcome of a registration request. A rejected decision carries no ids.
// A vetoed decision is final: no later decider in a Chain is asked.
type Decision struct {
	Accepted       bool   `json:"accept"`
	VenID          string `json:"ven_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Vetoed         bool   `json:"-"`
}

// Complete reports whether an accepted decision carries both ids.
func (d Decision) Complete() bool {
	return d.Accepted && d.VenID != "" && d.RegistrationID != ""
}

// Decider is the registration decision hook.
type Decider interface {
	Decide(ctx context.Context, req models.RegistrationRequest) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, req models.RegistrationRequest) (Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, req models.RegistrationRequest) (Decision, error) {
	return f(ctx, req)
}

// Static admits the VENs enrolled in configuration, matched by ven_id or by name.
// When the enrolled VEN has a fingerprint, the presented one must match it.
type Static struct {
	vens []models.VenRecord
}

// NewStatic creates a Static decider over the given VENs.
func NewStatic(vens []models.VenRecord) *Static {
	return &Static{vens: vens}
}

func (s *Static) Decide(_ context.Context, req models.RegistrationRequest) (Decision, error) {
	for _, ven := range s.vens {
		if (req.VenID != "" && req.VenID == ven.VenID) || (req.VenName != "" && req.VenName == ven.VenName) {
			return admit(ven, req), nil
		}
	}

	slog.Info("Registration rejected: VEN not enrolled", "ven_id", req.VenID, "ven_name", req.VenName)
	return Decision{}, nil
}

// EnrollmentStore finds VENs enrolled at runtime, implemented by the database.
type EnrollmentStore interface {
	GetVen(ctx context.Context, venID string) (*models.VenRecord, error)
	GetVenByName(ctx context.Context, venName string) (*models.VenRecord, error)
}

// Enrolled admits the VENs found in a store, with the same rules as Static.
type Enrolled struct {
	store EnrollmentStore
}

// NewEnrolled creates an Enrolled decider.
func NewEnrolled(store EnrollmentStore) *Enrolled {
	return &Enrolled{store: store}
}

func (e *Enrolled) Decide(ctx context.Context, req models.RegistrationRequest) (Decision, error) {
	var ven *models.VenRecord
	var err error
	if req.VenID != "" {
		if ven, err = e.store.GetVen(ctx, req.VenID); err != nil {
			return Decision{}, err
		}
	}
	if ven == nil && req.VenName != "" {
		if ven, err = e.store.GetVenByName(ctx, req.VenName); err != nil {
			return Decision{}, err
		}
	}
	if ven == nil {
		slog.Debug("Registration not decided: VEN not in store", "ven_id", req.VenID, "ven_name", req.VenName)
		return Decision{}, nil
	}
	return admit(*ven, req), nil
}

// admit accepts req for an enrolled VEN unless the presented fingerprint differs from the enrolled one.
// The enrolled registration id is reused, otherwise a new one is generated.
func admit(ven models.VenRecord, req models.RegistrationRequest) Decision {
	if ven.Fingerprint != "" && ven.Fingerprint != req.Fingerprint {
		slog.Warn("Registration rejected: fingerprint differs from enrollment",
			"ven_id", ven.VenID, "ven_name", req.VenName, "presented", req.Fingerprint, "enrolled", ven.Fingerprint)
		return Decision{Vetoed: true}
	}

	regID := ven.RegistrationID
	if regID == "" {
		regID = uuid.NewString()
	}
	return Decision{Accepted: true, VenID: ven.VenID, RegistrationID: regID}
}

// Chain asks each decider in turn. The first acceptance wins; a veto or an error ends the chain.
type Chain []Decider

func (c Chain) Decide(ctx context.Context, req models.RegistrationRequest) (Decision, error) {
	for _, d := range c {
		dec, err := d.Decide(ctx, req)
		if err != nil {
			return Decision{}, err
		}
		if dec.Vetoed {
			return Decision{Vetoed: true}, nil
		}
		if dec.Accepted {
			return dec, nil
		}
	}
	return Decision{}, nil
}
