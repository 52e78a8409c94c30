// Package auth decides whether a message may act on behalf of the VEN it names,
// by comparing the fingerprint of the proxy-forwarded client certificate with the
// fingerprint the registry holds for that VEN.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/registry"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
)

// Reasons returned to the caller. They never include fingerprints.
const (
	ReasonInvalidCertificate  = "missing or invalid client certificate"
	ReasonUnknownVen          = "unknown VEN or VTN does not have its fingerprint on file"
	ReasonFingerprintMismatch = "fingerprint mismatch"
)

// NotAuthorizedError rejects a request with HTTP 403. Reason is safe to return to the
// client; Detail is for the server log only.
type NotAuthorizedError struct {
	Reason string
	Detail string
}

func (e *NotAuthorizedError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// Authenticate checks the client certificate header against the registry record of venID.
// Messages without a VEN id are not authenticated and always pass. A nil registry
// rejects every VEN id.
func Authenticate(ctx context.Context, certHeader, venID string, reg registry.Port) error {
	if venID == "" {
		return nil
	}

	// Fingerprint of the connection, as forwarded by the proxy
	actual, err := x509util.FingerprintFromHeader(certHeader)
	if err != nil {
		return &NotAuthorizedError{
			Reason: ReasonInvalidCertificate,
			Detail: fmt.Sprintf("ven_id %s: %v", venID, err),
		}
	}

	if reg == nil {
		return &NotAuthorizedError{
			Reason: ReasonUnknownVen,
			Detail: fmt.Sprintf("ven_id %s: no VEN registry configured", venID),
		}
	}

	// Fingerprint on file for the claimed VEN
	ven, err := reg.Lookup(ctx, venID)
	if err != nil {
		return errl.Errorf("failed to look up ven %s: %w", venID, err)
	}
	if ven == nil || ven.Fingerprint == "" {
		return &NotAuthorizedError{
			Reason: ReasonUnknownVen,
			Detail: fmt.Sprintf("ven_id %s: presented fingerprint %s", venID, actual),
		}
	}

	// Exact comparison: no case or delimiter normalization
	if actual != ven.Fingerprint {
		return &NotAuthorizedError{
			Reason: ReasonFingerprintMismatch,
			Detail: fmt.Sprintf("ven_id %s: connection fingerprint %s does not match %s on file", venID, actual, ven.Fingerprint),
		}
	}

	slog.Debug("VEN authenticated", "ven_id", venID)
	return nil
}
