package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/registry"
	"github.com/evidenceledger/oadrvtn/internal/testutil"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
)

func staticRegistry(vens ...models.VenRecord) registry.Port {
	return registry.Func(func(_ context.Context, venID string) (*models.VenRecord, error) {
		for i := range vens {
			if vens[i].VenID == venID {
				return &vens[i], nil
			}
		}
		return nil, nil
	})
}

func TestAuthenticate(t *testing.T) {
	good := testutil.NewCertificate(t, "ven_001")
	other := testutil.NewCertificate(t, "ven_001")
	fp := x509util.Fingerprint(good.Cert)

	reg := staticRegistry(
		models.VenRecord{VenID: "ven_001", Fingerprint: fp, RegistrationID: "reg"},
		models.VenRecord{VenID: "ven_nofp", RegistrationID: "reg"},
		models.VenRecord{VenID: "ven_lower", Fingerprint: strings.ToLower(fp), RegistrationID: "reg"},
	)

	tests := []struct {
		name       string
		header     string
		venID      string
		reg        registry.Port
		wantReason string
	}{
		{"matching encoded", good.Header(), "ven_001", reg, ""},
		{"matching plain", good.PEM, "ven_001", reg, ""},
		{"no ven id skips", "", "", reg, ""},
		{"missing header", "", "ven_001", reg, ReasonInvalidCertificate},
		{"malformed header", "garbage", "ven_001", reg, ReasonInvalidCertificate},
		{"unknown ven", good.Header(), "ven_404", reg, ReasonUnknownVen},
		{"no fingerprint on file", good.Header(), "ven_nofp", reg, ReasonUnknownVen},
		{"no registry", good.Header(), "ven_001", nil, ReasonUnknownVen},
		{"other certificate", other.Header(), "ven_001", reg, ReasonFingerprintMismatch},
		{"case differs", good.Header(), "ven_lower", reg, ReasonFingerprintMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authenticate(context.Background(), tt.header, tt.venID, tt.reg)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}

			var nae *NotAuthorizedError
			require.True(t, errors.As(err, &nae), "got %v", err)
			assert.Equal(t, tt.wantReason, nae.Reason)
			assert.NotEmpty(t, nae.Detail)
		})
	}
}

func TestMismatchDetailNamesBothFingerprints(t *testing.T) {
	good := testutil.NewCertificate(t, "ven_001")
	other := testutil.NewCertificate(t, "ven_001")
	fp := x509util.Fingerprint(good.Cert)

	err := Authenticate(context.Background(), other.Header(), "ven_001",
		staticRegistry(models.VenRecord{VenID: "ven_001", Fingerprint: fp}))

	var nae *NotAuthorizedError
	require.True(t, errors.As(err, &nae))
	assert.Contains(t, nae.Detail, fp)
	assert.Contains(t, nae.Detail, x509util.Fingerprint(other.Cert))
	assert.NotContains(t, nae.Reason, fp)
}

func TestLookupErrorIsInternal(t *testing.T) {
	good := testutil.NewCertificate(t, "ven_001")
	reg := registry.Func(func(context.Context, string) (*models.VenRecord, error) {
		return nil, errors.New("store down")
	})

	err := Authenticate(context.Background(), good.Header(), "ven_001", reg)
	require.Error(t, err)

	var nae *NotAuthorizedError
	assert.False(t, errors.As(err, &nae))
}
