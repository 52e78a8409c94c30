package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/database"
	"github.com/evidenceledger/oadrvtn/internal/jwt"
	"github.com/evidenceledger/oadrvtn/internal/middleware"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
	"github.com/evidenceledger/oadrvtn/internal/pollstate"
	"github.com/evidenceledger/oadrvtn/internal/registration"
	"github.com/evidenceledger/oadrvtn/internal/registry"
	"github.com/evidenceledger/oadrvtn/internal/report"
	"github.com/evidenceledger/oadrvtn/internal/testutil"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
	"github.com/evidenceledger/oadrvtn/internal/vtn"
)

const (
	testVTNID    = "vtn_test"
	testPassword = "correct horse"
	testPrefix   = "/OpenADR2/Simple/2.0b"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fixture struct {
	admin *Server
	vtn   *vtn.Server
	db    *database.Database
	state *pollstate.Memory
	cert  testutil.Certificate // presented by ven_001
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := database.New(filepath.Join(t.TempDir(), "vtn.db"))
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	signer, err := jwt.NewService(testVTNID)
	require.NoError(t, err)

	f := &fixture{
		db:    db,
		state: pollstate.NewMemory(),
		cert:  testutil.NewCertificate(t, "ven123"),
	}
	require.NoError(t, db.SeedVens(context.Background(), []models.VenRecord{
		{VenID: "ven_001", VenName: "ven123", Fingerprint: x509util.Fingerprint(f.cert.Cert), RegistrationID: "reg_id_123"},
	}))

	reg := registry.NewCached(registry.FromDatabase(db), time.Minute)
	f.vtn, err = vtn.New(vtn.Config{
		VTNID:       testVTNID,
		PathPrefix:  testPrefix,
		Registry:    reg,
		Invalidator: reg,
		Store:       db,
		Decider:     registration.NewStatic(nil),
		Negotiator:  report.NewNegotiator(report.LogSink{}),
		PollState:   f.state,
		Signer:      signer,
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)

	auth, err := middleware.NewAdminAuth(testPassword, signer)
	require.NoError(t, err)

	f.admin, err = New(db, auth, signer, f.vtn, reg, Config{
		VTNID:    testVTNID,
		TokenTTL: 10 * time.Minute,
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return f
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), string(r.body))
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.admin.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	res := f.do(t, http.MethodPost, "/admin/login", map[string]string{"password": testPassword}, "")
	require.Equal(t, http.StatusOK, res.status, string(res.body))

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	res.decode(t, &out)
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, 600, out.ExpiresIn)
	return out.AccessToken
}

// poll sends an oadrPoll for venID to the VTN app and returns the reply message type.
func (f *fixture) poll(t *testing.T, venID string, cert testutil.Certificate) string {
	t.Helper()
	return f.openadr(t, "OadrPoll", testutil.PollXML(venID), cert)
}

func (f *fixture) openadr(t *testing.T, service string, body []byte, cert testutil.Certificate) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, testPrefix+"/"+service, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set(vtn.CertHeader, cert.Header())

	resp, err := f.vtn.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	return messageType(t, data)
}

// messageType returns the name of the element inside oadrSignedObject.
func messageType(t *testing.T, body []byte) string {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(body))
	depth := 0
	for {
		tok, err := dec.Token()
		require.NoError(t, err, "no message element")
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 3 {
				return el.Name.Local
			}
		case xml.EndElement:
			depth--
		}
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, "/admin/login", map[string]string{"password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.JSONEq(t, `{"error":"invalid admin credentials"}`, string(res.body))

	res = f.do(t, http.MethodGet, "/admin/vens", nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = f.do(t, http.MethodGet, "/admin/vens", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, res.status)

	token := f.login(t)
	res = f.do(t, http.MethodGet, "/admin/vens", nil, token)
	require.Equal(t, http.StatusOK, res.status)

	var vens []models.VenRecord
	res.decode(t, &vens)
	require.Len(t, vens, 1)
	assert.Equal(t, "ven_001", vens[0].VenID)
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"status":"healthy","vtn_id":"vtn_test"}`, string(res.body))

	res = f.do(t, http.MethodGet, "/.well-known/jwks.json", nil, "")
	require.Equal(t, http.StatusOK, res.status)
	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	res.decode(t, &jwks)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, jwt.KeyID, jwks.Keys[0]["kid"])
	assert.Equal(t, "RSA", jwks.Keys[0]["kty"])
}

func TestVenEnrollment(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	cert := testutil.NewCertificate(t, "ven789")

	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{"missing id", map[string]string{"ven_name": "x"}, "ven_id is required"},
		{"bad certificate", map[string]string{"ven_id": "ven_003", "certificate": "garbage"}, "invalid certificate"},
		{"conflicting fingerprint", map[string]string{"ven_id": "ven_003", "certificate": cert.PEM, "fingerprint": "AA:BB"}, "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodPost, "/admin/vens", tt.body, token)
			assert.Equal(t, http.StatusBadRequest, res.status)
			assert.Contains(t, string(res.body), tt.want)
		})
	}

	res := f.do(t, http.MethodPost, "/admin/vens", map[string]string{
		"ven_id":          "ven_003",
		"ven_name":        "ven789",
		"certificate":     cert.PEM,
		"registration_id": "reg_3",
	}, token)
	require.Equal(t, http.StatusCreated, res.status, string(res.body))

	var saved models.VenRecord
	res.decode(t, &saved)
	assert.Equal(t, x509util.Fingerprint(cert.Cert), saved.Fingerprint)
	assert.Equal(t, "reg_3", saved.RegistrationID)

	// The enrolled VEN authenticates right away
	assert.Equal(t, openadr.MsgResponse, f.poll(t, "ven_003", cert))

	res = f.do(t, http.MethodGet, "/admin/vens/ven_003", nil, token)
	require.Equal(t, http.StatusOK, res.status)
	var detail struct {
		Ven     models.VenRecord `json:"ven"`
		Reports []bindingView    `json:"reports"`
		Events  []eventView      `json:"events"`
	}
	res.decode(t, &detail)
	assert.Equal(t, "ven789", detail.Ven.VenName)
	assert.Empty(t, detail.Events)

	res = f.do(t, http.MethodDelete, "/admin/vens/ven_003", nil, token)
	assert.Equal(t, http.StatusNoContent, res.status)

	// The registry cache was invalidated
	assert.Equal(t, openadr.MsgRequestReregistration, f.poll(t, "ven_003", cert))

	res = f.do(t, http.MethodDelete, "/admin/vens/ven_003", nil, token)
	assert.Equal(t, http.StatusNotFound, res.status)
	res = f.do(t, http.MethodGet, "/admin/vens/ven_003", nil, token)
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	ctx := context.Background()

	res := f.do(t, http.MethodPost, "/admin/events", map[string]any{
		"ven_id":    "ven_404",
		"intervals": []map[string]any{{"duration": "PT30M"}},
	}, token)
	assert.Equal(t, http.StatusNotFound, res.status)

	res = f.do(t, http.MethodPost, "/admin/events", map[string]any{
		"ven_id":    "ven_001",
		"intervals": []map[string]any{{"duration": "half an hour"}},
	}, token)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, string(res.body), "intervals[0]")

	res = f.do(t, http.MethodPost, "/admin/events", map[string]any{"ven_id": "ven_001"}, token)
	assert.Equal(t, http.StatusBadRequest, res.status)

	start := testNow.Add(time.Hour)
	res = f.do(t, http.MethodPost, "/admin/events", map[string]any{
		"ven_id":   "ven_001",
		"priority": 1,
		"intervals": []map[string]any{
			{"dtstart": start.Format(time.RFC3339), "duration": "PT30M", "signal_payload": 1},
			{"duration": "PT15M", "signal_payload": 2},
		},
	}, token)
	require.Equal(t, http.StatusCreated, res.status, string(res.body))

	var created eventView
	res.decode(t, &created)
	assert.NotEmpty(t, created.EventID)
	assert.Equal(t, models.EventStatusFar, created.Status)
	assert.Equal(t, "PT45M", created.Duration)
	assert.Equal(t, vtn.DefaultSignalName, created.SignalName)
	require.Len(t, created.Intervals, 2)
	assert.True(t, start.Add(30*time.Minute).Equal(created.Intervals[1].Start))

	updated, err := f.state.TakeEventsUpdated(ctx, "ven_001")
	require.NoError(t, err)
	assert.True(t, updated)

	res = f.do(t, http.MethodDelete, "/admin/events/"+created.EventID, nil, token)
	require.Equal(t, http.StatusOK, res.status)
	var cancelled eventView
	res.decode(t, &cancelled)
	assert.Equal(t, models.EventStatusCancelled, cancelled.Status)
	assert.Equal(t, created.ModificationNumber+1, cancelled.ModificationNumber)

	assert.Equal(t, openadr.MsgDistributeEvent, f.poll(t, "ven_001", f.cert))

	res = f.do(t, http.MethodDelete, "/admin/events/no-such-event", nil, token)
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestRequestReport(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	ctx := context.Background()

	body := map[string]any{"report_specifier_id": "spec-1", "granularity": "PT1M", "report_back_duration": "PT5M"}

	res := f.do(t, http.MethodPost, "/admin/vens/ven_001/report-requests", body, token)
	assert.Equal(t, http.StatusBadRequest, res.status, "nothing negotiated yet")

	res = f.do(t, http.MethodPost, "/admin/vens/ven_404/report-requests", body, token)
	assert.Equal(t, http.StatusNotFound, res.status)

	offered := testutil.OfferedReport{
		SpecifierID: "spec-1",
		Name:        "METADATA_TELEMETRY_USAGE",
		Descriptors: []testutil.Descriptor{
			{RID: "power", Description: "RealPower", Units: "W", MinPeriod: "PT1M", MaxPeriod: "PT1H"},
		},
	}
	f.openadr(t, "EiReport", testutil.RegisterReportXML("req-1", "ven_001", offered), f.cert)
	f.state.TakeReportRequests(ctx, "ven_001")

	res = f.do(t, http.MethodPost, "/admin/vens/ven_001/report-requests", body, token)
	require.Equal(t, http.StatusAccepted, res.status, string(res.body))
	var out map[string]any
	res.decode(t, &out)
	assert.Equal(t, []any{"power"}, out["r_ids"])
	assert.Equal(t, "PT1M", out["granularity"])

	queued, err := f.state.TakeReportRequests(ctx, "ven_001")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, out["report_request_id"], queued[0].ReportRequestID)
	assert.Equal(t, 5*time.Minute, queued[0].ReportBackDur)

	res = f.do(t, http.MethodPost, "/admin/vens/ven_001/report-requests", map[string]any{"granularity": "PT1M"}, token)
	assert.Equal(t, http.StatusBadRequest, res.status)
}

func TestStatusPage(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	require.NoError(t, f.vtn.AddEvent(context.Background(), &models.Event{
		EventID:   "evt-status",
		VenID:     "ven_001",
		Intervals: []models.EventInterval{{Start: testNow.Add(-time.Minute), Duration: time.Hour, Payload: 1}},
	}))

	res := f.do(t, http.MethodGet, "/admin/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = f.do(t, http.MethodGet, "/admin/status", nil, token)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "text/html; charset=utf-8", res.header.Get("Content-Type"))

	page := string(res.body)
	assert.Contains(t, page, "VTN vtn_test")
	assert.Contains(t, page, "1 of 1 VENs registered")
	assert.Contains(t, page, "evt-status")
	assert.Contains(t, page, `class="status-active"`)
	assert.Contains(t, page, "signed in as admin")
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is required")
	assert.Contains(t, err.Error(), "vtn operator is required")
}
