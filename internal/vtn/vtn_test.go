package vtn

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/database"
	"github.com/evidenceledger/oadrvtn/internal/jwt"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/pollstate"
	"github.com/evidenceledger/oadrvtn/internal/registration"
	"github.com/evidenceledger/oadrvtn/internal/registry"
	"github.com/evidenceledger/oadrvtn/internal/report"
	"github.com/evidenceledger/oadrvtn/internal/testutil"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
)

const (
	testVTNID  = "vtn_test"
	testPrefix = "/OpenADR2/Simple/2.0b"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type notifications struct {
	mu         sync.Mutex
	registered []models.VenRecord
	cancelled  []string
}

func (n *notifications) VenRegistered(_ context.Context, ven models.VenRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = append(n.registered, ven)
	return nil
}

func (n *notifications) VenCancelled(_ context.Context, venID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, venID)
	return nil
}

type harness struct {
	srv       *Server
	db        *database.Database
	signer    *jwt.Service
	state     *pollstate.Memory
	notify    *notifications
	cert      testutil.Certificate // presented by ven_001
	mu        sync.Mutex
	updates   []report.Update
	responses []models.EventResponse
}

func (h *harness) recorded() []report.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]report.Update(nil), h.updates...)
}

// newHarness builds a VTN over a temp sqlite database where ven_001 (ven123) is
// registered with the fingerprint of h.cert.
func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()

	db := database.New(filepath.Join(t.TempDir(), "vtn.db"))
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	signer, err := jwt.NewService(testVTNID)
	require.NoError(t, err)

	h := &harness{
		db:     db,
		signer: signer,
		state:  pollstate.NewMemory(),
		notify: &notifications{},
		cert:   testutil.NewCertificate(t, "ven123"),
	}

	seeds := []models.VenRecord{
		{VenID: "ven_001", VenName: "ven123", Fingerprint: x509util.Fingerprint(h.cert.Cert), RegistrationID: "reg_id_123"},
		{VenID: "ven_002", VenName: "ven456"},
	}
	require.NoError(t, db.SeedVens(ctx, seeds[:1]))

	sink := report.SinkFunc(func(_ context.Context, u report.Update) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.updates = append(h.updates, u)
		return nil
	})

	reg := registry.NewCached(registry.FromDatabase(db), time.Minute)
	cfg := Config{
		VTNID:         testVTNID,
		PathPrefix:    testPrefix,
		PollFrequency: 10 * time.Second,
		Registry:      reg,
		Invalidator:   reg,
		Store:         db,
		Decider:       registration.NewStatic(seeds),
		Negotiator:    report.NewNegotiator(sink),
		PollState:     h.state,
		Signer:        signer,
		Notifier:      h.notify,
		OnEventResponse: func(_ context.Context, r models.EventResponse) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.responses = append(h.responses, r)
		},
		Now: func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	h.srv = srv
	return h
}

type result struct {
	status    int
	body      []byte
	signature string
}

// post sends body to an endpoint as application/xml, with certHeader when not empty.
func (h *harness) post(t *testing.T, service string, body []byte, certHeader string) result {
	t.Helper()
	return h.postAs(t, service, "application/xml", body, certHeader)
}

func (h *harness) postAs(t *testing.T, service, contentType string, body []byte, certHeader string) result {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, testPrefix+"/"+service, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	if certHeader != "" {
		req.Header.Set(CertHeader, certHeader)
	}

	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return result{status: resp.StatusCode, body: data, signature: resp.Header.Get(SignatureHeader)}
}

// reply is a parsed outbound document: the message element name and the text of
// every leaf element, by local name.
type reply struct {
	Type string
	Text map[string][]string
}

func (r reply) first(name string) string {
	if v := r.Text[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func parseReply(t *testing.T, body []byte) reply {
	t.Helper()
	r := reply{Text: make(map[string][]string)}
	dec := xml.NewDecoder(bytes.NewReader(body))

	var stack []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		switch el := tok.(type) {
		case xml.StartElement:
			stack = append(stack, el.Name.Local)
			// oadrPayload > oadrSignedObject > message
			if len(stack) == 3 {
				r.Type = el.Name.Local
			}
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if text := strings.TrimSpace(string(el)); text != "" && len(stack) > 0 {
				name := stack[len(stack)-1]
				r.Text[name] = append(r.Text[name], text)
			}
		}
	}
	return r
}
