package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "ops@example.com", false},
		{"valid email with subdomain", "ops@grid.example.com", false},
		{"empty email", "", true},
		{"missing @", "opsexample.com", true},
		{"missing domain", "ops@", true},
		{"missing local part", "@example.com", true},
		{"missing TLD", "ops@example", true},
		{"two @", "ops@a@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			assert.Equal(t, tt.wantErr, err != nil, "error = %v", err)
		})
	}
}

func TestNewServiceWithoutRecipient(t *testing.T) {
	s, err := NewService(Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = NewService(Config{To: "nobody"})
	assert.Error(t, err)
}

type sent struct {
	addr string
	from string
	to   []string
	msg  string
}

func newRecording(t *testing.T, cfg Config, fail error) (*Service, *[]sent) {
	t.Helper()
	s, err := NewService(cfg)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	var out []sent
	s.WithSender(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		out = append(out, sent{addr, from, to, string(msg)})
		return fail
	})
	return s, &out
}

func TestDevelopmentModeOnlyLogs(t *testing.T) {
	s, out := newRecording(t, Config{To: "ops@example.com", VTNID: "vtn_1"}, nil)

	require.NoError(t, s.VenRegistered(context.Background(), models.VenRecord{VenID: "ven_001"}))
	assert.Empty(t, *out)
}

func TestVenRegistered(t *testing.T) {
	cfg := Config{Host: "smtp.example.com", Username: "u", Password: "p", To: "ops@example.com", VTNID: "vtn_1"}
	s, out := newRecording(t, cfg, nil)

	ven := models.VenRecord{VenID: "ven_001", VenName: "ven123", RegistrationID: "reg_1", Fingerprint: "AA:BB"}
	require.NoError(t, s.VenRegistered(context.Background(), ven))
	require.Len(t, *out, 1)

	m := (*out)[0]
	assert.Equal(t, "smtp.example.com:587", m.addr)
	assert.Equal(t, "noreply@example.com", m.from)
	assert.Equal(t, []string{"ops@example.com"}, m.to)
	assert.Contains(t, m.msg, "Subject: [vtn_1] VEN ven_001 registered\r\n")
	assert.Contains(t, m.msg, "Registration ID: reg_1")
	assert.Contains(t, m.msg, "Certificate fingerprint: AA:BB")
	assert.Contains(t, m.msg, "2026-10-19 12:00:00 UTC")
}

func TestVenCancelled(t *testing.T) {
	cfg := Config{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", From: "vtn@example.com", To: "ops@example.com", VTNID: "vtn_1"}
	s, out := newRecording(t, cfg, nil)

	require.NoError(t, s.VenCancelled(context.Background(), "ven_001", "reg_1"))
	require.Len(t, *out, 1)
	assert.Equal(t, "smtp.example.com:2525", (*out)[0].addr)
	assert.Equal(t, "vtn@example.com", (*out)[0].from)
	assert.Contains(t, (*out)[0].msg, "VEN ven_001 cancelled registration reg_1")
}

func TestSendFailure(t *testing.T) {
	cfg := Config{Host: "smtp.example.com", Username: "u", Password: "p", To: "ops@example.com"}
	s, _ := newRecording(t, cfg, errors.New("connection refused"))

	err := s.VenCancelled(context.Background(), "ven_001", "reg_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
