// Package notify tells the operator about VEN registration changes by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Config holds the SMTP settings. Without Username and Password messages are only logged.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	VTNID    string
}

// SendFunc has the signature of smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service sends operator notifications
type Service struct {
	cfg       Config
	templates *template.Template
	send      SendFunc
	now       func() time.Time
}

// message is the data passed to the templates
type message struct {
	VTNID          string
	VenID          string
	VenName        string
	RegistrationID string
	Fingerprint    string
	At             time.Time
}

// NewService creates a notification service. It returns nil when no recipient is configured.
func NewService(cfg Config) (*Service, error) {
	if cfg.To == "" {
		return nil, nil
	}
	if err := ValidateEmail(cfg.To); err != nil {
		return nil, errl.Errorf("invalid notify address: %w", err)
	}
	if cfg.From == "" {
		cfg.From = "noreply@" + domainOf(cfg.To)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	tmpl, err := template.New("registered").Parse(registeredTemplate)
	if err != nil {
		return nil, errl.Error(err)
	}
	if _, err := tmpl.New("cancelled").Parse(cancelledTemplate); err != nil {
		return nil, errl.Error(err)
	}

	return &Service{
		cfg:       cfg,
		templates: tmpl,
		send:      smtp.SendMail,
		now:       time.Now,
	}, nil
}

// WithSender replaces the SMTP transport.
func (s *Service) WithSender(send SendFunc) *Service {
	s.send = send
	return s
}

// VenRegistered reports a successful registration.
func (s *Service) VenRegistered(ctx context.Context, ven models.VenRecord) error {
	data := message{
		VTNID:          s.cfg.VTNID,
		VenID:          ven.VenID,
		VenName:        ven.VenName,
		RegistrationID: ven.RegistrationID,
		Fingerprint:    ven.Fingerprint,
		At:             s.now().UTC(),
	}
	return s.deliver(ctx, "registered", fmt.Sprintf("[%s] VEN %s registered", s.cfg.VTNID, ven.VenID), data)
}

// VenCancelled reports a cancelled registration.
func (s *Service) VenCancelled(ctx context.Context, venID, registrationID string) error {
	data := message{
		VTNID:          s.cfg.VTNID,
		VenID:          venID,
		RegistrationID: registrationID,
		At:             s.now().UTC(),
	}
	return s.deliver(ctx, "cancelled", fmt.Sprintf("[%s] VEN %s cancelled its registration", s.cfg.VTNID, venID), data)
}

func (s *Service) deliver(ctx context.Context, name, subject string, data message) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, name, data); err != nil {
		return errl.Errorf("failed to execute %s template: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Development mode
	if s.cfg.Username == "" || s.cfg.Password == "" {
		slog.Info("Notification would be sent (development mode)",
			"to", s.cfg.To,
			"subject", subject,
			"body_length", body.Len())
		return nil
	}

	msg := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.VTNID, s.cfg.From)
	msg += fmt.Sprintf("To: %s\r\n", s.cfg.To)
	msg += fmt.Sprintf("Subject: %s\r\n", subject)
	msg += "MIME-Version: 1.0\r\n"
	msg += "Content-Type: text/plain; charset=UTF-8\r\n"
	msg += "\r\n"
	msg += body.String()

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{s.cfg.To}, []byte(msg)); err != nil {
		return errl.Errorf("failed to send notification: %w", err)
	}

	slog.Info("Notification sent", "to", s.cfg.To, "subject", subject)
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	if email == "" {
		return errl.Errorf("email is required")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return errl.Errorf("invalid email format")
	}
	if !strings.Contains(domain, ".") {
		return errl.Errorf("invalid email format")
	}
	return nil
}

func domainOf(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}

const registeredTemplate = `VEN {{.VenID}} ({{.VenName}}) registered with VTN {{.VTNID}}.

Registration ID: {{.RegistrationID}}
Certificate fingerprint: {{if .Fingerprint}}{{.Fingerprint}}{{else}}none{{end}}
Time: {{.At.Format "2006-01-02 15:04:05 MST"}}
`

const cancelledTemplate = `VEN {{.VenID}} cancelled registration {{.RegistrationID}} with VTN {{.VTNID}}.

The VEN must register again before its next poll is accepted.
Time: {{.At.Format "2006-01-02 15:04:05 MST"}}
`
