package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/evidenceledger/oadrvtn/internal/middleware"
)

type venStatus struct {
	VenID          string
	VenName        string
	RegistrationID string
	Fingerprint    string
	Registered     bool
	Reports        []bindingView
	Events         []eventView
}

// Status renders the HTML overview of VENs, negotiated reports and events
func (s *Server) Status(c *fiber.Ctx) error {
	ctx := c.UserContext()

	vens, err := s.db.ListVens(ctx)
	if err != nil {
		return err
	}

	rows := make([]venStatus, 0, len(vens))
	registered := 0
	for _, v := range vens {
		events, err := s.db.ListEvents(ctx, v.VenID)
		if err != nil {
			return err
		}
		if v.Registered() {
			registered++
		}
		rows = append(rows, venStatus{
			VenID:          v.VenID,
			VenName:        v.VenName,
			RegistrationID: v.RegistrationID,
			Fingerprint:    v.Fingerprint,
			Registered:     v.Registered(),
			Reports:        bindingViews(s.vtn.Bindings(v.VenID)),
			Events:         s.eventViews(events),
		})
	}

	return s.html.Render(c, "status", fiber.Map{
		"vtnID":      s.cfg.VTNID,
		"now":        s.cfg.Now().UTC().Format("2006-01-02 15:04:05 MST"),
		"subject":    c.Locals(middleware.SubjectKey),
		"vens":       rows,
		"registered": registered,
	})
}
