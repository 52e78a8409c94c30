package models

import "time"

// Availability is one window of an opt schedule.
type Availability struct {
	Start    time.Time     `json:"dtstart"`
	Duration time.Duration `json:"duration"`
}

// OptSchedule is an opt-in or opt-out schedule created by a VEN with oadrCreateOpt.
type OptSchedule struct {
	OptID         string         `json:"opt_id"`
	VenID         string         `json:"ven_id"`
	OptType       string         `json:"opt_type"`
	OptReason     string         `json:"opt_reason"`
	MarketContext string         `json:"market_context,omitempty"`
	EventID       string         `json:"event_id,omitempty"`
	Availability  []Availability `json:"availability,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
