package models

import "time"

// Event status values as used in eiEventDescriptor.
const (
	EventStatusFar       = "far"
	EventStatusNear      = "near"
	EventStatusActive    = "active"
	EventStatusCompleted = "completed"
	EventStatusCancelled = "cancelled"
)

// EventInterval is one interval of an event signal.
type EventInterval struct {
	Start    time.Time     `json:"dtstart"`
	Duration time.Duration `json:"duration"`
	Payload  float64       `json:"signal_payload"`
}

// Event is a demand response event targeted at one VEN.
type Event struct {
	EventID            string          `json:"event_id"`
	VenID              string          `json:"ven_id"`
	ModificationNumber int             `json:"modification_number"`
	Priority           int             `json:"priority"`
	MarketContext      string          `json:"market_context"`
	SignalName         string          `json:"signal_name"`
	SignalType         string          `json:"signal_type"`
	SignalID           string          `json:"signal_id"`
	Intervals          []EventInterval `json:"intervals"`
	ResponseRequired   string          `json:"response_required"`
	Cancelled          bool            `json:"cancelled"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Start returns the start of the first interval.
func (e *Event) Start() time.Time {
	if len(e.Intervals) == 0 {
		return time.Time{}
	}
	return e.Intervals[0].Start
}

// Duration returns the summed duration of all intervals.
func (e *Event) Duration() time.Duration {
	var total time.Duration
	for _, iv := range e.Intervals {
		total += iv.Duration
	}
	return total
}

// Status computes the event status at the given time.
func (e *Event) Status(now time.Time) string {
	if e.Cancelled {
		return EventStatusCancelled
	}
	start := e.Start()
	end := start.Add(e.Duration())
	switch {
	case now.Before(start):
		return EventStatusFar
	case now.Before(end):
		return EventStatusActive
	default:
		return EventStatusCompleted
	}
}

// EventResponse is a VEN's opt decision for an event, received in oadrCreatedEvent.
type EventResponse struct {
	VenID              string    `json:"ven_id"`
	EventID            string    `json:"event_id"`
	ModificationNumber int       `json:"modification_number"`
	OptType            string    `json:"opt_type"`
	ResponseCode       int       `json:"response_code"`
	ReceivedAt         time.Time `json:"received_at"`
}
