// Package pollstate keeps the per-VEN work a poll can pick up: an events-updated
// flag and a queue of report requests. Every operation on one VEN is atomic, so a
// poll never misses an event published concurrently.
package pollstate

import (
	"context"
	"sync"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Store is the poll state shared by the event, report and poll services.
type Store interface {
	// MarkEventsUpdated records that the events of a VEN changed since its last poll.
	MarkEventsUpdated(ctx context.Context, venID string) error
	// TakeEventsUpdated reports whether the flag was set and clears it.
	TakeEventsUpdated(ctx context.Context, venID string) (bool, error)
	// PushReportRequest queues a report request for the next poll.
	PushReportRequest(ctx context.Context, venID string, req models.ReportRequest) error
	// TakeReportRequests returns and removes all queued report requests, oldest first.
	TakeReportRequests(ctx context.Context, venID string) ([]models.ReportRequest, error)
}

type venState struct {
	eventsUpdated bool
	requests      []models.ReportRequest
}

// Memory is a Store for a single VTN instance.
type Memory struct {
	mu   sync.Mutex
	vens map[string]*venState
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{vens: make(map[string]*venState)}
}

func (m *Memory) state(venID string) *venState {
	s := m.vens[venID]
	if s == nil {
		s = &venState{}
		m.vens[venID] = s
	}
	return s
}

func (m *Memory) MarkEventsUpdated(_ context.Context, venID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state(venID).eventsUpdated = true
	return nil
}

func (m *Memory) TakeEventsUpdated(_ context.Context, venID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(venID)
	updated := s.eventsUpdated
	s.eventsUpdated = false
	return updated, nil
}

func (m *Memory) PushReportRequest(_ context.Context, venID string, req models.ReportRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(venID)
	s.requests = append(s.requests, req)
	return nil
}

func (m *Memory) TakeReportRequests(_ context.Context, venID string) ([]models.ReportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(venID)
	reqs := s.requests
	s.requests = nil
	return reqs, nil
}
