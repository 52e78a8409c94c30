package vtn

import (
	"fmt"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
)

// Result is what a sub-service returns: Acknowledge, DistributeEvents or Raw.
type Result interface {
	result()
}

// Acknowledge is answered with an oadrResponse.
type Acknowledge struct{}

// DistributeEvents is answered with an oadrDistributeEvent listing Events.
type DistributeEvents struct {
	Events []models.Event
}

// Raw is answered with a reply of Type carrying Body. A nil Response defaults to
// 200 OK for the request, an empty VenID to the VEN of the request.
type Raw struct {
	Type     string
	Response *openadr.Response
	VenID    string
	Body     any
}

func (Acknowledge) result()      {}
func (DistributeEvents) result() {}
func (Raw) result()              {}

// ReregistrationRequiredError asks the VEN to register again.
type ReregistrationRequiredError struct {
	VenID string
}

func (e *ReregistrationRequiredError) Error() string {
	return fmt.Sprintf("ven %s must reregister", e.VenID)
}

// normalize turns a sub-service result into a complete reply for env.
func (s *Server) normalize(env *openadr.Envelope, res Result) (openadr.Reply, error) {
	reply := openadr.Reply{
		Response: okResponse(env),
		VTNID:    s.cfg.VTNID,
		VenID:    env.VenID,
	}

	switch r := res.(type) {
	case Acknowledge:
		reply.Type = openadr.MsgResponse
	case DistributeEvents:
		reply.Type = openadr.MsgDistributeEvent
		reply.Body = &openadr.EventDistribution{
			RequestID: env.RequestID,
			Events:    r.Events,
			Now:       s.cfg.Now(),
		}
	case Raw:
		reply.Type = r.Type
		reply.Body = r.Body
		if r.Response != nil {
			reply.Response = *r.Response
		}
		if r.VenID != "" {
			reply.VenID = r.VenID
		}
	default:
		return reply, errl.Errorf("unexpected result %T for %s", res, env.Type)
	}

	return reply, nil
}

func okResponse(env *openadr.Envelope) openadr.Response {
	return openadr.Response{Code: openadr.CodeOK, Description: "OK", RequestID: env.RequestID}
}
