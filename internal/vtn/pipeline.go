package vtn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/evidenceledger/oadrvtn/internal/auth"
	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/openadr"
	"github.com/evidenceledger/oadrvtn/internal/util/x509util"
)

// services maps each OpenADR endpoint to the message types it accepts.
var services = map[string][]string{
	"EiRegisterParty": {
		openadr.MsgQueryRegistration,
		openadr.MsgCreatePartyRegistration,
		openadr.MsgCancelPartyRegistration,
	},
	"EiReport": {
		openadr.MsgRegisterReport,
		openadr.MsgCreateReport,
		openadr.MsgCreatedReport,
		openadr.MsgRequestReport,
		openadr.MsgUpdateReport,
	},
	"OadrPoll": {openadr.MsgPoll},
	"EiEvent":  {openadr.MsgCreatedEvent, openadr.MsgRequestEvent},
	"EiOpt":    {openadr.MsgCreateOpt, openadr.MsgCancelOpt},
}

// bootstrap messages are accepted from VENs that hold no registration.
var bootstrap = map[string]bool{
	openadr.MsgQueryRegistration:       true,
	openadr.MsgCreatePartyRegistration: true,
}

// message is an authenticated inbound message on its way to a sub-service.
type message struct {
	*openadr.Envelope

	// Fingerprint of the presented certificate, set for oadrCreatePartyRegistration only.
	Fingerprint string
}

type handlerFunc func(ctx context.Context, msg *message) (Result, error)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		openadr.MsgQueryRegistration:       s.queryRegistration,
		openadr.MsgCreatePartyRegistration: s.createPartyRegistration,
		openadr.MsgCancelPartyRegistration: s.cancelPartyRegistration,
		openadr.MsgRegisterReport:          s.registerReport,
		openadr.MsgCreateReport:            s.createReport,
		openadr.MsgCreatedReport:           s.createdReport,
		openadr.MsgRequestReport:           s.requestReport,
		openadr.MsgUpdateReport:            s.updateReport,
		openadr.MsgPoll:                    s.poll,
		openadr.MsgCreatedEvent:            s.createdEvent,
		openadr.MsgRequestEvent:            s.requestEvent,
		openadr.MsgCreateOpt:               s.createOpt,
		openadr.MsgCancelOpt:               s.cancelOpt,
	}
}

// handleMessage handles every POST to one OpenADR endpoint
func (s *Server) handleMessage(service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		env, reply, err := s.process(c.UserContext(), service,
			c.Get(fiber.HeaderContentType), c.Get(CertHeader), c.Body())
		if err != nil {
			return s.respondError(c, env, err)
		}

		// oadrResponse from the VEN: nothing to say back
		if reply == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
			return c.Status(fiber.StatusOK).Send(nil)
		}

		return s.send(c, *reply)
	}
}

// process runs one message through the pipeline. The envelope is nil when the
// request could not be decoded; the reply is nil for oadrResponse.
func (s *Server) process(ctx context.Context, service, contentType, certHeader string, body []byte) (*openadr.Envelope, *openadr.Reply, error) {
	if !isXML(contentType) {
		return nil, nil, &openadr.TransportError{
			Status:  fiber.StatusBadRequest,
			Message: fmt.Sprintf("The Content-Type header must be application/xml; you provided %s", contentType),
		}
	}

	env, err := openadr.Decode(body)
	if err != nil {
		return nil, nil, err
	}

	if env.Type == openadr.MsgResponse {
		slog.Debug("Acknowledgement received", "ven_id", env.VenID)
		return env, nil, nil
	}

	if !slices.Contains(services[service], env.Type) {
		return env, nil, openadr.NewProtocolError(openadr.CodeNotRecognized,
			"%s is not accepted by the %s service", env.Type, service)
	}

	if env.VTNID != "" && env.VTNID != s.cfg.VTNID {
		return env, nil, openadr.NewProtocolError(openadr.CodeInvalidID,
			"The supplied vtnID is invalid. It should be '%s', you supplied %s.", s.cfg.VTNID, env.VTNID)
	}

	if err := s.checkRegistered(ctx, env); err != nil {
		return env, nil, err
	}

	if err := auth.Authenticate(ctx, certHeader, env.VenID, s.cfg.Registry); err != nil {
		return env, nil, err
	}

	msg := &message{Envelope: env}

	// The registration service records this fingerprint as the one expected from the VEN from now on
	if env.Type == openadr.MsgCreatePartyRegistration {
		fingerprint, err := x509util.FingerprintFromHeader(certHeader)
		if err != nil {
			return env, nil, &auth.NotAuthorizedError{
				Reason: auth.ReasonInvalidCertificate,
				Detail: fmt.Sprintf("registration request %s: %v", env.RequestID, err),
			}
		}
		msg.Fingerprint = fingerprint
	}

	handler, ok := s.handlers[env.Type]
	if !ok {
		return env, nil, errl.Errorf("no handler for %s", env.Type)
	}

	res, err := handler(ctx, msg)
	if err != nil {
		return env, nil, err
	}

	reply, err := s.normalize(env, res)
	if err != nil {
		return env, nil, err
	}
	return env, &reply, nil
}

// checkRegistered asks the VEN to reregister when the registry does not know it
// or holds no registration for it.
func (s *Server) checkRegistered(ctx context.Context, env *openadr.Envelope) error {
	if s.cfg.Registry == nil || env.VenID == "" || bootstrap[env.Type] {
		return nil
	}

	ven, err := s.cfg.Registry.Lookup(ctx, env.VenID)
	if err != nil {
		return errl.Errorf("failed to look up ven %s: %w", env.VenID, err)
	}
	if !ven.Registered() {
		return &ReregistrationRequiredError{VenID: env.VenID}
	}
	return nil
}

// respondError maps a pipeline error to exactly one HTTP response
func (s *Server) respondError(c *fiber.Ctx, env *openadr.Envelope, err error) error {
	var (
		transportErr *openadr.TransportError
		authErr      *auth.NotAuthorizedError
		reregErr     *ReregistrationRequiredError
		protocolErr  *openadr.ProtocolError
	)

	switch {
	case errors.As(err, &transportErr):
		slog.Warn("Message rejected", "path", c.Path(), "status", transportErr.Status, "error", transportErr.Message)
		return c.Status(transportErr.Status).SendString(transportErr.Message)

	case errors.As(err, &authErr):
		slog.Warn("Message not authorized",
			"type", env.Type, "ven_id", env.VenID, "reason", authErr.Reason, "detail", authErr.Detail)
		return c.Status(fiber.StatusForbidden).SendString(authErr.Reason)

	case errors.As(err, &reregErr):
		slog.Info("Requesting reregistration", "type", env.Type, "ven_id", reregErr.VenID)
		return s.send(c, openadr.Reply{
			Type:  openadr.MsgRequestReregistration,
			VTNID: s.cfg.VTNID,
			VenID: reregErr.VenID,
		})

	case errors.As(err, &protocolErr):
		slog.Info("Protocol error",
			"type", env.Type, "ven_id", env.VenID, "code", protocolErr.Code, "description", protocolErr.Description)
		return s.send(c, openadr.Reply{
			Type: openadr.ErrorReplyType(env.Type),
			Response: openadr.Response{
				Code:        protocolErr.Code,
				Description: protocolErr.Description,
				RequestID:   env.RequestID,
			},
			VTNID: s.cfg.VTNID,
			VenID: env.VenID,
		})
	}

	return s.internalError(c, env, err)
}

// send encodes, signs and writes a reply
func (s *Server) send(c *fiber.Ctx, reply openadr.Reply) error {
	body, err := openadr.Encode(reply)
	if err != nil {
		return s.internalError(c, nil, errl.Errorf("failed to encode %s: %w", reply.Type, err))
	}

	if s.cfg.Signer != nil {
		sig, err := s.cfg.Signer.SignDetached(body)
		if err != nil {
			return s.internalError(c, nil, errl.Errorf("failed to sign %s: %w", reply.Type, err))
		}
		c.Set(SignatureHeader, sig)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	return c.Status(fiber.StatusOK).Send(body)
}

// internalError logs the full error and answers 500 with an empty body
func (s *Server) internalError(c *fiber.Ctx, env *openadr.Envelope, err error) error {
	var msgType, venID string
	if env != nil {
		msgType, venID = env.Type, env.VenID
	}
	slog.Error("Failed to handle message",
		"path", c.Path(), "type", msgType, "ven_id", venID, "error", err, "detail", errl.Detail(err))

	c.Response().Header.Del(SignatureHeader)
	return c.Status(fiber.StatusInternalServerError).Send(nil)
}

// errorHandler answers errors that escape the pipeline, panics included. Only
// routing errors keep their message.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).SendString(fe.Message)
	}
	return s.internalError(c, nil, err)
}

func isXML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == fiber.MIMEApplicationXML
}
