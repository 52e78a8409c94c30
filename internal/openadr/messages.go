// Package openadr is the OpenADR 2.0b XML codec used by the VTN: it parses inbound
// oadrPayload documents into an Envelope and serializes typed replies back to XML.
package openadr

// Inbound message types.
const (
	MsgQueryRegistration       = "oadrQueryRegistration"
	MsgCreatePartyRegistration = "oadrCreatePartyRegistration"
	MsgCancelPartyRegistration = "oadrCancelPartyRegistration"
	MsgRegisterReport          = "oadrRegisterReport"
	MsgCreateReport            = "oadrCreateReport"
	MsgCreatedReport           = "oadrCreatedReport"
	MsgRequestReport           = "oadrRequestReport"
	MsgUpdateReport            = "oadrUpdateReport"
	MsgPoll                    = "oadrPoll"
	MsgCreatedEvent            = "oadrCreatedEvent"
	MsgRequestEvent            = "oadrRequestEvent"
	MsgCreateOpt               = "oadrCreateOpt"
	MsgCancelOpt               = "oadrCancelOpt"
	MsgResponse                = "oadrResponse"
)

// Reply message types.
const (
	MsgCreatedPartyRegistration  = "oadrCreatedPartyRegistration"
	MsgCanceledPartyRegistration = "oadrCanceledPartyRegistration"
	MsgRequestReregistration     = "oadrRequestReregistration"
	MsgRegisteredReport          = "oadrRegisteredReport"
	MsgUpdatedReport             = "oadrUpdatedReport"
	MsgDistributeEvent           = "oadrDistributeEvent"
	MsgCreatedOpt                = "oadrCreatedOpt"
	MsgCanceledOpt               = "oadrCanceledOpt"
)

// Protocol profile and transport supported by this VTN.
const (
	ProfileName   = "2.0b"
	TransportHTTP = "simpleHttp"
	SchemaVersion = "2.0b"
)

// XML namespaces of the 2.0b schema.
const (
	NSOadr    = "http://openadr.org/oadr-2.0b/2012/07"
	NSEi      = "http://docs.oasis-open.org/ns/energyinterop/201110"
	NSPyld    = "http://docs.oasis-open.org/ns/energyinterop/201110/payloads"
	NSEmix    = "http://docs.oasis-open.org/ns/emix/2011/06"
	NSXcal    = "urn:ietf:params:xml:ns:icalendar-2.0"
	NSStrm    = "urn:ietf:params:xml:ns:icalendar-2.0:stream"
	NSPower   = "http://docs.oasis-open.org/ns/emix/2011/06/power"
	NSSiScale = "http://docs.oasis-open.org/ns/emix/2011/06/siscale"
)

// errorReplyTypes maps a request type to the reply type that carries an error for it.
var errorReplyTypes = map[string]string{
	MsgQueryRegistration:       MsgCreatedPartyRegistration,
	MsgCreatePartyRegistration: MsgCreatedPartyRegistration,
	MsgCancelPartyRegistration: MsgCanceledPartyRegistration,
	MsgRegisterReport:          MsgRegisteredReport,
	MsgCreateReport:            MsgCreatedReport,
	MsgCreatedReport:           MsgResponse,
	MsgRequestReport:           MsgResponse,
	MsgUpdateReport:            MsgUpdatedReport,
	MsgPoll:                    MsgResponse,
	MsgCreatedEvent:            MsgResponse,
	MsgRequestEvent:            MsgDistributeEvent,
	MsgCreateOpt:               MsgCreatedOpt,
	MsgCancelOpt:               MsgCanceledOpt,
}

// ErrorReplyType returns the reply type used to report a protocol error for a request type.
func ErrorReplyType(messageType string) string {
	if t, ok := errorReplyTypes[messageType]; ok {
		return t
	}
	return MsgResponse
}
