package openadr

import (
	"encoding/xml"
	"strconv"
	"time"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Reply is a typed outbound message. Body must match Type:
//
//	oadrCreatedPartyRegistration   *RegistrationInfo
//	oadrCanceledPartyRegistration  *RegistrationInfo
//	oadrRegisteredReport           *ReportRequests
//	oadrCreateReport               *ReportRequests
//	oadrCreatedReport              *PendingReports
//	oadrDistributeEvent            *EventDistribution
//	oadrCreatedOpt, oadrCanceledOpt *OptResult
//
// A nil Body is allowed for every type and yields the minimal message, which
// is how protocol errors are reported.
type Reply struct {
	Type     string
	Response Response
	VTNID    string
	VenID    string
	Body     any
}

// Profile is an OpenADR profile with its supported transports.
type Profile struct {
	Name       string
	Transports []string
}

// RegistrationInfo is the body of registration replies.
type RegistrationInfo struct {
	RegistrationID string
	PollFrequency  time.Duration
	Profiles       []Profile
}

// ReportRequests is the body of oadrRegisteredReport and oadrCreateReport.
type ReportRequests struct {
	RequestID string
	Requests  []models.ReportRequest
}

// PendingReports is the body of oadrCreatedReport.
type PendingReports struct {
	ReportRequestIDs []string
}

// EventDistribution is the body of oadrDistributeEvent. Event status is computed at Now,
// or at the time of encoding when Now is zero.
type EventDistribution struct {
	RequestID string
	Events    []models.Event
	Now       time.Time
}

// OptResult is the body of oadrCreatedOpt and oadrCanceledOpt.
type OptResult struct {
	OptID string
}

// DefaultProfiles is what this VTN advertises.
func DefaultProfiles() []Profile {
	return []Profile{{Name: ProfileName, Transports: []string{TransportHTTP}}}
}

type payloadXML struct {
	XMLName      xml.Name        `xml:"oadr:oadrPayload"`
	XmlnsOadr    string          `xml:"xmlns:oadr,attr"`
	XmlnsEi      string          `xml:"xmlns:ei,attr"`
	XmlnsPyld    string          `xml:"xmlns:pyld,attr"`
	XmlnsEmix    string          `xml:"xmlns:emix,attr"`
	XmlnsXcal    string          `xml:"xmlns:xcal,attr"`
	XmlnsStrm    string          `xml:"xmlns:strm,attr"`
	SignedObject signedObjectXML `xml:"oadr:oadrSignedObject"`
}

type signedObjectXML struct {
	Message any
}

type eiResponseXML struct {
	Code        string `xml:"ei:responseCode"`
	Description string `xml:"ei:responseDescription"`
	RequestID   string `xml:"pyld:requestID"`
}

type durationXML struct {
	Duration string `xml:"xcal:duration"`
}

type dateTimeXML struct {
	DateTime string `xml:"xcal:date-time"`
}

type responseXML struct {
	XMLName    xml.Name      `xml:"oadr:oadrResponse"`
	SchemaAttr string        `xml:"ei:schemaVersion,attr"`
	Response   eiResponseXML `xml:"ei:eiResponse"`
	VenID      string        `xml:"ei:venID,omitempty"`
}

type transportXML struct {
	Name string `xml:"oadr:oadrTransportName"`
}

type profileXML struct {
	Name       string         `xml:"oadr:oadrProfileName"`
	Transports []transportXML `xml:"oadr:oadrTransports>oadr:oadrTransport"`
}

type createdPartyRegistrationXML struct {
	XMLName        xml.Name      `xml:"oadr:oadrCreatedPartyRegistration"`
	SchemaAttr     string        `xml:"ei:schemaVersion,attr"`
	Response       eiResponseXML `xml:"ei:eiResponse"`
	RegistrationID string        `xml:"ei:registrationID,omitempty"`
	VenID          string        `xml:"ei:venID,omitempty"`
	VTNID          string        `xml:"ei:vtnID"`
	Profiles       []profileXML  `xml:"oadr:oadrProfiles>oadr:oadrProfile"`
	PollFreq       *durationXML  `xml:"oadr:oadrRequestedOadrPollFreq,omitempty"`
}

type canceledPartyRegistrationXML struct {
	XMLName        xml.Name      `xml:"oadr:oadrCanceledPartyRegistration"`
	SchemaAttr     string        `xml:"ei:schemaVersion,attr"`
	Response       eiResponseXML `xml:"ei:eiResponse"`
	RegistrationID string        `xml:"ei:registrationID,omitempty"`
	VenID          string        `xml:"ei:venID,omitempty"`
}

type requestReregistrationXML struct {
	XMLName    xml.Name `xml:"oadr:oadrRequestReregistration"`
	SchemaAttr string   `xml:"ei:schemaVersion,attr"`
	VenID      string   `xml:"ei:venID"`
}

type specifierPayloadXML struct {
	RID         string `xml:"ei:rID"`
	ReadingType string `xml:"ei:readingType"`
}

type reportSpecifierXML struct {
	ReportSpecifierID string                `xml:"ei:reportSpecifierID"`
	Granularity       durationXML           `xml:"xcal:granularity"`
	ReportBackDur     durationXML           `xml:"ei:reportBackDuration"`
	Payloads          []specifierPayloadXML `xml:"ei:specifierPayload"`
}

type reportRequestXML struct {
	ReportRequestID string             `xml:"ei:reportRequestID"`
	Specifier       reportSpecifierXML `xml:"ei:reportSpecifier"`
}

type registeredReportXML struct {
	XMLName    xml.Name           `xml:"oadr:oadrRegisteredReport"`
	SchemaAttr string             `xml:"ei:schemaVersion,attr"`
	Response   eiResponseXML      `xml:"ei:eiResponse"`
	Requests   []reportRequestXML `xml:"oadr:oadrReportRequest"`
	VenID      string             `xml:"ei:venID,omitempty"`
}

type createReportXML struct {
	XMLName    xml.Name           `xml:"oadr:oadrCreateReport"`
	SchemaAttr string             `xml:"ei:schemaVersion,attr"`
	RequestID  string             `xml:"pyld:requestID"`
	Requests   []reportRequestXML `xml:"oadr:oadrReportRequest"`
	VenID      string             `xml:"ei:venID,omitempty"`
}

type createdReportXML struct {
	XMLName    xml.Name      `xml:"oadr:oadrCreatedReport"`
	SchemaAttr string        `xml:"ei:schemaVersion,attr"`
	Response   eiResponseXML `xml:"ei:eiResponse"`
	Pending    []string      `xml:"oadr:oadrPendingReports>ei:reportRequestID"`
	VenID      string        `xml:"ei:venID,omitempty"`
}

type updatedReportXML struct {
	XMLName    xml.Name      `xml:"oadr:oadrUpdatedReport"`
	SchemaAttr string        `xml:"ei:schemaVersion,attr"`
	Response   eiResponseXML `xml:"ei:eiResponse"`
	VenID      string        `xml:"ei:venID,omitempty"`
}

type eventDescriptorXML struct {
	EventID            string `xml:"ei:eventID"`
	ModificationNumber int    `xml:"ei:modificationNumber"`
	Priority           int    `xml:"ei:priority"`
	MarketContext      string `xml:"ei:eiMarketContext>emix:marketContext"`
	CreatedDateTime    string `xml:"ei:createdDateTime"`
	EventStatus        string `xml:"ei:eventStatus"`
	TestEvent          string `xml:"ei:testEvent"`
}

type activePeriodXML struct {
	Start    dateTimeXML `xml:"xcal:properties>xcal:dtstart"`
	Duration durationXML `xml:"xcal:properties>xcal:duration"`
}

type eventIntervalXML struct {
	Start    *dateTimeXML `xml:"xcal:dtstart,omitempty"`
	Duration durationXML  `xml:"xcal:duration"`
	UID      string       `xml:"xcal:uid>xcal:text"`
	Value    string       `xml:"ei:signalPayload>ei:payloadFloat>ei:value"`
}

type eventSignalXML struct {
	Intervals  []eventIntervalXML `xml:"strm:intervals>ei:interval"`
	SignalName string             `xml:"ei:signalName"`
	SignalType string             `xml:"ei:signalType"`
	SignalID   string             `xml:"ei:signalID"`
}

type eiEventXML struct {
	Descriptor   eventDescriptorXML `xml:"ei:eventDescriptor"`
	ActivePeriod activePeriodXML    `xml:"ei:eiActivePeriod"`
	Signals      []eventSignalXML   `xml:"ei:eiEventSignals>ei:eiEventSignal"`
	TargetVenIDs []string           `xml:"ei:eiTarget>ei:venID"`
}

type oadrEventXML struct {
	Event            eiEventXML `xml:"ei:eiEvent"`
	ResponseRequired string     `xml:"oadr:oadrResponseRequired"`
}

type distributeEventXML struct {
	XMLName    xml.Name       `xml:"oadr:oadrDistributeEvent"`
	SchemaAttr string         `xml:"ei:schemaVersion,attr"`
	Response   *eiResponseXML `xml:"ei:eiResponse,omitempty"`
	RequestID  string         `xml:"pyld:requestID"`
	VTNID      string         `xml:"ei:vtnID"`
	Events     []oadrEventXML `xml:"oadr:oadrEvent"`
}

type createdOptXML struct {
	XMLName    xml.Name      `xml:"oadr:oadrCreatedOpt"`
	SchemaAttr string        `xml:"ei:schemaVersion,attr"`
	Response   eiResponseXML `xml:"ei:eiResponse"`
	OptID      string        `xml:"ei:optID"`
}

type canceledOptXML struct {
	XMLName    xml.Name      `xml:"oadr:oadrCanceledOpt"`
	SchemaAttr string        `xml:"ei:schemaVersion,attr"`
	Response   eiResponseXML `xml:"ei:eiResponse"`
	OptID      string        `xml:"ei:optID"`
}

// Encode serializes a reply into a complete oadrPayload document.
func Encode(r Reply) ([]byte, error) {
	msg, err := buildMessage(r)
	if err != nil {
		return nil, err
	}

	doc := payloadXML{
		XmlnsOadr:    NSOadr,
		XmlnsEi:      NSEi,
		XmlnsPyld:    NSPyld,
		XmlnsEmix:    NSEmix,
		XmlnsXcal:    NSXcal,
		XmlnsStrm:    NSStrm,
		SignedObject: signedObjectXML{Message: msg},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, errl.Errorf("failed to marshal %s: %w", r.Type, err)
	}
	return append([]byte(xml.Header), out...), nil
}

func buildMessage(r Reply) (any, error) {
	resp := eiResponseXML{
		Code:        strconv.Itoa(r.Response.Code),
		Description: r.Response.Description,
		RequestID:   r.Response.RequestID,
	}

	switch r.Type {
	case MsgResponse:
		return responseXML{SchemaAttr: SchemaVersion, Response: resp, VenID: r.VenID}, nil

	case MsgCreatedPartyRegistration:
		info, err := bodyAs[RegistrationInfo](r)
		if err != nil {
			return nil, err
		}
		msg := createdPartyRegistrationXML{
			SchemaAttr: SchemaVersion,
			Response:   resp,
			VenID:      r.VenID,
			VTNID:      r.VTNID,
		}
		profiles := DefaultProfiles()
		if info != nil {
			msg.RegistrationID = info.RegistrationID
			msg.PollFreq = &durationXML{Duration: FormatDuration(info.PollFrequency)}
			if len(info.Profiles) > 0 {
				profiles = info.Profiles
			}
		}
		for _, p := range profiles {
			px := profileXML{Name: p.Name}
			for _, t := range p.Transports {
				px.Transports = append(px.Transports, transportXML{Name: t})
			}
			msg.Profiles = append(msg.Profiles, px)
		}
		return msg, nil

	case MsgCanceledPartyRegistration:
		info, err := bodyAs[RegistrationInfo](r)
		if err != nil {
			return nil, err
		}
		msg := canceledPartyRegistrationXML{SchemaAttr: SchemaVersion, Response: resp, VenID: r.VenID}
		if info != nil {
			msg.RegistrationID = info.RegistrationID
		}
		return msg, nil

	case MsgRequestReregistration:
		return requestReregistrationXML{SchemaAttr: SchemaVersion, VenID: r.VenID}, nil

	case MsgRegisteredReport:
		reqs, err := bodyAs[ReportRequests](r)
		if err != nil {
			return nil, err
		}
		msg := registeredReportXML{SchemaAttr: SchemaVersion, Response: resp, VenID: r.VenID}
		if reqs != nil {
			msg.Requests = encodeReportRequests(reqs.Requests)
		}
		return msg, nil

	case MsgCreateReport:
		reqs, err := bodyAs[ReportRequests](r)
		if err != nil {
			return nil, err
		}
		msg := createReportXML{SchemaAttr: SchemaVersion, RequestID: r.Response.RequestID, VenID: r.VenID}
		if reqs != nil {
			if reqs.RequestID != "" {
				msg.RequestID = reqs.RequestID
			}
			msg.Requests = encodeReportRequests(reqs.Requests)
		}
		return msg, nil

	case MsgCreatedReport:
		pending, err := bodyAs[PendingReports](r)
		if err != nil {
			return nil, err
		}
		msg := createdReportXML{SchemaAttr: SchemaVersion, Response: resp, VenID: r.VenID}
		if pending != nil {
			msg.Pending = pending.ReportRequestIDs
		}
		return msg, nil

	case MsgUpdatedReport:
		return updatedReportXML{SchemaAttr: SchemaVersion, Response: resp, VenID: r.VenID}, nil

	case MsgDistributeEvent:
		dist, err := bodyAs[EventDistribution](r)
		if err != nil {
			return nil, err
		}
		msg := distributeEventXML{
			SchemaAttr: SchemaVersion,
			Response:   &resp,
			RequestID:  r.Response.RequestID,
			VTNID:      r.VTNID,
		}
		if dist != nil {
			if dist.RequestID != "" {
				msg.RequestID = dist.RequestID
			}
			now := dist.Now
			if now.IsZero() {
				now = time.Now()
			}
			for i := range dist.Events {
				msg.Events = append(msg.Events, encodeEvent(&dist.Events[i], now))
			}
		}
		return msg, nil

	case MsgCreatedOpt, MsgCanceledOpt:
		opt, err := bodyAs[OptResult](r)
		if err != nil {
			return nil, err
		}
		var optID string
		if opt != nil {
			optID = opt.OptID
		}
		if r.Type == MsgCreatedOpt {
			return createdOptXML{SchemaAttr: SchemaVersion, Response: resp, OptID: optID}, nil
		}
		return canceledOptXML{SchemaAttr: SchemaVersion, Response: resp, OptID: optID}, nil
	}

	return nil, errl.Errorf("unsupported reply type %q", r.Type)
}

// bodyAs returns the reply body as *T, nil when the body is absent.
func bodyAs[T any](r Reply) (*T, error) {
	if r.Body == nil {
		return nil, nil
	}
	switch b := r.Body.(type) {
	case *T:
		return b, nil
	case T:
		return &b, nil
	}
	var want T
	return nil, errl.Errorf("reply %s: body must be %T, got %T", r.Type, want, r.Body)
}

func encodeReportRequests(reqs []models.ReportRequest) []reportRequestXML {
	out := make([]reportRequestXML, 0, len(reqs))
	for _, req := range reqs {
		rx := reportRequestXML{
			ReportRequestID: req.ReportRequestID,
			Specifier: reportSpecifierXML{
				ReportSpecifierID: req.ReportSpecifierID,
				Granularity:       durationXML{Duration: FormatDuration(req.Granularity)},
				ReportBackDur:     durationXML{Duration: FormatDuration(req.ReportBackDur)},
			},
		}
		for _, rid := range req.RIDs {
			rx.Specifier.Payloads = append(rx.Specifier.Payloads, specifierPayloadXML{RID: rid, ReadingType: "Direct Read"})
		}
		out = append(out, rx)
	}
	return out
}

func encodeEvent(e *models.Event, now time.Time) oadrEventXML {
	responseRequired := e.ResponseRequired
	if responseRequired == "" {
		responseRequired = "always"
	}

	signal := eventSignalXML{
		SignalName: e.SignalName,
		SignalType: e.SignalType,
		SignalID:   e.SignalID,
	}
	for i, iv := range e.Intervals {
		ix := eventIntervalXML{
			Duration: durationXML{Duration: FormatDuration(iv.Duration)},
			UID:      strconv.Itoa(i),
			Value:    strconv.FormatFloat(iv.Payload, 'f', -1, 64),
		}
		if !iv.Start.IsZero() {
			ix.Start = &dateTimeXML{DateTime: formatDateTime(iv.Start)}
		}
		signal.Intervals = append(signal.Intervals, ix)
	}

	return oadrEventXML{
		Event: eiEventXML{
			Descriptor: eventDescriptorXML{
				EventID:            e.EventID,
				ModificationNumber: e.ModificationNumber,
				Priority:           e.Priority,
				MarketContext:      e.MarketContext,
				CreatedDateTime:    formatDateTime(e.CreatedAt),
				EventStatus:        e.Status(now),
				TestEvent:          "false",
			},
			ActivePeriod: activePeriodXML{
				Start:    dateTimeXML{DateTime: formatDateTime(e.Start())},
				Duration: durationXML{Duration: FormatDuration(e.Duration())},
			},
			Signals:      []eventSignalXML{signal},
			TargetVenIDs: []string{e.VenID},
		},
		ResponseRequired: responseRequired,
	}
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
