package openadr

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Envelope is a parsed inbound message. It lives for the duration of one request.
// VenID, VTNID and RequestID are empty when the message does not carry them.
type Envelope struct {
	Type      string
	VenID     string
	VTNID     string
	RequestID string
	Body      any
}

// header is implemented by every inbound message to expose the fields used for
// routing and authentication.
type header interface {
	header() (requestID, venID, vtnID string)
}

// QueryRegistration is an oadrQueryRegistration.
type QueryRegistration struct {
	RequestID string `xml:"requestID"`
	VenID     string `xml:"venID"`
	VTNID     string `xml:"vtnID"`
}

func (m *QueryRegistration) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// CreatePartyRegistration is an oadrCreatePartyRegistration.
type CreatePartyRegistration struct {
	RequestID        string `xml:"requestID"`
	RegistrationID   string `xml:"registrationID"`
	VenID            string `xml:"venID"`
	VTNID            string `xml:"vtnID"`
	ProfileName      string `xml:"oadrProfileName"`
	TransportName    string `xml:"oadrTransportName"`
	TransportAddress string `xml:"oadrTransportAddress"`
	ReportOnly       bool   `xml:"oadrReportOnly"`
	XMLSignature     bool   `xml:"oadrXmlSignature"`
	VenName          string `xml:"oadrVenName"`
	HTTPPullModel    bool   `xml:"oadrHttpPullModel"`
}

func (m *CreatePartyRegistration) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// Request converts the message for the registration decision hook.
func (m *CreatePartyRegistration) Request(fingerprint string) models.RegistrationRequest {
	return models.RegistrationRequest{
		RequestID:        m.RequestID,
		VenID:            m.VenID,
		VenName:          m.VenName,
		RegistrationID:   m.RegistrationID,
		ProfileName:      m.ProfileName,
		TransportName:    m.TransportName,
		TransportAddress: m.TransportAddress,
		ReportOnly:       m.ReportOnly,
		XMLSignature:     m.XMLSignature,
		HTTPPullModel:    m.HTTPPullModel,
		Fingerprint:      fingerprint,
	}
}

// CancelPartyRegistration is an oadrCancelPartyRegistration.
type CancelPartyRegistration struct {
	RequestID      string `xml:"requestID"`
	RegistrationID string `xml:"registrationID"`
	VenID          string `xml:"venID"`
	VTNID          string `xml:"vtnID"`
}

func (m *CancelPartyRegistration) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// SamplingRate is an oadrSamplingRate.
type SamplingRate struct {
	MinPeriod string `xml:"oadrMinPeriod"`
	MaxPeriod string `xml:"oadrMaxPeriod"`
	OnChange  bool   `xml:"oadrOnChange"`
}

// itemBase captures any emix item element (power:voltage, oadr:customUnit, ...)
// together with the other elements of a report description that are not mapped explicitly.
type itemBase struct {
	XMLName         xml.Name
	ItemDescription string `xml:"itemDescription"`
	ItemUnits       string `xml:"itemUnits"`
	SiScaleCode     string `xml:"siScaleCode"`
}

// ReportDescription is an oadrReportDescription.
type ReportDescription struct {
	RID          string        `xml:"rID"`
	ResourceIDs  []string      `xml:"reportDataSource>resourceID"`
	ReportType   string        `xml:"reportType"`
	ReadingType  string        `xml:"readingType"`
	SamplingRate *SamplingRate `xml:"oadrSamplingRate"`
	Items        []itemBase    `xml:",any"`
}

// Measurement returns the description and unit of the first emix item, if any.
func (d *ReportDescription) Measurement() (name, unit string, ok bool) {
	for _, item := range d.Items {
		if item.ItemDescription != "" || item.ItemUnits != "" {
			return strings.TrimSpace(item.ItemDescription), strings.TrimSpace(item.ItemUnits), true
		}
	}
	return "", "", false
}

// ReportPayload is an oadrReportPayload.
type ReportPayload struct {
	RID   string   `xml:"rID"`
	Value *float64 `xml:"payloadFloat>value"`
}

// ReportInterval is an ei:interval inside a report.
type ReportInterval struct {
	Start    string          `xml:"dtstart>date-time"`
	Duration string          `xml:"duration>duration"`
	Payloads []ReportPayload `xml:"oadrReportPayload"`
}

// Report is an oadrReport, used both for registration metadata and for updates.
type Report struct {
	ReportID          string              `xml:"eiReportID"`
	Descriptions      []ReportDescription `xml:"oadrReportDescription"`
	ReportRequestID   string              `xml:"reportRequestID"`
	ReportSpecifierID string              `xml:"reportSpecifierID"`
	ReportName        string              `xml:"reportName"`
	CreatedDateTime   string              `xml:"createdDateTime"`
	Intervals         []ReportInterval    `xml:"intervals>interval"`
}

// Registration converts an offered report into the negotiator input. Sampling
// periods that cannot be parsed are left at zero.
func (r *Report) Registration() models.ReportRegistration {
	reg := models.ReportRegistration{
		ReportSpecifierID: strings.TrimSpace(r.ReportSpecifierID),
		ReportName:        strings.TrimSpace(r.ReportName),
	}
	for _, desc := range r.Descriptions {
		d := models.ReportDescriptor{
			RID:         strings.TrimSpace(desc.RID),
			ReportType:  desc.ReportType,
			ReadingType: desc.ReadingType,
		}
		if len(desc.ResourceIDs) > 0 {
			d.ResourceID = desc.ResourceIDs[0]
		}
		if name, unit, ok := desc.Measurement(); ok {
			d.MeasurementName = name
			d.MeasurementUnit = unit
		}
		if desc.SamplingRate != nil {
			d.MinSamplingPeriod, _ = ParseDuration(desc.SamplingRate.MinPeriod)
			d.MaxSamplingPeriod, _ = ParseDuration(desc.SamplingRate.MaxPeriod)
		}
		reg.Descriptors = append(reg.Descriptors, d)
	}
	return reg
}

// Samples groups the interval payloads of a report update by rID.
// Payloads without a float value or with an unparseable start are dropped.
func (r *Report) Samples() map[string][]models.Sample {
	out := make(map[string][]models.Sample)
	for _, iv := range r.Intervals {
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(iv.Start))
		if err != nil {
			continue
		}
		for _, p := range iv.Payloads {
			if p.Value == nil {
				continue
			}
			rid := strings.TrimSpace(p.RID)
			out[rid] = append(out[rid], models.Sample{Timestamp: ts, Value: *p.Value})
		}
	}
	return out
}

// RegisterReport is an oadrRegisterReport.
type RegisterReport struct {
	RequestID       string   `xml:"requestID"`
	Reports         []Report `xml:"oadrReport"`
	VenID           string   `xml:"venID"`
	VTNID           string   `xml:"vtnID"`
	ReportRequestID string   `xml:"reportRequestID"`
}

func (m *RegisterReport) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// ReportSpecifier is an ei:reportSpecifier inside an oadrReportRequest.
type ReportSpecifier struct {
	ReportSpecifierID string   `xml:"reportSpecifierID"`
	Granularity       string   `xml:"granularity>duration"`
	ReportBackDur     string   `xml:"reportBackDuration>duration"`
	RIDs              []string `xml:"specifierPayload>rID"`
}

// ReportRequest is an oadrReportRequest.
type ReportRequest struct {
	ReportRequestID string          `xml:"reportRequestID"`
	Specifier       ReportSpecifier `xml:"reportSpecifier"`
}

// CreateReport is an oadrCreateReport sent by a VEN.
type CreateReport struct {
	RequestID      string          `xml:"requestID"`
	ReportRequests []ReportRequest `xml:"oadrReportRequest"`
	VenID          string          `xml:"venID"`
	VTNID          string          `xml:"vtnID"`
}

func (m *CreateReport) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// Response is an ei:eiResponse.
type Response struct {
	Code        int    `xml:"responseCode"`
	Description string `xml:"responseDescription"`
	RequestID   string `xml:"requestID"`
}

// CreatedReport is an oadrCreatedReport sent by a VEN.
type CreatedReport struct {
	Response         Response `xml:"eiResponse"`
	PendingReportIDs []string `xml:"oadrPendingReports>reportRequestID"`
	VenID            string   `xml:"venID"`
	VTNID            string   `xml:"vtnID"`
}

func (m *CreatedReport) header() (string, string, string) {
	return m.Response.RequestID, m.VenID, m.VTNID
}

// RequestReport is an oadrRequestReport.
type RequestReport struct {
	RequestID string `xml:"requestID"`
	VenID     string `xml:"venID"`
	VTNID     string `xml:"vtnID"`
}

func (m *RequestReport) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// UpdateReport is an oadrUpdateReport.
type UpdateReport struct {
	RequestID string   `xml:"requestID"`
	Reports   []Report `xml:"oadrReport"`
	VenID     string   `xml:"venID"`
	VTNID     string   `xml:"vtnID"`
}

func (m *UpdateReport) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// Poll is an oadrPoll.
type Poll struct {
	VenID string `xml:"venID"`
	VTNID string `xml:"vtnID"`
}

func (m *Poll) header() (string, string, string) {
	return "", m.VenID, m.VTNID
}

// EventResponse is one ei:eventResponse inside an oadrCreatedEvent.
type EventResponse struct {
	ResponseCode        int    `xml:"responseCode"`
	ResponseDescription string `xml:"responseDescription"`
	RequestID           string `xml:"requestID"`
	EventID             string `xml:"qualifiedEventID>eventID"`
	ModificationNumber  int    `xml:"qualifiedEventID>modificationNumber"`
	OptType             string `xml:"optType"`
}

// CreatedEvent is an oadrCreatedEvent.
type CreatedEvent struct {
	Response       Response        `xml:"eiCreatedEvent>eiResponse"`
	EventResponses []EventResponse `xml:"eiCreatedEvent>eventResponses>eventResponse"`
	VenID          string          `xml:"eiCreatedEvent>venID"`
	VTNID          string          `xml:"eiCreatedEvent>vtnID"`
}

func (m *CreatedEvent) header() (string, string, string) {
	return m.Response.RequestID, m.VenID, m.VTNID
}

// RequestEvent is an oadrRequestEvent.
type RequestEvent struct {
	RequestID  string `xml:"eiRequestEvent>requestID"`
	VenID      string `xml:"eiRequestEvent>venID"`
	VTNID      string `xml:"eiRequestEvent>vtnID"`
	ReplyLimit int    `xml:"eiRequestEvent>replyLimit"`
}

func (m *RequestEvent) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// OptAvailability is one xcal:available window of an opt schedule.
type OptAvailability struct {
	Start    string `xml:"properties>dtstart>date-time"`
	Duration string `xml:"properties>duration>duration"`
}

// CreateOpt is an oadrCreateOpt.
type CreateOpt struct {
	OptID              string            `xml:"optID"`
	OptType            string            `xml:"optType"`
	OptReason          string            `xml:"optReason"`
	MarketContext      string            `xml:"marketContext"`
	VenID              string            `xml:"venID"`
	VTNID              string            `xml:"vtnID"`
	Availability       []OptAvailability `xml:"vavailability>components>available"`
	CreatedDateTime    string            `xml:"createdDateTime"`
	RequestID          string            `xml:"requestID"`
	EventID            string            `xml:"qualifiedEventID>eventID"`
	ModificationNumber int               `xml:"qualifiedEventID>modificationNumber"`
}

func (m *CreateOpt) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// Schedule converts the message into a stored opt schedule.
func (m *CreateOpt) Schedule() (models.OptSchedule, error) {
	sched := models.OptSchedule{
		OptID:         strings.TrimSpace(m.OptID),
		VenID:         strings.TrimSpace(m.VenID),
		OptType:       m.OptType,
		OptReason:     m.OptReason,
		MarketContext: m.MarketContext,
		EventID:       strings.TrimSpace(m.EventID),
	}
	for _, av := range m.Availability {
		start, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(av.Start))
		if err != nil {
			return sched, err
		}
		dur, err := ParseDuration(av.Duration)
		if err != nil {
			return sched, err
		}
		sched.Availability = append(sched.Availability, models.Availability{Start: start, Duration: dur})
	}
	return sched, nil
}

// CancelOpt is an oadrCancelOpt.
type CancelOpt struct {
	RequestID string `xml:"requestID"`
	OptID     string `xml:"optID"`
	VenID     string `xml:"venID"`
	VTNID     string `xml:"vtnID"`
}

func (m *CancelOpt) header() (string, string, string) {
	return m.RequestID, m.VenID, m.VTNID
}

// Acknowledgement is an oadrResponse sent by a VEN.
type Acknowledgement struct {
	Response Response `xml:"eiResponse"`
	VenID    string   `xml:"venID"`
	VTNID    string   `xml:"vtnID"`
}

func (m *Acknowledgement) header() (string, string, string) {
	return m.Response.RequestID, m.VenID, m.VTNID
}

var inbound = map[string]func() header{
	MsgQueryRegistration:       func() header { return &QueryRegistration{} },
	MsgCreatePartyRegistration: func() header { return &CreatePartyRegistration{} },
	MsgCancelPartyRegistration: func() header { return &CancelPartyRegistration{} },
	MsgRegisterReport:          func() header { return &RegisterReport{} },
	MsgCreateReport:            func() header { return &CreateReport{} },
	MsgCreatedReport:           func() header { return &CreatedReport{} },
	MsgRequestReport:           func() header { return &RequestReport{} },
	MsgUpdateReport:            func() header { return &UpdateReport{} },
	MsgPoll:                    func() header { return &Poll{} },
	MsgCreatedEvent:            func() header { return &CreatedEvent{} },
	MsgRequestEvent:            func() header { return &RequestEvent{} },
	MsgCreateOpt:               func() header { return &CreateOpt{} },
	MsgCancelOpt:               func() header { return &CancelOpt{} },
	MsgResponse:                func() header { return &Acknowledgement{} },
}

// Decode parses an oadrPayload document. Any failure is reported as a
// TransportError carrying the parser diagnostic.
func Decode(data []byte) (*Envelope, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := nextStart(dec)
	if err != nil {
		return nil, InvalidXML("%v", err)
	}
	if root.Name.Local != "oadrPayload" {
		return nil, InvalidXML("root element must be oadrPayload, found %s", root.Name.Local)
	}

	// Skip a leading ds:Signature until the signed object
	for {
		start, err := nextStart(dec)
		if err != nil {
			return nil, InvalidXML("oadrSignedObject not found: %v", err)
		}
		if start.Name.Local == "oadrSignedObject" {
			break
		}
		if err := dec.Skip(); err != nil {
			return nil, InvalidXML("%v", err)
		}
	}

	msgStart, err := nextStart(dec)
	if err != nil {
		return nil, InvalidXML("empty oadrSignedObject: %v", err)
	}

	factory, ok := inbound[msgStart.Name.Local]
	if !ok {
		return nil, InvalidXML("unsupported message type %s", msgStart.Name.Local)
	}

	body := factory()
	if err := dec.DecodeElement(body, &msgStart); err != nil {
		return nil, InvalidXML("%s: %v", msgStart.Name.Local, err)
	}
	if err := finish(dec); err != nil {
		return nil, InvalidXML("%v", err)
	}

	requestID, venID, vtnID := body.header()
	return &Envelope{
		Type:      msgStart.Name.Local,
		VenID:     strings.TrimSpace(venID),
		VTNID:     strings.TrimSpace(vtnID),
		RequestID: strings.TrimSpace(requestID),
		Body:      body,
	}, nil
}

// finish reads the rest of the document after the message element: the closing
// oadrSignedObject and oadrPayload tags, then nothing but whitespace.
func finish(dec *xml.Decoder) error {
	for _, name := range []string{"oadrSignedObject", "oadrPayload"} {
		for closed := false; !closed; {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%s not closed", name)
			}
			if err != nil {
				return err
			}
			switch t := tok.(type) {
			case xml.EndElement:
				closed = true
			case xml.StartElement:
				if name == "oadrSignedObject" {
					return fmt.Errorf("unexpected %s after the message", t.Name.Local)
				}
				if err := dec.Skip(); err != nil {
					return err
				}
			case xml.CharData:
				if len(bytes.TrimSpace(t)) > 0 {
					return fmt.Errorf("unexpected text in %s", name)
				}
			}
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected %s after oadrPayload", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("unexpected text after oadrPayload")
			}
		}
	}
}

// nextStart advances to the next start element.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, io.ErrUnexpectedEOF
			}
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.EndElement:
			return xml.StartElement{}, errors.New("unexpected end element " + t.Name.Local)
		}
	}
}
