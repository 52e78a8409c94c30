package testutil

import (
	"fmt"
	"strings"
)

const payloadHead = `<?xml version="1.0" encoding="utf-8"?>
<oadr:oadrPayload xmlns:oadr="http://openadr.org/oadr-2.0b/2012/07"
  xmlns:ei="http://docs.oasis-open.org/ns/energyinterop/201110"
  xmlns:pyld="http://docs.oasis-open.org/ns/energyinterop/201110/payloads"
  xmlns:emix="http://docs.oasis-open.org/ns/emix/2011/06"
  xmlns:power="http://docs.oasis-open.org/ns/emix/2011/06/power"
  xmlns:xcal="urn:ietf:params:xml:ns:icalendar-2.0"
  xmlns:strm="urn:ietf:params:xml:ns:icalendar-2.0:stream">
<oadr:oadrSignedObject>`

const payloadTail = `</oadr:oadrSignedObject>
</oadr:oadrPayload>`

// Payload wraps a message element into an oadrPayload document.
func Payload(message string) []byte {
	return []byte(payloadHead + message + payloadTail)
}

// Unclosed strips the closing oadrSignedObject and oadrPayload tags from doc.
func Unclosed(doc []byte) []byte {
	return []byte(strings.TrimSuffix(string(doc), payloadTail))
}

// optional renders an element only when value is not empty.
func optional(element, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf("<%s>%s</%s>", element, value, element)
}

// PollXML builds an oadrPoll.
func PollXML(venID string) []byte {
	return Payload(`<oadr:oadrPoll ei:schemaVersion="2.0b">` + optional("ei:venID", venID) + `</oadr:oadrPoll>`)
}

// QueryRegistrationXML builds an oadrQueryRegistration.
func QueryRegistrationXML(requestID, vtnID string) []byte {
	return Payload(`<oadr:oadrQueryRegistration ei:schemaVersion="2.0b">` +
		optional("pyld:requestID", requestID) + optional("ei:vtnID", vtnID) +
		`</oadr:oadrQueryRegistration>`)
}

// CreatePartyRegistrationXML builds an oadrCreatePartyRegistration for a VEN without an id.
func CreatePartyRegistrationXML(requestID, venName string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrCreatePartyRegistration ei:schemaVersion="2.0b">
  <pyld:requestID>%s</pyld:requestID>
  <oadr:oadrProfileName>2.0b</oadr:oadrProfileName>
  <oadr:oadrTransportName>simpleHttp</oadr:oadrTransportName>
  <oadr:oadrTransportAddress></oadr:oadrTransportAddress>
  <oadr:oadrReportOnly>false</oadr:oadrReportOnly>
  <oadr:oadrXmlSignature>false</oadr:oadrXmlSignature>
  <oadr:oadrVenName>%s</oadr:oadrVenName>
  <oadr:oadrHttpPullModel>true</oadr:oadrHttpPullModel>
</oadr:oadrCreatePartyRegistration>`, requestID, venName))
}

// CancelPartyRegistrationXML builds an oadrCancelPartyRegistration.
func CancelPartyRegistrationXML(requestID, registrationID, venID string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrCancelPartyRegistration ei:schemaVersion="2.0b">
  <pyld:requestID>%s</pyld:requestID>
  <ei:registrationID>%s</ei:registrationID>
  <ei:venID>%s</ei:venID>
</oadr:oadrCancelPartyRegistration>`, requestID, registrationID, venID))
}

// Descriptor is one offered series for RegisterReportXML.
type Descriptor struct {
	RID         string
	Description string
	Units       string
	MinPeriod   string
	MaxPeriod   string
}

// OfferedReport is one report for RegisterReportXML.
type OfferedReport struct {
	SpecifierID string
	Name        string
	Descriptors []Descriptor
}

// RegisterReportXML builds an oadrRegisterReport.
func RegisterReportXML(requestID, venID string, reports ...OfferedReport) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<oadr:oadrRegisterReport ei:schemaVersion="2.0b"><pyld:requestID>%s</pyld:requestID>`, requestID)
	for _, r := range reports {
		b.WriteString(`<oadr:oadrReport><ei:eiReportID>` + r.SpecifierID + `-id</ei:eiReportID>`)
		for _, d := range r.Descriptors {
			b.WriteString(`<oadr:oadrReportDescription>`)
			b.WriteString(optional("ei:rID", d.RID))
			b.WriteString(`<ei:reportDataSource><ei:resourceID>device1</ei:resourceID></ei:reportDataSource>`)
			b.WriteString(`<ei:reportType>usage</ei:reportType>`)
			if d.Description != "" || d.Units != "" {
				fmt.Fprintf(&b, `<power:voltage><power:itemDescription>%s</power:itemDescription><power:itemUnits>%s</power:itemUnits></power:voltage>`,
					d.Description, d.Units)
			}
			b.WriteString(`<ei:readingType>Direct Read</ei:readingType>`)
			fmt.Fprintf(&b, `<oadr:oadrSamplingRate><oadr:oadrMinPeriod>%s</oadr:oadrMinPeriod><oadr:oadrMaxPeriod>%s</oadr:oadrMaxPeriod><oadr:oadrOnChange>false</oadr:oadrOnChange></oadr:oadrSamplingRate>`,
				d.MinPeriod, d.MaxPeriod)
			b.WriteString(`</oadr:oadrReportDescription>`)
		}
		fmt.Fprintf(&b, `<ei:reportRequestID>0</ei:reportRequestID><ei:reportSpecifierID>%s</ei:reportSpecifierID><ei:reportName>%s</ei:reportName><ei:createdDateTime>2026-10-19T12:00:00Z</ei:createdDateTime></oadr:oadrReport>`,
			r.SpecifierID, r.Name)
	}
	b.WriteString(optional("ei:venID", venID))
	b.WriteString(`</oadr:oadrRegisterReport>`)
	return Payload(b.String())
}

// UpdateReportXML builds an oadrUpdateReport with one interval per value, one minute apart, all for rID.
func UpdateReportXML(requestID, venID, specifierID, rID string, values ...float64) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<oadr:oadrUpdateReport ei:schemaVersion="2.0b"><pyld:requestID>%s</pyld:requestID><oadr:oadrReport><strm:intervals>`, requestID)
	for i, v := range values {
		fmt.Fprintf(&b, `<ei:interval><xcal:dtstart><xcal:date-time>2026-10-19T12:%02d:00Z</xcal:date-time></xcal:dtstart><oadr:oadrReportPayload><ei:rID>%s</ei:rID><ei:payloadFloat><ei:value>%g</ei:value></ei:payloadFloat></oadr:oadrReportPayload></ei:interval>`,
			i, rID, v)
	}
	fmt.Fprintf(&b, `</strm:intervals><ei:eiReportID>r1</ei:eiReportID><ei:reportRequestID>rr1</ei:reportRequestID><ei:reportSpecifierID>%s</ei:reportSpecifierID><ei:reportName>TELEMETRY_USAGE</ei:reportName><ei:createdDateTime>2026-10-19T12:10:00Z</ei:createdDateTime></oadr:oadrReport>`, specifierID)
	b.WriteString(optional("ei:venID", venID))
	b.WriteString(`</oadr:oadrUpdateReport>`)
	return Payload(b.String())
}

// RequestEventXML builds an oadrRequestEvent.
func RequestEventXML(requestID, venID string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrRequestEvent ei:schemaVersion="2.0b"><pyld:eiRequestEvent><pyld:requestID>%s</pyld:requestID><ei:venID>%s</ei:venID></pyld:eiRequestEvent></oadr:oadrRequestEvent>`,
		requestID, venID))
}

// CreatedEventXML builds an oadrCreatedEvent answering one event.
func CreatedEventXML(venID, eventID string, modification int, optType string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrCreatedEvent ei:schemaVersion="2.0b"><pyld:eiCreatedEvent>
<ei:eiResponse><ei:responseCode>200</ei:responseCode><ei:responseDescription>OK</ei:responseDescription><pyld:requestID></pyld:requestID></ei:eiResponse>
<ei:eventResponses><ei:eventResponse><ei:responseCode>200</ei:responseCode><ei:responseDescription>OK</ei:responseDescription><pyld:requestID>req-evt</pyld:requestID>
<ei:qualifiedEventID><ei:eventID>%s</ei:eventID><ei:modificationNumber>%d</ei:modificationNumber></ei:qualifiedEventID><ei:optType>%s</ei:optType></ei:eventResponse></ei:eventResponses>
<ei:venID>%s</ei:venID></pyld:eiCreatedEvent></oadr:oadrCreatedEvent>`, eventID, modification, optType, venID))
}

// CreateOptXML builds an oadrCreateOpt with a single availability window.
func CreateOptXML(requestID, venID, optID, optType, start, duration string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrCreateOpt ei:schemaVersion="2.0b">
<ei:optID>%s</ei:optID><ei:optType>%s</ei:optType><ei:optReason>participating</ei:optReason>
<ei:venID>%s</ei:venID>
<xcal:vavailability><xcal:components><xcal:available><xcal:properties>
<xcal:dtstart><xcal:date-time>%s</xcal:date-time></xcal:dtstart><xcal:duration><xcal:duration>%s</xcal:duration></xcal:duration>
</xcal:properties></xcal:available></xcal:components></xcal:vavailability>
<ei:createdDateTime>2026-10-19T12:00:00Z</ei:createdDateTime><pyld:requestID>%s</pyld:requestID>
</oadr:oadrCreateOpt>`, optID, optType, venID, start, duration, requestID))
}

// CancelOptXML builds an oadrCancelOpt.
func CancelOptXML(requestID, venID, optID string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrCancelOpt ei:schemaVersion="2.0b"><pyld:requestID>%s</pyld:requestID><ei:optID>%s</ei:optID><ei:venID>%s</ei:venID></oadr:oadrCancelOpt>`,
		requestID, optID, venID))
}

// ResponseXML builds an oadrResponse acknowledgement.
func ResponseXML(venID string) []byte {
	return Payload(fmt.Sprintf(`<oadr:oadrResponse ei:schemaVersion="2.0b"><ei:eiResponse><ei:responseCode>200</ei:responseCode><ei:responseDescription>OK</ei:responseDescription><pyld:requestID></pyld:requestID></ei:eiResponse><ei:venID>%s</ei:venID></oadr:oadrResponse>`,
		venID))
}

// WithVTNID inserts an ei:vtnID element right after the opening tag of the message.
func WithVTNID(doc []byte, vtnID string) []byte {
	s := string(doc)
	i := strings.Index(s, "<oadr:oadrSignedObject>") + len("<oadr:oadrSignedObject>")
	j := i + strings.Index(s[i:], ">") + 1
	return []byte(s[:j] + "<ei:vtnID>" + vtnID + "</ei:vtnID>" + s[j:])
}
