package models

import "time"

// ReportDescriptor is one measurement series a VEN offers to report.
type ReportDescriptor struct {
	RID               string        `json:"r_id"`
	ResourceID        string        `json:"resource_id,omitempty"`
	ReportType        string        `json:"report_type,omitempty"`
	ReadingType       string        `json:"reading_type,omitempty"`
	MeasurementName   string        `json:"measurement_name,omitempty"`
	MeasurementUnit   string        `json:"measurement_unit,omitempty"`
	MinSamplingPeriod time.Duration `json:"min_sampling_period"`
	MaxSamplingPeriod time.Duration `json:"max_sampling_period"`
}

// ReportRegistration is one report offered in an oadrRegisterReport.
// ReportName may carry a METADATA_ prefix.
type ReportRegistration struct {
	ReportSpecifierID string             `json:"report_specifier_id"`
	ReportName        string             `json:"report_name"`
	Descriptors       []ReportDescriptor `json:"descriptors"`
}

// Sample is one reported value.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ReportRequest asks a VEN to start sending a report.
type ReportRequest struct {
	ReportRequestID   string        `json:"report_request_id"`
	ReportSpecifierID string        `json:"report_specifier_id"`
	Granularity       time.Duration `json:"granularity"`
	ReportBackDur     time.Duration `json:"report_back_duration"`
	RIDs              []string      `json:"r_ids"`
}

// SampleSeries identifies the series a batch of samples belongs to.
type SampleSeries struct {
	VenID             string `json:"ven_id"`
	ReportSpecifierID string `json:"report_specifier_id"`
	ReportName        string `json:"report_name"`
	RID               string `json:"r_id"`
	MeasurementName   string `json:"measurement_name"`
	Unit              string `json:"unit"`
}

// StoredSample is a sample read back from storage together with its series.
type StoredSample struct {
	SampleSeries
	Sample
}
