package models

import "time"

// VenRecord represents a VEN known to this VTN.
// A record without a RegistrationID is treated as unregistered even when a fingerprint is on file.
type VenRecord struct {
	VenID          string    `json:"ven_id" yaml:"ven_id"`
	VenName        string    `json:"ven_name" yaml:"ven_name"`
	Fingerprint    string    `json:"fingerprint,omitempty" yaml:"fingerprint"`
	RegistrationID string    `json:"registration_id,omitempty" yaml:"registration_id"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"-"`
}

// Registered reports whether the VEN holds a current registration.
func (v *VenRecord) Registered() bool {
	return v != nil && v.RegistrationID != ""
}

// RegistrationRequest carries the fields of an oadrCreatePartyRegistration that the
// registration decision hook needs.
type RegistrationRequest struct {
	RequestID        string `json:"request_id"`
	VenID            string `json:"ven_id,omitempty"`
	VenName          string `json:"ven_name"`
	RegistrationID   string `json:"registration_id,omitempty"`
	ProfileName      string `json:"profile_name"`
	TransportName    string `json:"transport_name"`
	TransportAddress string `json:"transport_address,omitempty"`
	ReportOnly       bool   `json:"report_only"`
	XMLSignature     bool   `json:"xml_signature"`
	HTTPPullModel    bool   `json:"http_pull_model"`
	Fingerprint      string `json:"fingerprint"`
}
