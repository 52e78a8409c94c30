package openadr

import (
	"fmt"
	"net/http"
)

// OpenADR response codes.
const (
	CodeOK                        = 200
	CodeOutOfSequence             = 450
	CodeNotAllowed                = 451
	CodeInvalidID                 = 452
	CodeNotRecognized             = 453
	CodeInvalidData               = 454
	CodeComplianceError           = 459
	CodeSignalNotSupported        = 460
	CodeReportNotSupported        = 461
	CodeTargetMismatch            = 462
	CodeNotRegisteredOrAuthorized = 463
	CodeDeploymentError           = 469
)

// ProtocolError is a disagreement at the OpenADR level. It is reported to the VEN
// inside a well-formed reply with HTTP 200, never as an HTTP error status.
type ProtocolError struct {
	Code        int
	Description string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("openadr error %d: %s", e.Code, e.Description)
}

// NewProtocolError creates a ProtocolError with a formatted description.
func NewProtocolError(code int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// TransportError rejects a request before it can be understood as an OpenADR
// message: wrong content type or a document that fails validation.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// InvalidXML wraps a parser diagnostic into a 400 TransportError.
func InvalidXML(format string, args ...any) *TransportError {
	return &TransportError{
		Status:  http.StatusBadRequest,
		Message: "XML failed validation: " + fmt.Sprintf(format, args...),
	}
}
