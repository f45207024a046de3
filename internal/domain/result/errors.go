package result

import "fmt"

// Error codes carried by ErrorMessage.
const (
	CodeNullQuery                 = 1
	CodeServerMisconfigured       = 9
	CodeBackendCommunicationError = 10
	CodeNoAnswerWhenPinging       = 11
	CodeTimeout                   = 12
	CodeEmptyDocsums              = 13
)

// ErrorMessage is a structured, non-fatal error attached to a Result or Pong.
type ErrorMessage struct {
	Code    int
	Message string
	Detail  string
}

func (e ErrorMessage) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Detail)
}

// IsTimeout reports whether the error represents an expired deadline.
func (e ErrorMessage) IsTimeout() bool {
	return e.Code == CodeTimeout || e.Code == CodeNoAnswerWhenPinging
}

// NewNullQuery reports a query without terms.
func NewNullQuery(detail string) ErrorMessage {
	return ErrorMessage{Code: CodeNullQuery, Message: "Null query", Detail: detail}
}

// NewTimeout reports a deadline expiry on either phase.
func NewTimeout(detail string) ErrorMessage {
	return ErrorMessage{Code: CodeTimeout, Message: "Timed out", Detail: detail}
}

// NewBackendCommunicationError reports a failed exchange with a backend.
func NewBackendCommunicationError(detail string) ErrorMessage {
	return ErrorMessage{Code: CodeBackendCommunicationError, Message: "Backend communication error", Detail: detail}
}

// NewEmptyDocsums reports hits the fill phase could not match to a summary.
func NewEmptyDocsums(detail string) ErrorMessage {
	return ErrorMessage{Code: CodeEmptyDocsums, Message: "Empty document summaries", Detail: detail}
}

// NewServerMisconfigured reports a configuration problem reported by a backend.
func NewServerMisconfigured(detail string) ErrorMessage {
	return ErrorMessage{Code: CodeServerMisconfigured, Message: "Service is misconfigured", Detail: detail}
}

// NewNoAnswerWhenPinging reports a ping that timed out.
func NewNoAnswerWhenPinging(detail string) ErrorMessage {
	return ErrorMessage{Code: CodeNoAnswerWhenPinging, Message: "No answer from node", Detail: detail}
}
