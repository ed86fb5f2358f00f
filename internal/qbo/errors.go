package qbo

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// codeObjectNotFound is the fault code returned for a missing entity when
// the API answers 400 instead of 404.
const codeObjectNotFound = "610"

// APIError is a non-2xx answer from the accounting API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("qbo: status %d: %s (code %s): %s", e.StatusCode, e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("qbo: status %d: %s", e.StatusCode, e.Message)
}

// NotFound reports whether the error means the requested entity does not exist.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == codeObjectNotFound
}

type faultBody struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

// ParseError builds an APIError from a failed response. The body is read
// but not closed.
func ParseError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw := drainLimit(resp.Body)

	var fb faultBody
	if err := json.Unmarshal(raw, &fb); err == nil && len(fb.Fault.Error) > 0 {
		first := fb.Fault.Error[0]
		apiErr.Code = first.Code
		if first.Message != "" {
			apiErr.Message = first.Message
		}
		apiErr.Detail = first.Detail
	}
	return apiErr
}
