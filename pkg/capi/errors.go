package capi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents an error from the CF API.
type APIError struct {
	Code   int    `json:"code"   yaml:"code"`
	Title  string `json:"title"  yaml:"title"`
	Detail string `json:"detail" yaml:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (code: %d)", e.Title, e.Detail, e.Code)
}

// ResponseError represents the error response from the API.
type ResponseError struct {
	Errors []APIError `json:"errors"`
}

// Error implements the error interface for ResponseError.
func (e *ResponseError) Error() string {
	if len(e.Errors) == 0 {
		return "unknown error"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	return fmt.Sprintf("multiple errors: %v", e.Errors)
}

// FirstError returns the first error or nil.
func (e *ResponseError) FirstError() *APIError {
	if len(e.Errors) > 0 {
		return &e.Errors[0]
	}

	return nil
}

// Common error codes.
const (
	ErrorCodeNotFound            = 10010
	ErrorCodeNotAuthenticated    = 10002
	ErrorCodeNotAuthorized       = 10003
	ErrorCodeUnprocessableEntity = 10008
	ErrorCodeBadRequest          = 10005
	ErrorCodeUniquenessError     = 10016
	ErrorCodeTooManyRequests     = 10013
)

// Error kinds. Every OperationError unwraps to exactly one of these.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrAuthentication   = errors.New("authentication failed")
	ErrDiscovery        = errors.New("discovery failed")
	ErrResourceNotFound = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")
	ErrTransport        = errors.New("transport error")
	ErrPlatform         = errors.New("platform error")
	ErrJobFailed        = errors.New("job failed")
	ErrJobTimeout       = errors.New("job timed out")
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired          = errors.New("config is required")
	ErrAPIEndpointRequired     = errors.New("API endpoint is required")
	ErrNoAuthorizationEndpoint = errors.New("no authorization endpoint in platform info")
	ErrInvalidEndpointURL      = errors.New("invalid endpoint URL")
	ErrNotAuthenticated        = errors.New("not authenticated")
)

// OperationError is the single error type surfaced by the client. Kind is one
// of the Err* kind sentinels above; Cause is the lower-level error, if any.
type OperationError struct {
	Kind        error
	StatusCode  int
	Reason      string
	Description string
	Errors      []APIError
	JobGUID     string
	Cause       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.Error())

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d %s)", e.StatusCode, e.Reason)
	}

	if e.JobGUID != "" {
		fmt.Fprintf(&b, " [job %s]", e.JobGUID)
	}

	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}

	// A parsed v3 body is already rendered through Description.
	if e.Cause != nil && len(e.Errors) == 0 {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *OperationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// NewOperationError builds an OperationError of the given kind.
func NewOperationError(kind error, statusCode int, description string, cause error) *OperationError {
	opErr := &OperationError{
		Kind:        kind,
		StatusCode:  statusCode,
		Description: description,
		Cause:       cause,
	}

	if statusCode != 0 {
		opErr.Reason = http.StatusText(statusCode)
	}

	return opErr
}

// NormalizeResponse maps a non-2xx status and its body onto the error
// taxonomy. It returns nil for statuses below 400.
func NormalizeResponse(statusCode int, body []byte) error {
	if statusCode < http.StatusBadRequest {
		return nil
	}

	opErr := NewOperationError(kindForStatus(statusCode, nil), statusCode, "", nil)

	errResp, err := ParseResponseError(body)
	if err == nil && len(errResp.Errors) > 0 {
		opErr.Kind = kindForStatus(statusCode, errResp)
		opErr.Errors = errResp.Errors
		opErr.Description = describeAPIErrors(errResp.Errors)
		opErr.Cause = errResp

		return opErr
	}

	opErr.Description = describeBody(body)

	return opErr
}

// NormalizeTransportError wraps a failure below the HTTP layer. Errors that are
// already normalized pass through unchanged.
func NormalizeTransportError(err error) error {
	if err == nil {
		return nil
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}

	return NewOperationError(ErrTransport, 0, "", err)
}

func kindForStatus(statusCode int, errResp *ResponseError) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusNotFound:
		return ErrResourceNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		if errResp == nil {
			break
		}

		if first := errResp.FirstError(); first != nil && first.Code == ErrorCodeUniquenessError {
			return ErrConflict
		}
	}

	return ErrPlatform
}

func describeAPIErrors(apiErrors []APIError) string {
	details := make([]string, 0, len(apiErrors))
	for _, apiErr := range apiErrors {
		details = append(details, apiErr.Detail)
	}

	return strings.Join(details, "; ")
}

// describeBody pulls a description out of v2 and UAA error bodies, falling back
// to the raw text.
func describeBody(body []byte) string {
	var doc struct {
		Description      string `json:"description"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	if json.Unmarshal(body, &doc) == nil {
		switch {
		case doc.Description != "":
			return doc.Description
		case doc.ErrorDescription != "" && doc.Error != "":
			return doc.Error + ": " + doc.ErrorDescription
		case doc.ErrorDescription != "":
			return doc.ErrorDescription
		case doc.Error != "":
			return doc.Error
		}
	}

	return strings.TrimSpace(string(body))
}

// IsRetryable reports whether the failure may succeed if attempted again.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrJobTimeout) {
		return true
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.StatusCode == http.StatusTooManyRequests || opErr.StatusCode >= http.StatusInternalServerError
	}

	return false
}

// IsFatal reports whether the failure invalidates the current session or client.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrDiscovery)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrResourceNotFound) {
		return true
	}

	return hasAPIErrorCode(err, ErrorCodeNotFound)
}

// IsConflict checks if the error is a platform state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrAuthentication) {
		return true
	}

	return hasAPIErrorCode(err, ErrorCodeNotAuthenticated)
}

// IsForbidden checks if the error is a forbidden error.
func IsForbidden(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.StatusCode == http.StatusForbidden {
		return true
	}

	return hasAPIErrorCode(err, ErrorCodeNotAuthorized)
}

func hasAPIErrorCode(err error, code int) bool {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}

	errResp := &ResponseError{}
	if errors.As(err, &errResp) {
		first := errResp.FirstError()
		if first != nil {
			return first.Code == code
		}
	}

	return false
}

// ParseResponseError parses an error response from JSON.
func ParseResponseError(data []byte) (*ResponseError, error) {
	var errResp ResponseError

	err := json.Unmarshal(data, &errResp)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal response error: %w", err)
	}

	return &errResp, nil
}
