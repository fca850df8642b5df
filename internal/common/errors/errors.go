// Package errors provides standardized error handling for the ranking engine
// and its BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Ranking failure taxonomy. Every provider attempt that does not produce a
// usable selection is classified with one of these.
const (
	ErrCodeRankingTimeout             ErrorCode = "RANKING_TIMEOUT"
	ErrCodeRankingTransportError      ErrorCode = "RANKING_TRANSPORT_ERROR"
	ErrCodeRankingProviderRefusal     ErrorCode = "RANKING_PROVIDER_REFUSAL"
	ErrCodeRankingEmptyOrUnparseable  ErrorCode = "RANKING_EMPTY_OR_UNPARSEABLE"
	ErrCodeRankingSchemaViolation     ErrorCode = "RANKING_SCHEMA_VIOLATION"
	ErrCodeRankingConstraintViolation ErrorCode = "RANKING_CONSTRAINT_VIOLATION"

	ErrCodeInvalidRankingRequest ErrorCode = "INVALID_RANKING_REQUEST"
	ErrCodeCacheUnavailable      ErrorCode = "CACHE_UNAVAILABLE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches diagnostic context (attempt, timing, payload size).
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func NewRankingTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRankingTimeout,
		Message:   "Ranking provider call timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewRankingTransportError(statusCode int, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRankingTransportError,
		Message:   "Ranking provider transport error",
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

func NewRankingProviderRefusalError(reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRankingProviderRefusal,
		Message:   "Ranking provider refused the request",
		Details:   reason,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewRankingEmptyOrUnparseableError(rule string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRankingEmptyOrUnparseable,
		Message:   "Ranking provider returned no usable content",
		Details:   rule,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewRankingSchemaViolationError(rule string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRankingSchemaViolation,
		Message:   "Ranking provider response violates the selection schema",
		Details:   rule,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewRankingConstraintViolationError(rule string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRankingConstraintViolation,
		Message:   "No selected item satisfies the hard constraints",
		Details:   rule,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRankingRequestError is a caller error; never retried.
func NewInvalidRankingRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRankingRequest,
		Message:   "Invalid ranking request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Outcome cache unavailable",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeRankingTimeout:             "RANKING_TIMEOUT",
	ErrCodeRankingTransportError:      "RANKING_TRANSPORT_ERROR",
	ErrCodeRankingProviderRefusal:     "RANKING_PROVIDER_REFUSAL",
	ErrCodeRankingEmptyOrUnparseable:  "RANKING_EMPTY_OR_UNPARSEABLE",
	ErrCodeRankingSchemaViolation:     "RANKING_SCHEMA_VIOLATION",
	ErrCodeRankingConstraintViolation: "RANKING_CONSTRAINT_VIOLATION",
	ErrCodeInvalidRankingRequest:      "INVALID_RANKING_REQUEST",
	ErrCodeCacheUnavailable:           "CACHE_UNAVAILABLE",
}

// GetRetryCount returns the recommended job retry count for a code. Provider
// failures are already retried once inside the engine, so the job itself
// only retries infrastructure errors.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRankingTransportError,
		ErrCodeCacheUnavailable:
		return 2

	case ErrCodeRankingTimeout:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "TRANSPORT"):
		return "PROVIDER/TRANSPORT"
	case strings.Contains(codeStr, "REFUSAL"):
		return "PROVIDER/REFUSAL"
	case strings.Contains(codeStr, "UNPARSEABLE") || strings.Contains(codeStr, "SCHEMA"):
		return "PROVIDER/RESPONSE"
	case strings.Contains(codeStr, "CONSTRAINT"):
		return "CONSTRAINT"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
