package services

import (
	"errors"
	"fmt"

	apperrors "github.com/eduforge/exam-progression-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrConflict         = errors.New("resource conflict")

	// Exam specific errors
	ErrExamNotFound  = errors.New("exam not found")
	ErrExamNotActive = errors.New("exam is not active")

	// Attempt specific errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptVersionConflict  = errors.New("attempt was modified concurrently")

	// Result specific errors
	ErrResultNotFound = errors.New("result not found")
)

// ===== WIRE-LEVEL ERROR CODES =====

const (
	CodeInvalidAttemptID = "invalid_attempt_id"
	CodeInvalidStageID   = "invalid_stage_id"
)

// CodedError carries a stable wire-level code for identifier validation
// failures. These are returned as values, never panicked.
type CodedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ce *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Code, ce.Message)
}

var (
	ErrInvalidAttemptID = &CodedError{
		Code:    CodeInvalidAttemptID,
		Message: "attempt does not exist",
	}
	ErrInvalidStageID = &CodedError{
		Code:    CodeInvalidStageID,
		Message: "stage does not belong to the attempt's exam",
	}
)

// ErrorCode extracts the wire code from err, or "" when err carries none.
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrResultNotFound)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAttemptVersionConflict)
}
