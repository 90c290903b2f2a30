package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeListingError     = "LISTING_ERROR"
	CodeClaimFailed      = "CLAIM_FAILED"
	CodeChecksumMismatch = "CHECKSUM_MISMATCH"
	CodeChecksumMissing  = "CHECKSUM_MISSING"
	CodeLineageMissing   = "LINEAGE_MISSING"
	CodeSampleMismatch   = "SAMPLE_MISMATCH"
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeFinalizeFailed   = "FINALIZE_FAILED"
	CodeCompositionError = "COMPOSITION_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ClaimFailed(cause error) *AppError {
	return &AppError{
		Code:    CodeClaimFailed,
		Message: "ledger claim transaction failed",
		Cause:   cause,
	}
}

func ChecksumMismatch(fileName, remote, staged string) *AppError {
	return New(CodeChecksumMismatch,
		fmt.Sprintf("checksum mismatch for %s: remote %s, staged %s", fileName, remote, staged))
}

func ChecksumMissing(fileName string) *AppError {
	return New(CodeChecksumMissing, fmt.Sprintf("no staged checksum found for %s", fileName))
}

func LineageMissing(fileName string, cause error) *AppError {
	return &AppError{
		Code:    CodeLineageMissing,
		Message: fmt.Sprintf("lineage lookup failed for %s", fileName),
		Cause:   cause,
	}
}

func SampleMismatch(fileName, declared, resolved string) *AppError {
	return New(CodeSampleMismatch,
		fmt.Sprintf("sample mismatch for %s: path declares %s, lineage says %s", fileName, declared, resolved))
}

func UploadFailed(cause error) *AppError {
	return &AppError{
		Code:    CodeUploadFailed,
		Message: "manifest upload failed",
		Cause:   cause,
	}
}

func FinalizeFailed(cause error) *AppError {
	return &AppError{
		Code:    CodeFinalizeFailed,
		Message: "ledger finalize transaction failed",
		Cause:   cause,
	}
}
