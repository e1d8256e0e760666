package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so wrapped sentinels compare equal to the bare ones.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrCredentialsMissing = &AppError{Code: "CONFIG_001", Message: "AI service credentials are not configured"}

	ErrMessageRequired = &AppError{Code: "REQ_001", Message: "message is required"}
	ErrMessageInvalid  = &AppError{Code: "REQ_002", Message: "message is invalid"}

	ErrInvalidFormat   = &AppError{Code: "IMPORT_001", Message: "invalid import payload format"}
	ErrUnreadableTable = &AppError{Code: "IMPORT_002", Message: "could not read spreadsheet data"}

	ErrProviderNotConfigured = &AppError{Code: "LLM_001", Message: "no LLM provider configured"}
	ErrProviderUnavailable   = &AppError{Code: "LLM_002", Message: "LLM provider unavailable"}
	ErrRateLimited           = &AppError{Code: "LLM_003", Message: "rate limit exceeded"}
	ErrEmptyCompletion       = &AppError{Code: "LLM_004", Message: "empty completion"}

	ErrLedgerUnavailable = &AppError{Code: "LEDGER_001", Message: "ledger unavailable"}
	ErrLedgerWrite       = &AppError{Code: "LEDGER_002", Message: "failed to store transaction"}

	ErrConversionFailed = &AppError{Code: "FX_001", Message: "currency conversion failed"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}

	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// WithCause returns a copy of a sentinel carrying cause.
func WithCause(sentinel *AppError, cause error) *AppError {
	return &AppError{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Cause:   cause,
	}
}

// HTTPStatus maps an error to the status the chat endpoint reports.
// Recoverable import failures map to 200 and are flagged in the body.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrMessageRequired.Code, ErrMessageInvalid.Code, ErrInvalidFormat.Code, ErrBadRequest.Code:
		return http.StatusBadRequest
	case ErrUnreadableTable.Code:
		return http.StatusOK
	case ErrUnauthorized.Code:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Recoverable reports whether err is surfaced inside a 200 envelope.
func Recoverable(err error) bool {
	return GetCode(err) == ErrUnreadableTable.Code
}

// PublicMessage returns the text safe to show a caller.
func PublicMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}
