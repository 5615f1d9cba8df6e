package errs

import "net/http"

// Code is the machine readable error code sent in every error response.
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"

	CodeValidation   Code = "VALIDATION_ERROR"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeMissingField Code = "MISSING_FIELD"

	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	CodeFileTooLarge    Code = "FILE_TOO_LARGE"
	CodeInvalidFileType Code = "INVALID_FILE_TYPE"
	CodeUploadFailed    Code = "UPLOAD_FAILED"

	CodeDatabase    Code = "DATABASE_ERROR"
	CodeQueryFailed Code = "QUERY_FAILED"

	CodeForbidden               Code = "FORBIDDEN"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"

	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"

	CodeInternal           Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

func codeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidInput
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeAlreadyExists
	case http.StatusRequestEntityTooLarge:
		return CodeFileTooLarge
	case http.StatusUnsupportedMediaType:
		return CodeInvalidFileType
	case http.StatusTooManyRequests:
		return CodeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	}
	return CodeInternal
}
