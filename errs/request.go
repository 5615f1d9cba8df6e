package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Authentication & Authorization Errors
var (
	ErrMissingToken            = errors.New("missing access token")
	ErrExpiredToken            = errors.New("access token has expired")
	ErrInvalidToken            = errors.New("invalid access token")
	ErrInvalidCredentials      = errors.New("invalid username or password")
	ErrInsufficientRole        = errors.New("insufficient role")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// Request & Input-Validation Errors
var (
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidField         = errors.New("invalid field")
	ErrValidation           = errors.New("validation failed")
)

// File upload errors
var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrUploadFailed    = errors.New("upload failed")
)

var (
	Unauthorized = NewMissingTokenError()
)

// Authentication & Authorization Error Constructors
func NewMissingTokenError() *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		err:        ErrMissingToken,
		Field:      "authorization",
	}
}

func NewExpiredTokenError() *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeTokenExpired,
		err:        ErrExpiredToken,
		Field:      "authorization",
	}
}

func NewInvalidTokenError() *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidToken,
		err:        ErrInvalidToken,
		Field:      "authorization",
	}
}

func NewInvalidCredentialsError() *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidCredentials,
		err:        ErrInvalidCredentials,
	}
}

func NewInsufficientRoleError(requiredRole string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusForbidden,
		Code:       CodeForbidden,
		err:        ErrInsufficientRole,
		Details:    fmt.Sprintf("Insufficient role. Required: %s", requiredRole),
		Field:      "authorization",
	}
}

func NewInsufficientPermissionsError(permission string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusForbidden,
		Code:       CodeInsufficientPermissions,
		err:        ErrInsufficientPermissions,
		Details:    fmt.Sprintf("Missing permission: %s", permission),
		Field:      "authorization",
	}
}

// Request & Input-Validation Error Constructors
func NewMalformedPayloadError(payloadType string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidInput,
		err:        ErrMalformedPayload,
		Details:    fmt.Sprintf("Malformed %s payload", payloadType),
		Cause:      cause,
		Field:      "payload",
	}
}

func NewMissingRequiredFieldError(fieldName string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		Code:       CodeMissingField,
		err:        ErrMissingRequiredField,
		Details:    fmt.Sprintf("Missing required field: %s", fieldName),
		Field:      fieldName,
	}
}

func NewInvalidFieldError(fieldName string, reason string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidInput,
		err:        ErrInvalidField,
		Details:    fmt.Sprintf("Invalid field %s: %s", fieldName, reason),
		Field:      fieldName,
	}
}

func NewValidationError(fieldName, rule string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		err:        ErrValidation,
		Details:    fmt.Sprintf("%s failed rule %q", fieldName, rule),
		Field:      fieldName,
	}
}

// File upload error constructors
func NewFileTooLargeError(maxSize int64) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       CodeFileTooLarge,
		err:        ErrFileTooLarge,
		Details:    fmt.Sprintf("Maximum allowed size is %d bytes", maxSize),
		Field:      "file",
	}
}

func NewInvalidFileTypeError(mime string, allowed []string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidFileType,
		err:        ErrInvalidFileType,
		Details:    fmt.Sprintf("Unsupported type %s. Allowed types: %v", mime, allowed),
		Field:      "file",
	}
}

func NewUploadFailedError(cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeUploadFailed,
		err:        ErrUploadFailed,
		Cause:      cause,
		Field:      "file",
	}
}
