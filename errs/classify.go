package errs

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Classify maps any error produced below the HTTP layer onto an *ApiErr. It is the single place
// where driver, library and filesystem errors are translated into status codes and error codes.
// Errors it does not recognise become 500 INTERNAL_ERROR with the original error as cause.
func Classify(err error) *ApiErr {
	if err == nil {
		return nil
	}

	var apiErr *ApiErr
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		first := validationErrs[0]
		return NewValidationError(first.Field(), first.Tag()).WithCause(err)
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return NewFileTooLargeError(maxBytesErr.Limit).WithCause(err)
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return NewExpiredTokenError().WithCause(err)
	case isJWTError(err):
		return NewInvalidTokenError().WithCause(err)
	case errors.Is(err, fs.ErrNotExist):
		return &ApiErr{StatusCode: http.StatusNotFound, Code: CodeNotFound, err: errors.New("file not found"), Cause: err}
	case isRecordNotFound(err):
		return &ApiErr{StatusCode: http.StatusNotFound, Code: CodeNotFound, err: errors.New("resource not found"), Cause: err}
	case isDuplicate(err):
		return &ApiErr{StatusCode: http.StatusConflict, Code: CodeAlreadyExists, err: errors.New("resource already exists"), Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return NewServiceUnavailableError("request timed out", err)
	}

	return NewInternalErrorWithCause("internal server error", err)
}

func isJWTError(err error) bool {
	return errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
		errors.Is(err, jwt.ErrTokenNotValidYet) ||
		errors.Is(err, jwt.ErrTokenUnverifiable) ||
		errors.Is(err, jwt.ErrTokenInvalidClaims) ||
		errors.Is(err, jwt.ErrTokenInvalidIssuer) ||
		errors.Is(err, jwt.ErrSignatureInvalid)
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicate covers the postgres, sqlite and mysql spellings of a unique violation.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry")
}
