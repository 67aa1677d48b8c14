package utils

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// StatusError carries a stable machine-readable code plus the HTTP status
// handlers should answer with. Code goes to the client as-is.
type StatusError struct {
	Status int
	Code   string
}

func (e *StatusError) Error() string { return e.Code }

func NotFoundError(code string) error {
	return &StatusError{Status: http.StatusNotFound, Code: code}
}

func ConflictError(code string) error {
	return &StatusError{Status: http.StatusConflict, Code: code}
}

func ForbiddenError(code string) error {
	return &StatusError{Status: http.StatusForbidden, Code: code}
}

func BadRequestError(code string) error {
	return &StatusError{Status: http.StatusBadRequest, Code: code}
}

func UnauthorizedError(code string) error {
	return &StatusError{Status: http.StatusUnauthorized, Code: code}
}

// HTTPStatus maps an error to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
