package http

import (
	"fmt"
	"net/http"
)

// AppError is an error carrying the HTTP status and a stable code that
// clients can switch on.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

func BadRequestError(msg string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", msg, http.StatusBadRequest)
}

func NotFoundError(msg string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", msg, http.StatusNotFound)
}

func ConflictError(msg string) *AppError {
	return NewAppError("ERR_CONFLICT", "", msg, http.StatusConflict)
}

// UnprocessableError reports a well-formed request the data cannot satisfy.
func UnprocessableError(msg string) *AppError {
	return NewAppError("ERR_UNPROCESSABLE", "", msg, http.StatusUnprocessableEntity)
}

func BadGatewayError(msg string) *AppError {
	return NewAppError("ERR_UPSTREAM", "", msg, http.StatusBadGateway)
}

func TimeoutError(msg string) *AppError {
	return NewAppError("ERR_CANCELLED", "", msg, http.StatusRequestTimeout)
}

func InternalError(msg string) *AppError {
	return NewAppError("ERR_INTERNAL", "", msg, http.StatusInternalServerError)
}
