package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps every JSON response body.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListData is the payload of list endpoints.
type ListData struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

func DataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, ListData{Rows: rows, Total: total})
}

// BadRequestResponse writes the field errors returned by ReadAndValidateRequest.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse renders an *AppError with its own status. Anything else
// is reported as a bare 500 without details.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}
