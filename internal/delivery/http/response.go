// Package http serves the authenticated operator API.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Response is the standard API envelope.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// SuccessResponse sends a 200 with data.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// SuccessMessageResponse sends a 200 with a message and data.
func SuccessMessageResponse(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error envelope with the given status code.
func ErrorResponse(c echo.Context, statusCode int, message string, err interface{}) error {
	return c.JSON(statusCode, Response{
		Status:  "error",
		Message: message,
		Error:   err,
	})
}

// BadRequestResponse sends a 400.
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message, nil)
}

// UnauthorizedResponse sends a 401.
func UnauthorizedResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusUnauthorized, message, nil)
}

// InternalServerErrorResponse sends a 500 with the error detail.
func InternalServerErrorResponse(c echo.Context, message string, err error) error {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return ErrorResponse(c, http.StatusInternalServerError, message, errMsg)
}
