package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// RequiredParam returns the named query or path parameter, or a 400 if it is
// empty
func RequiredParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		value = c.QueryParam(name)
	}
	if value == "" {
		return "", BadRequest("missing " + name)
	}
	return value, nil
}
