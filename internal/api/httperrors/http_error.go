package httperrors

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	// TypeGeneric marks errors without a more specific public type.
	TypeGeneric = "generic"
	// TypeValidation marks request payload validation failures.
	TypeValidation = "validation"
	// TypeNotFound marks lookups of unknown resources.
	TypeNotFound = "not_found"
)

// HTTPError is the public error payload returned by all API endpoints.
type HTTPError struct {
	Code  int    `json:"status"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

// NewHTTPError creates a public API error with the given status code and type.
func NewHTTPError(code int, errType string, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errType,
		Title: title,
	}
}

// HandlerWithConfig converts errors into JSON HTTPError payloads. Internal
// error details are hidden unless hideInternalServerErrorDetails is false.
func HandlerWithConfig(hideInternalServerErrorDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *HTTPError

		switch e := err.(type) {
		case *HTTPError:
			httpErr = e
		case *echo.HTTPError:
			title := http.StatusText(e.Code)
			if msg, ok := e.Message.(string); ok {
				title = msg
			}
			httpErr = NewHTTPError(e.Code, TypeGeneric, title)
		default:
			title := http.StatusText(http.StatusInternalServerError)
			if !hideInternalServerErrorDetails {
				title = err.Error()
			}
			httpErr = NewHTTPError(http.StatusInternalServerError, TypeGeneric, title)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(httpErr.Code)
		} else {
			writeErr = c.JSON(httpErr.Code, httpErr)
		}

		if writeErr != nil {
			c.Logger().Error(writeErr)
		}
	}
}
