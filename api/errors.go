package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const internalErrorCode = "INTERNAL"

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

var (
	errDuplicateRequest = &domain.Error{Kind: domain.KindConflict, Code: "DUPLICATE_REQUEST", Message: "request with this idempotency key was already processed"}
	errInvalidBody      = &domain.Error{Kind: domain.KindValidation, Code: domain.ErrValidation.Code, Message: "invalid request body"}
)

func statusForKind(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// codeForStatus derives an error code from the status text, e.g.
// 405 -> METHOD_NOT_ALLOWED.
func codeForStatus(status int) string {
	text := http.StatusText(status)
	if text == "" || status >= http.StatusInternalServerError {
		return internalErrorCode
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

// responseFor maps err to a status code and the body sent to the client.
// Failures that are not domain or echo errors are reported generically.
func responseFor(err error) (int, errorResponse) {
	if de, ok := domain.AsError(err); ok {
		return statusForKind(de.Kind), errorResponse{Message: de.Message, Code: de.Code}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, errorResponse{Message: msg, Code: codeForStatus(he.Code)}
	}
	return http.StatusInternalServerError, errorResponse{Message: "internal server error", Code: internalErrorCode}
}

// ErrorHandler renders every error as {"message","code"} and logs the ones
// that end in a 5xx.
func ErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := responseFor(err)
		if status >= http.StatusInternalServerError && logger != nil {
			logger.WithFields(log.Fields{
				"method": c.Request().Method,
				"route":  c.Path(),
			}).WithError(err).Error("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil && logger != nil {
			logger.WithError(werr).Warn("write error response")
		}
	}
}
