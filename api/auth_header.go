package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

var (
	errMissingAuthorization = &domain.Error{Kind: domain.KindUnauthorized, Code: "MISSING_TOKEN", Message: "missing authorization header"}
	errBadAuthorization     = &domain.Error{Kind: domain.KindUnauthorized, Code: "BAD_AUTHORIZATION", Message: "bad auth header"}
)

const bearerScheme = "Bearer"

func bearerTokenFromHeader(header http.Header) (string, error) {
	values := header.Values(echo.HeaderAuthorization)
	if len(values) == 0 {
		return "", errMissingAuthorization
	}
	return bearerTokenFromString(values[0])
}

// bearerTokenFromString accepts "Bearer <jwt>" with a case-insensitive
// scheme and rejects anything that is not three dot-separated segments.
func bearerTokenFromString(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(trimmed, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", errBadAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
