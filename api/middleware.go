package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

const identityContextKey = "identity"

// RequireIdentity rejects requests without a valid bearer token and stores
// the verified identity on the context for the handlers behind it.
func RequireIdentity(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			metrics := metricsFrom(c)
			authStart := time.Now()
			id, err := authenticate(c, verifier)
			metrics.ObserveAuth(time.Since(authStart))
			if err != nil {
				metrics.SetErrorStage("auth")
				return err
			}
			metrics.SetUserID(id.ID)
			c.Set(identityContextKey, id)
			return next(c)
		}
	}
}

func authenticate(c echo.Context, verifier TokenVerifier) (domain.Identity, error) {
	token, err := bearerTokenFromHeader(c.Request().Header)
	if err != nil {
		return domain.Identity{}, err
	}
	return verifier.Verify(token)
}

// identityFrom returns the caller stored by RequireIdentity.
func identityFrom(c echo.Context) (domain.Identity, error) {
	id, ok := c.Get(identityContextKey).(domain.Identity)
	if !ok || id.ID == "" {
		return domain.Identity{}, errMissingAuthorization
	}
	return id, nil
}
