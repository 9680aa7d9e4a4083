package auth

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	log "github.com/sirupsen/logrus"
)

// FetchJWKS loads the key set at url and keeps it refreshed in the
// background until the returned JWKS is ended.
func FetchJWKS(url string, refresh time.Duration) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.WithField("url", url).Warnf("jwks refresh: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}
	return jwks, nil
}
