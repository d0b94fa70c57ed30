// Package speech sequences spoken-question playback and answer transcription
// against the recording engine so playback and capture never overlap.
package speech

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// defaultTimeout bounds one synthesis or recognition round trip.
const defaultTimeout = 30 * time.Second

// ServiceAuth holds optional OAuth2 client-credentials settings for the
// speech services. Empty TokenURL means unauthenticated access.
type ServiceAuth struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewHTTPClient returns the HTTP client used for speech service calls,
// wrapping requests with client-credentials tokens when configured.
func NewHTTPClient(ctx context.Context, auth ServiceAuth) *http.Client {
	if auth.TokenURL == "" {
		return &http.Client{Timeout: defaultTimeout}
	}
	cc := clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		TokenURL:     auth.TokenURL,
	}
	client := cc.Client(ctx)
	client.Timeout = defaultTimeout
	return client
}
