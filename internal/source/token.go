package source

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = 5 * time.Minute

// tokenSource mints short-lived HS256 bearer tokens from the vendor API key
// pair, caching each token until shortly before expiry. When no secret is
// configured the client falls back to a static API-key header.
type tokenSource struct {
	apiKey    string
	apiSecret []byte

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(apiKey, apiSecret string) *tokenSource {
	return &tokenSource{apiKey: apiKey, apiSecret: []byte(apiSecret)}
}

func (ts *tokenSource) bearer(now time.Time) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && now.Before(ts.expires.Add(-30*time.Second)) {
		return ts.token, nil
	}

	claims := jwt.RegisteredClaims{
		Issuer:    ts.apiKey,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.apiSecret)
	if err != nil {
		return "", err
	}

	ts.token = signed
	ts.expires = now.Add(tokenLifetime)
	return signed, nil
}
