package fedex

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-shipment-booking/internal/outbound"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// tokenSkew: token dianggap expired 60 detik lebih awal.
const tokenSkew = 60 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// tokenSource caches one OAuth client-credentials token. Concurrent callers that
// find the cache empty share a single refresh.
type tokenSource struct {
	http         *outbound.Client
	clientID     string
	clientSecret string
	now          func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
	group  singleflight.Group
}

func (t *tokenSource) cached() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && t.now().Before(t.expiry) {
		return t.token, true
	}
	return "", false
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := t.cached(); ok {
		return tok, nil
	}
	v, err, _ := t.group.Do("token", func() (any, error) {
		if tok, ok := t.cached(); ok {
			return tok, nil
		}
		return t.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *tokenSource) fetch(ctx context.Context) (string, error) {
	issued := t.now()
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)

	var out tokenResponse
	if _, err := t.http.Do(ctx, outbound.Request{Method: "POST", Path: "/oauth/token", Form: form}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &shipments.ProviderError{Service: t.http.Service, StatusCode: 200, Code: "empty_token", Message: "token response without access_token"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = out.AccessToken
	t.expiry = issued.Add(time.Duration(out.ExpiresIn)*time.Second - tokenSkew)
	return t.token, nil
}

func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expiry = time.Time{}
}
