package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Scopes requested by `harmony auth`.
var Scopes = []string{
	"user-top-read",
	"user-library-read",
	"user-library-modify",
	"playlist-read-private",
	"playlist-modify-public",
	"user-read-playback-state",
	"user-modify-playback-state",
	"streaming",
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// TokenSink receives the exchanged token before the browser is answered.
//
// A returned error fails the flow; the user sees an error page.
type TokenSink func(ctx context.Context, tok *oauth2.Token) error

// OAuthOption configures an [OAuthHandler].
type OAuthOption func(*OAuthHandler)

// WithTokenSink stores tokens as they are exchanged.
func WithTokenSink(sink TokenSink) OAuthOption {
	return func(h *OAuthHandler) { h.sink = sink }
}

// WithExchangeTimeout bounds the code exchange and the sink together.
func WithExchangeTimeout(d time.Duration) OAuthOption {
	return func(h *OAuthHandler) { h.timeout = d }
}

// OAuthHandler handles OAuth2 callback requests for authorization code flow.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	config      *oauth2.Config
	state       string
	sink        TokenSink
	timeout     time.Duration
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a new OAuth handler with the given OAuth2 config and state token.
// The state token should be cryptographically random for CSRF protection.
func NewOAuthHandler(config *oauth2.Config, state string, opts ...OAuthOption) *OAuthHandler {
	h := &OAuthHandler{
		config:     config,
		state:      state,
		timeout:    30 * time.Second,
		resultChan: make(chan OAuthResult, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// AuthCodeURL is the URL the user opens to grant access.
func (h *OAuthHandler) AuthCodeURL() string {
	return h.config.AuthCodeURL(h.state)
}

// ServeHTTP handles the OAuth callback request.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("invalid state parameter")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s - %s", query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	token, err := h.config.Exchange(ctx, code)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	if h.sink != nil {
		if err := h.sink(ctx, token); err != nil {
			h.Send(OAuthResult{err: fmt.Errorf("failed to store session: %w", err)})
			http.Error(w, "Could not save session", http.StatusInternalServerError)
			return
		}
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>harmony</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Signed in to harmony</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
