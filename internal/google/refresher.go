package google

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
)

// ExpiryMargin is how long before expiry an access token stops being used.
const ExpiryMargin = 60 * time.Second

// TokenRefresher hands out Gmail access tokens, refreshing and persisting
// the credential when the stored token is missing or about to expire.
//
// The refresh exchange goes through the oauth2 token endpoint named by the
// client file or the stored credential. A refresh response without a new
// refresh token keeps the stored one. Concurrent refreshes are not
// serialized; the store's atomic rewrite keeps the file consistent.
type TokenRefresher struct {
	store      CredentialStore
	now        func() time.Time
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// RefresherOption configures a TokenRefresher.
type RefresherOption func(*TokenRefresher)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *TokenRefresher) { r.now = now }
}

// WithHTTPClient sets the HTTP client used for the token exchange.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *TokenRefresher) { r.httpClient = client }
}

// WithMetrics records refresh attempts on m.
func WithMetrics(m *instrumentation.Metrics) RefresherOption {
	return func(r *TokenRefresher) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RefresherOption {
	return func(r *TokenRefresher) { r.logger = logger }
}

// NewTokenRefresher creates a refresher over store.
func NewTokenRefresher(store CredentialStore, opts ...RefresherOption) *TokenRefresher {
	r := &TokenRefresher{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.WithService(r.logger, "oauth")
	return r
}

// EnsureAccessToken returns a usable access token. A token that is valid
// for more than ExpiryMargin is returned without reading the client file
// or contacting the token endpoint.
func (r *TokenRefresher) EnsureAccessToken(ctx context.Context) (string, error) {
	cred, err := r.store.LoadCredential()
	if err != nil {
		return "", err
	}

	if cred.Usable(r.now(), ExpiryMargin) {
		return cred.AccessToken, nil
	}

	return r.refresh(ctx, cred)
}

func (r *TokenRefresher) refresh(ctx context.Context, cred *Credential) (string, error) {
	client, err := r.store.LoadClient()
	if err != nil {
		return "", err
	}
	if cred.RefreshToken == "" {
		return "", apperrors.Configuration("stored credential has no refresh_token; run 'inboxtriage auth'", nil)
	}

	tokenURI := firstNonEmpty(client.TokenURI, cred.TokenURI, google.Endpoint.TokenURL)
	conf := &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	start := time.Now()
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		err = classifyRefreshError(err)
		r.record(ctx, instrumentation.OAuthResultFailure, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		r.logger.Warn("token refresh failed", logging.Err(err))
		return "", err
	}
	r.record(ctx, instrumentation.OAuthResultSuccess, instrumentation.StatusSuccess, time.Since(start))

	cred.AccessToken = tok.AccessToken
	cred.Expiry = nil
	if !tok.Expiry.IsZero() {
		// oauth2 stamps the expiry with the wall clock; rebase it on ours.
		expiry := r.now().Add(time.Until(tok.Expiry).Round(time.Second)).UTC()
		cred.Expiry = &expiry
	}
	cred.ClientID = client.ClientID
	cred.ClientSecret = client.ClientSecret
	cred.TokenURI = tokenURI
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}

	if err := r.store.SaveCredential(cred); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	instrumentation.SetSpanSuccess(span)
	r.logger.Debug("access token refreshed",
		"access_token", logging.SanitizeToken(cred.AccessToken),
		"expiry", cred.Expiry)

	return cred.AccessToken, nil
}

func (r *TokenRefresher) record(ctx context.Context, result, status string, d time.Duration) {
	r.metrics.RecordOAuthTokenRefresh(ctx, result)
	r.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, status, d)
}

// classifyRefreshError maps token endpoint failures onto the error taxonomy.
// Rejections and success responses without an access token are AuthErrors;
// failures to reach the endpoint are TransportErrors.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		te := &apperrors.TransportError{Op: "token refresh", Err: err}
		if retrieveErr.Response != nil {
			te.Status = retrieveErr.Response.StatusCode
			te.Body = string(retrieveErr.Body)
		}
		return apperrors.Auth("refresh token rejected", te)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return apperrors.Transport("token refresh", err)
	}

	return apperrors.Auth("token endpoint returned no access token", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
