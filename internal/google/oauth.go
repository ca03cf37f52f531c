package google

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/inboxtriage/internal/apperrors"
)

// OAuthConfig builds the installed-app OAuth configuration from the client
// file. The first redirect URI in the file is used.
func OAuthConfig(clientFile string, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	data, err := readConfigFile("credentials", clientFile)
	if err != nil {
		return nil, err
	}

	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("credentials file %s is malformed", clientFile), err)
	}
	return conf, nil
}

// AuthURL returns the consent page URL. Offline access with forced consent
// makes Google issue a refresh token on every authorization.
func AuthURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAndSave trades an authorization code for a token and writes it to
// the store.
func ExchangeAndSave(ctx context.Context, conf *oauth2.Config, code string, store *FileTokenStore) (*Credential, error) {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyRefreshError(err)
	}
	if tok.RefreshToken == "" {
		return nil, apperrors.Auth("authorization did not return a refresh token", nil)
	}

	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     conf.Endpoint.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		Scopes:       conf.Scopes,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		cred.Expiry = &expiry
	}

	if err := store.SaveCredential(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// AuthenticationHint returns the message shown when no usable token exists.
func AuthenticationHint(store *FileTokenStore) string {
	if _, err := os.Stat(store.ClientPath()); err != nil {
		return fmt.Sprintf("OAuth client file %s not found. Download it from the Google Cloud console (Desktop app), then run 'inboxtriage auth'.", store.ClientPath())
	}
	return fmt.Sprintf("No Gmail token at %s. Run 'inboxtriage auth' to authorize read-only Gmail access.", store.TokenPath())
}
