package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/teemow/inboxtriage/internal/apperrors"
)

// Default file locations, relative to the working directory.
const (
	DefaultTokenFile       = "token.json"
	DefaultCredentialsFile = "credentials.json"
)

// Credential is the persisted OAuth record for the Gmail account.
type Credential struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenURI     string     `json:"token_uri,omitempty"`
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
}

// expiryLayouts are tried in order. Token files written by google-auth
// carry naive UTC timestamps with a trailing Z, older ones without it.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// UnmarshalJSON accepts the legacy "token" key for the access token and
// expiry timestamps with or without a zone designator.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw struct {
		AccessToken  string   `json:"access_token"`
		Token        string   `json:"token"`
		RefreshToken string   `json:"refresh_token"`
		TokenURI     string   `json:"token_uri"`
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		Expiry       string   `json:"expiry"`
		Scopes       []string `json:"scopes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Credential{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenURI:     raw.TokenURI,
		ClientID:     raw.ClientID,
		ClientSecret: raw.ClientSecret,
		Scopes:       raw.Scopes,
	}
	if c.AccessToken == "" {
		c.AccessToken = raw.Token
	}

	if raw.Expiry != "" {
		expiry, err := parseExpiry(raw.Expiry)
		if err != nil {
			return err
		}
		c.Expiry = &expiry
	}
	return nil
}

func parseExpiry(value string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiry %q", value)
}

// Usable reports whether the access token can be used at now without a
// refresh: it must be present and either never expire or expire more than
// margin after now.
func (c *Credential) Usable(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry == nil {
		return true
	}
	return c.Expiry.After(now.Add(margin))
}

// ClientDescriptor identifies the OAuth client used for refresh exchanges.
type ClientDescriptor struct {
	ClientID     string
	ClientSecret string
	TokenURI     string
}

// ParseClientDescriptor reads an OAuth client file of the form
// {"installed": {...}} or {"web": {...}}.
func ParseClientDescriptor(data []byte) (*ClientDescriptor, error) {
	type section struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		TokenURI     string `json:"token_uri"`
	}
	var file struct {
		Installed *section `json:"installed"`
		Web       *section `json:"web"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	s := file.Installed
	if s == nil {
		s = file.Web
	}
	if s == nil {
		return nil, errors.New(`expected an "installed" or "web" section`)
	}
	if s.ClientID == "" || s.ClientSecret == "" {
		return nil, errors.New("client_id and client_secret are required")
	}

	return &ClientDescriptor{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURI:     s.TokenURI,
	}, nil
}

// CredentialStore persists the credential and exposes the client descriptor.
type CredentialStore interface {
	LoadCredential() (*Credential, error)
	SaveCredential(*Credential) error
	LoadClient() (*ClientDescriptor, error)
}

// FileTokenStore keeps the credential and the client descriptor in two
// local JSON files. Access is not locked; a single process is assumed.
type FileTokenStore struct {
	tokenPath  string
	clientPath string
}

// NewFileTokenStore creates a store over the given files. Empty paths use
// the defaults.
func NewFileTokenStore(tokenPath, clientPath string) *FileTokenStore {
	if tokenPath == "" {
		tokenPath = DefaultTokenFile
	}
	if clientPath == "" {
		clientPath = DefaultCredentialsFile
	}
	return &FileTokenStore{tokenPath: tokenPath, clientPath: clientPath}
}

// TokenPath returns the path of the token file.
func (s *FileTokenStore) TokenPath() string { return s.tokenPath }

// ClientPath returns the path of the OAuth client file.
func (s *FileTokenStore) ClientPath() string { return s.clientPath }

// HasToken reports whether the token file exists.
func (s *FileTokenStore) HasToken() bool {
	_, err := os.Stat(s.tokenPath)
	return err == nil
}

// LoadCredential reads the token file.
func (s *FileTokenStore) LoadCredential() (*Credential, error) {
	data, err := readConfigFile("token", s.tokenPath)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("token file %s is malformed", s.tokenPath), err)
	}
	return &cred, nil
}

// LoadClient reads the OAuth client file. It is re-read on every call.
func (s *FileTokenStore) LoadClient() (*ClientDescriptor, error) {
	data, err := readConfigFile("credentials", s.clientPath)
	if err != nil {
		return nil, err
	}

	client, err := ParseClientDescriptor(data)
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("credentials file %s is malformed", s.clientPath), err)
	}
	return client, nil
}

// SaveCredential rewrites the token file as a whole: the record is written
// to a temporary file in the same directory which then replaces the target.
func (s *FileTokenStore) SaveCredential(cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.tokenPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, s.tokenPath); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

func readConfigFile(kind, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Configuration(fmt.Sprintf("%s file %s not found", kind, path), err)
	}
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("cannot read %s file %s", kind, path), err)
	}
	return data, nil
}
