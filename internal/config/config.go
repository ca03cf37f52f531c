package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys for the completion endpoint.
const (
	EnvModel  = "MODEL"
	EnvAPIKey = "OPENROUTER_API_KEY"
	EnvAPIURL = "OPENROUTER_API_URL"
)

// DefaultEnvFile is the dotenv file read when no path is given.
const DefaultEnvFile = ".env"

// MaxBodyChars bounds the body text sent to the model, in runes.
const MaxBodyChars = 4000

// DefaultMaxResults is the number of unread messages fetched when unset.
const DefaultMaxResults = 5

// DefaultMaxTokens is the completion token cap when unset.
const DefaultMaxTokens = 800

// DefaultLabels is the classification vocabulary used when none is given.
var DefaultLabels = []string{"azione_richiesta", "informazione", "importante", "non_importante"}

// DefaultLabelIDs is the Gmail label filter applied when none is given.
var DefaultLabelIDs = []string{"INBOX", "UNREAD"}

// Settings holds the completion endpoint configuration.
type Settings struct {
	Model  string
	APIKey string
	APIURL string
}

// Load reads Settings from the dotenv file at path, falling back to the
// process environment for keys the file does not set.
func Load(path string) (Settings, error) {
	if path == "" {
		path = DefaultEnvFile
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		values = map[string]string{}
	}

	lookup := func(key string) string {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
		return strings.TrimSpace(os.Getenv(key))
	}

	return Settings{
		Model:  lookup(EnvModel),
		APIKey: lookup(EnvAPIKey),
		APIURL: lookup(EnvAPIURL),
	}, nil
}

// Configured reports whether both the API key and the endpoint URL are set.
func (s Settings) Configured() bool {
	return s.APIKey != "" && s.APIURL != ""
}

// GetEnvOrDefault returns the value of an environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SplitList splits a comma separated value, trimming blanks and dropping
// empty entries. An empty input yields nil.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
