package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/llm"
)

// Environment fallbacks for the Google file locations.
const (
	EnvGoogleCredentialsFile = "GOOGLE_CREDENTIALS_FILE"
	EnvGoogleTokenFile       = "GOOGLE_TOKEN_FILE"
)

// sourceFlags holds the file locations shared by classify, auth and serve.
type sourceFlags struct {
	envFile         string
	credentialsFile string
	tokenFile       string
}

func (f *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.envFile, "env-file", config.DefaultEnvFile, "Dotenv file with MODEL, OPENROUTER_API_KEY and OPENROUTER_API_URL. Missing keys fall back to the environment.")
	cmd.Flags().StringVar(&f.credentialsFile, "credentials", "", "OAuth client file (default: credentials.json). Can also use GOOGLE_CREDENTIALS_FILE env var.")
	cmd.Flags().StringVar(&f.tokenFile, "token", "", "Gmail token file (default: token.json). Can also use GOOGLE_TOKEN_FILE env var.")
}

// resolvePath returns the flag value, else the environment value, else def.
func resolvePath(flagValue, envKey, def string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.GetEnvOrDefault(envKey, def)
}

func (f *sourceFlags) credentialsPath() string {
	return resolvePath(f.credentialsFile, EnvGoogleCredentialsFile, google.DefaultCredentialsFile)
}

func (f *sourceFlags) tokenStore() *google.FileTokenStore {
	return google.NewFileTokenStore(
		resolvePath(f.tokenFile, EnvGoogleTokenFile, google.DefaultTokenFile),
		f.credentialsPath(),
	)
}

// pipeline is the wired classification stack.
type pipeline struct {
	settings   config.Settings
	store      *google.FileTokenStore
	completion *llm.Client
	classifier *classifier.Classifier
}

// buildPipeline wires token refresh, Gmail fetch and completion into a
// classifier. metrics and audit may be nil.
func (f *sourceFlags) buildPipeline(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger, logger *slog.Logger) (*pipeline, error) {
	settings, err := config.Load(f.envFile)
	if err != nil {
		return nil, apperrors.Configuration("failed to load completion settings", err)
	}

	store := f.tokenStore()
	refresher := google.NewTokenRefresher(store,
		google.WithMetrics(metrics),
		google.WithLogger(logger),
	)
	fetcher := gmail.NewFetcher(refresher,
		gmail.WithMetrics(metrics),
		gmail.WithLogger(logger),
	)
	completion := llm.NewClient(settings,
		llm.WithMetrics(metrics),
		llm.WithLogger(logger),
	)

	return &pipeline{
		settings:   settings,
		store:      store,
		completion: completion,
		classifier: classifier.New(completion, settings.Model,
			classifier.WithFetcher(fetcher),
			classifier.WithMetrics(metrics),
			classifier.WithAuditLogger(audit),
			classifier.WithLogger(logger),
		),
	}, nil
}

// withAuthHint appends the authorization hint to configuration errors
// raised while no token file exists.
func withAuthHint(err error, store *google.FileTokenStore) error {
	if err == nil || store.HasToken() || !apperrors.IsConfiguration(err) {
		return err
	}
	return fmt.Errorf("%w\n%s", err, google.AuthenticationHint(store))
}
