package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/llm"
)

type nopClassifier struct{}

func (nopClassifier) ClassifyUnread(context.Context, classifier.UnreadRequest) (*classifier.Result, error) {
	return &classifier.Result{Items: []extract.Item{}}, nil
}

func (nopClassifier) Classify(context.Context, []gmail.Record, classifier.Options) (*classifier.Result, error) {
	return &classifier.Result{Items: []extract.Item{}}, nil
}

func clearCompletionEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvModel, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvAPIURL, "")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func defaultClassifyFlags() classifyFlags {
	return classifyFlags{
		maxResults: config.DefaultMaxResults,
		maxTokens:  config.DefaultMaxTokens,
		timeout:    llm.DefaultTimeout,
	}
}

func TestClassifyFlags_Options(t *testing.T) {
	f := defaultClassifyFlags()
	f.model = "openai/gpt-4o-mini"
	f.labels = []string{"x", "y"}
	f.noStructuredOutput = true
	f.includeReasoning = true

	opts, err := f.options()
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", opts.Model)
	assert.Equal(t, []string{"x", "y"}, opts.Labels)
	assert.Equal(t, config.DefaultMaxTokens, opts.MaxTokens)
	assert.True(t, opts.PlainOutput)
	assert.True(t, opts.IncludeReasoning)
	assert.Equal(t, TransportCLI, opts.Transport)

	tests := []struct {
		name   string
		mutate func(*classifyFlags)
	}{
		{name: "zero max tokens", mutate: func(f *classifyFlags) { f.maxTokens = 0 }},
		{name: "max tokens too large", mutate: func(f *classifyFlags) { f.maxTokens = 2001 }},
		{name: "zero timeout", mutate: func(f *classifyFlags) { f.timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := defaultClassifyFlags()
			tt.mutate(&f)
			_, err := f.options()
			assert.Error(t, err)
		})
	}
}

func TestReadRecords(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		stdin   string
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "array file",
			path:    writeFile(t, dir, "array.json", `[{"id":"m1"},{"message_id":"m2"}]`),
			wantIDs: []string{"m1", "m2"},
		},
		{
			name:    "wrapped file",
			path:    writeFile(t, dir, "wrapped.json", `{"emails":[{"id":"m3"}]}`),
			wantIDs: []string{"m3"},
		},
		{
			name:    "stdin",
			path:    "-",
			stdin:   `[{"id":"m4"}]`,
			wantIDs: []string{"m4"},
		},
		{
			name:    "not json",
			path:    writeFile(t, dir, "bad.json", `m1,m2`),
			wantErr: true,
		},
		{
			name:    "missing file",
			path:    filepath.Join(dir, "absent.json"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := readRecords(strings.NewReader(tt.stdin), tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestWriteResult(t *testing.T) {
	result := &classifier.Result{Items: []extract.Item{{ID: "m1", Label: "x", Summary: "<b>ok</b>"}}}

	var compact bytes.Buffer
	require.NoError(t, writeResult(&compact, result, false))
	assert.Equal(t, `{"items":[{"id":"m1","label":"x","summary":"<b>ok</b>","subject":"","sender":""}]}`+"\n", compact.String())

	var pretty bytes.Buffer
	require.NoError(t, writeResult(&pretty, result, true))
	assert.Contains(t, pretty.String(), "\n  \"items\": [")
}

func TestRunClassify_EmailsFile(t *testing.T) {
	clearCompletionEnv(t)

	var body map[string]any
	completion := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"items\":[{\"id\":\"m1\",\"label\":\"importante\",\"summary\":\"Fattura da pagare\"}]}"}}]}`)
	}))
	defer completion.Close()

	dir := t.TempDir()
	f := defaultClassifyFlags()
	f.sources.envFile = writeFile(t, dir, ".env",
		"MODEL=openai/gpt-4o-mini\nOPENROUTER_API_KEY=sk-test\nOPENROUTER_API_URL="+completion.URL+"\n")
	f.emailsFile = writeFile(t, dir, "emails.json",
		`[{"id":"m1","subject":"Invoice","sender":"Acme <billing@acme.test>","body":"Please pay"}]`)

	var out bytes.Buffer
	require.NoError(t, runClassify(context.Background(), strings.NewReader(""), &out, f))

	assert.Equal(t, "openai/gpt-4o-mini", body["model"])

	var result classifier.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "importante", result.Items[0].Label)
	assert.Equal(t, "Invoice", result.Items[0].Subject)
	assert.Equal(t, "Acme <billing@acme.test>", result.Items[0].Sender)
}

func TestRunClassify_UnreadWithoutToken(t *testing.T) {
	clearCompletionEnv(t)
	t.Setenv(EnvGoogleTokenFile, "")
	t.Setenv(EnvGoogleCredentialsFile, "")

	dir := t.TempDir()
	f := defaultClassifyFlags()
	f.sources.envFile = writeFile(t, dir, ".env", "MODEL=m\nOPENROUTER_API_KEY=k\nOPENROUTER_API_URL=http://127.0.0.1:1\n")
	f.sources.tokenFile = filepath.Join(dir, "token.json")
	f.sources.credentialsFile = writeFile(t, dir, "credentials.json", `{"installed":{"client_id":"id","client_secret":"s","token_uri":"http://127.0.0.1:1/token"}}`)

	err := runClassify(context.Background(), strings.NewReader(""), io.Discard, f)
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "inboxtriage auth")
}

func TestRunClassify_MaxResultsBounds(t *testing.T) {
	clearCompletionEnv(t)

	f := defaultClassifyFlags()
	f.sources.envFile = filepath.Join(t.TempDir(), ".env")
	f.maxResults = 26

	err := runClassify(context.Background(), strings.NewReader(""), io.Discard, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-results")
}

func TestRunAuth(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"ya29.fresh","refresh_token":"1//fresh","expires_in":3599}`)
	}))
	defer tokenServer.Close()

	dir := t.TempDir()
	sources := sourceFlags{
		tokenFile: filepath.Join(dir, "token.json"),
		credentialsFile: writeFile(t, dir, "credentials.json", `{"installed":{
			"client_id":"id","client_secret":"secret",
			"auth_uri":"https://accounts.test/auth","token_uri":"`+tokenServer.URL+`",
			"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runAuth(ctx, strings.NewReader("the-code\n"), &out, sources))
	assert.Contains(t, out.String(), "https://accounts.test/auth?")
	assert.Contains(t, out.String(), "Token saved to")
	assert.NotContains(t, out.String(), "ya29.fresh")

	saved, err := sources.tokenStore().LoadCredential()
	require.NoError(t, err)
	assert.Equal(t, "1//fresh", saved.RefreshToken)
}

func TestRunAuth_EmptyCode(t *testing.T) {
	dir := t.TempDir()
	sources := sourceFlags{
		tokenFile: filepath.Join(dir, "token.json"),
		credentialsFile: writeFile(t, dir, "credentials.json", `{"installed":{
			"client_id":"id","client_secret":"secret",
			"auth_uri":"https://accounts.test/auth","token_uri":"https://oauth2.test/token",
			"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`),
	}

	err := runAuth(context.Background(), strings.NewReader("\n"), io.Discard, sources)
	assert.Error(t, err)
}
