package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var sources sourceFlags

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access and save the token file",
		Long: `Run the installed-app OAuth flow against the client file.

The command prints a consent URL. Open it, approve read-only Gmail access and
paste the authorization code back. The resulting token, including its refresh
token and client credentials, is written to the token file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr(), sources)
		},
	}

	sources.bind(cmd)
	return cmd
}

func runAuth(ctx context.Context, in io.Reader, out io.Writer, sources sourceFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store := sources.tokenStore()
	conf, err := google.OAuthConfig(store.ClientPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code:\n%s\n\nCode: ", google.AuthURL(conf))

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	cred, err := google.ExchangeAndSave(ctx, conf, code, store)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Token saved to %s (access token %s)\n", store.TokenPath(), logging.SanitizeToken(cred.AccessToken))
	return nil
}
