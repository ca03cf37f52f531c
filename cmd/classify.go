package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/llm"
	"github.com/teemow/inboxtriage/internal/server"
)

// TransportCLI names the command line in audit logs.
const TransportCLI = "cli"

type classifyFlags struct {
	sources sourceFlags

	maxResults         int
	labelIDs           []string
	model              string
	labels             []string
	maxTokens          int
	includeReasoning   bool
	noStructuredOutput bool
	timeout            time.Duration
	apiURL             string
	emailsFile         string
	pretty             bool
}

func newClassifyCmd() *cobra.Command {
	var f classifyFlags

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify unread Gmail messages and print the result as JSON",
		Long: `Fetch unread Gmail messages, classify and summarize them with the configured
model and print {"items": [...]} as JSON.

With --emails the records are read from a JSON file (or "-" for stdin) instead
of Gmail. The file holds either an array of records or {"emails": [...]}.

When the model answer cannot be parsed the output carries "error",
"raw_content" and "raw_response" next to an empty item list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runClassify(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}

	f.sources.bind(cmd)
	cmd.Flags().IntVar(&f.maxResults, "max-results", config.DefaultMaxResults, fmt.Sprintf("Number of unread messages to classify (1-%d)", server.MaxResultsLimit))
	cmd.Flags().StringSliceVar(&f.labelIDs, "label-ids", nil, "Gmail label IDs the messages must carry (default: INBOX,UNREAD)")
	cmd.Flags().StringVar(&f.model, "model", "", "Completion model (default: MODEL from the env file or environment)")
	cmd.Flags().StringSliceVar(&f.labels, "labels", nil, "Allowed classification labels (default: azione_richiesta,informazione,importante,non_importante)")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", config.DefaultMaxTokens, fmt.Sprintf("Maximum completion tokens (1-%d)", server.MaxTokensLimit))
	cmd.Flags().BoolVar(&f.includeReasoning, "include-reasoning", false, "Keep the model's reasoning in the response")
	cmd.Flags().BoolVar(&f.noStructuredOutput, "no-structured-output", false, "Do not request JSON schema constrained output")
	cmd.Flags().DurationVar(&f.timeout, "timeout", llm.DefaultTimeout, "Completion request timeout")
	cmd.Flags().StringVar(&f.apiURL, "api-url", "", "Override the completion endpoint URL")
	cmd.Flags().StringVar(&f.emailsFile, "emails", "", `Classify records from a JSON file ("-" for stdin) instead of Gmail`)
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Indent the JSON output")

	return cmd
}

func (f classifyFlags) options() (classifier.Options, error) {
	if f.maxTokens < 1 || f.maxTokens > server.MaxTokensLimit {
		return classifier.Options{}, fmt.Errorf("--max-tokens must be between 1 and %d", server.MaxTokensLimit)
	}
	if f.timeout <= 0 {
		return classifier.Options{}, fmt.Errorf("--timeout must be greater than 0")
	}

	return classifier.Options{
		Model:            f.model,
		Labels:           f.labels,
		MaxTokens:        f.maxTokens,
		IncludeReasoning: f.includeReasoning,
		PlainOutput:      f.noStructuredOutput,
		APIURL:           f.apiURL,
		Timeout:          f.timeout,
		Transport:        TransportCLI,
	}, nil
}

func runClassify(ctx context.Context, in io.Reader, out io.Writer, f classifyFlags) error {
	opts, err := f.options()
	if err != nil {
		return err
	}

	logger := slog.Default()
	p, err := f.sources.buildPipeline(nil, nil, logger)
	if err != nil {
		return err
	}

	var result *classifier.Result
	if f.emailsFile != "" {
		records, err := readRecords(in, f.emailsFile)
		if err != nil {
			return err
		}
		result, err = p.classifier.Classify(ctx, records, opts)
		if err != nil {
			return err
		}
	} else {
		if f.maxResults < 1 || f.maxResults > server.MaxResultsLimit {
			return fmt.Errorf("--max-results must be between 1 and %d", server.MaxResultsLimit)
		}
		result, err = p.classifier.ClassifyUnread(ctx, classifier.UnreadRequest{
			MaxResults: int64(f.maxResults),
			LabelIDs:   f.labelIDs,
			Options:    opts,
		})
		if err != nil {
			return withAuthHint(err, p.store)
		}
	}

	if result.Error != "" {
		logger.Warn("classification returned diagnostics", "error", result.Error)
	}
	return writeResult(out, result, f.pretty)
}

// readRecords decodes records from path, or from in when path is "-".
func readRecords(in io.Reader, path string) ([]gmail.Record, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read emails: %w", err)
	}

	var records []gmail.Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Emails []gmail.Record `json:"emails"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse emails from %s: %w", path, err)
	}
	return wrapped.Emails, nil
}

func writeResult(out io.Writer, result *classifier.Result, pretty bool) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
