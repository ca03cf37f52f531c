package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
)

// DefaultConcurrency bounds the number of message fetches in flight.
const DefaultConcurrency = 5

// TokenSource supplies Gmail access tokens.
type TokenSource interface {
	EnsureAccessToken(ctx context.Context) (string, error)
}

// Fetcher retrieves unread messages for the authorized account.
//
// Each call asks the TokenSource for a fresh access token, lists matching
// message IDs and then fetches full messages with bounded concurrency.
// Calls go through the Gmail API client with a static bearer token source,
// so the same Fetcher can be pointed at a test server with WithEndpoint.
type Fetcher struct {
	tokens      TokenSource
	endpoint    string
	baseClient  *http.Client
	userID      string
	concurrency int
	maxChars    int
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithEndpoint overrides the Gmail API base URL.
func WithEndpoint(endpoint string) FetcherOption {
	return func(f *Fetcher) { f.endpoint = endpoint }
}

// WithBaseHTTPClient sets the client whose transport carries the bearer token.
func WithBaseHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.baseClient = client }
}

// WithConcurrency sets how many message fetches may run at once.
func WithConcurrency(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithMetrics records Gmail calls on m.
func WithMetrics(m *instrumentation.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a Fetcher that authenticates through tokens.
func NewFetcher(tokens TokenSource, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		tokens:      tokens,
		userID:      "me",
		concurrency: DefaultConcurrency,
		maxChars:    config.MaxBodyChars,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.WithService(f.logger, instrumentation.ServiceGmail)
	return f
}

// FetchUnread lists up to maxResults messages carrying all of labelIDs
// (INBOX and UNREAD when empty) and returns them as records in list order.
// Any failed call discards the whole batch.
func (f *Fetcher) FetchUnread(ctx context.Context, maxResults int64, labelIDs []string) ([]Record, error) {
	if len(labelIDs) == 0 {
		labelIDs = config.DefaultLabelIDs
	}

	token, err := f.tokens.EnsureAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := f.service(ctx, token)
	if err != nil {
		return nil, err
	}

	refs, err := f.list(ctx, svc, maxResults, labelIDs)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		f.logger.Debug("no unread messages", "label_ids", labelIDs)
		return []Record{}, nil
	}

	records := make([]Record, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			msg, err := f.get(gctx, svc, ref.Id)
			if err != nil {
				return err
			}
			rec := RecordFromMessage(msg)
			rec.ID = ref.Id
			records[i] = Normalize(rec, f.maxChars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.Warn("message fetch failed, discarding batch", "messages", len(refs), logging.Err(err))
		return nil, err
	}

	f.logger.Debug("fetched unread messages", "messages", len(records))
	return records, nil
}

func (f *Fetcher) service(ctx context.Context, token string) (*gmail.Service, error) {
	clientCtx := ctx
	if f.baseClient != nil {
		clientCtx = context.WithValue(ctx, oauth2.HTTPClient, f.baseClient)
	}
	httpClient := oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

func (f *Fetcher) list(ctx context.Context, svc *gmail.Service, maxResults int64, labelIDs []string) ([]*gmail.Message, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList,
		instrumentation.NewSpanAttributeBuilder().WithLabelIDs(labelIDs).Build()...)
	defer span.End()

	start := time.Now()
	resp, err := svc.Users.Messages.List(f.userID).
		LabelIds(labelIDs...).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	f.record(ctx, instrumentation.OperationList, err, time.Since(start))
	if err != nil {
		err = transportError("list messages", err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return resp.Messages, nil
}

func (f *Fetcher) get(ctx context.Context, svc *gmail.Service, id string) (*gmail.Message, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet)
	defer span.End()

	start := time.Now()
	msg, err := svc.Users.Messages.Get(f.userID, id).Format("full").Context(ctx).Do()
	f.record(ctx, instrumentation.OperationGet, err, time.Since(start))
	if err != nil {
		err = transportError(fmt.Sprintf("get message %s", id), err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return msg, nil
}

func (f *Fetcher) record(ctx context.Context, operation string, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	f.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, d)
}

// transportError wraps a Gmail API failure, keeping the upstream status and
// body when the API answered.
func transportError(op string, err error) error {
	te := &apperrors.TransportError{Op: op, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		te.Status = apiErr.Code
		te.Body = apiErr.Body
	}
	return te
}
