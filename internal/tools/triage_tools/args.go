package triage_tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/llm"
	"github.com/teemow/inboxtriage/internal/server"
)

// intArg reads an integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false, fmt.Errorf("'%s' must be an integer", key)
	}
	return int(f), true, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// stringListArg accepts an array of strings or a comma separated string.
func stringListArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		return config.SplitList(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("'%s' must contain only strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("'%s' must be an array of strings", key)
	}
}

// optionsFromArgs reads the options shared by both tools, applying the same
// bounds as the HTTP API.
func optionsFromArgs(args map[string]any) (classifier.Options, error) {
	opts := classifier.Options{
		Model:     stringArg(args, "model"),
		APIURL:    stringArg(args, "api_url"),
		Timeout:   llm.DefaultTimeout,
		Transport: TransportMCP,
	}

	labels, err := stringListArg(args, "labels")
	if err != nil {
		return opts, err
	}
	opts.Labels = labels

	maxTokens, set, err := intArg(args, "max_tokens")
	if err != nil {
		return opts, err
	}
	if set {
		if maxTokens < 1 || maxTokens > server.MaxTokensLimit {
			return opts, fmt.Errorf("'max_tokens' must be between 1 and %d", server.MaxTokensLimit)
		}
		opts.MaxTokens = maxTokens
	}

	if v, ok := args["include_reasoning"].(bool); ok {
		opts.IncludeReasoning = v
	}
	if v, ok := args["use_structured_output"].(bool); ok {
		opts.PlainOutput = !v
	}

	if raw, ok := args["timeout"]; ok && raw != nil {
		seconds, ok := raw.(float64)
		if !ok || seconds <= 0 {
			return opts, fmt.Errorf("'timeout' must be a positive number of seconds")
		}
		opts.Timeout = time.Duration(seconds * float64(time.Second))
	}

	return opts, nil
}

func unreadRequestFromArgs(args map[string]any) (classifier.UnreadRequest, error) {
	opts, err := optionsFromArgs(args)
	if err != nil {
		return classifier.UnreadRequest{}, err
	}
	req := classifier.UnreadRequest{Options: opts}

	maxResults, set, err := intArg(args, "max_results")
	if err != nil {
		return req, err
	}
	if set {
		if maxResults < 1 || maxResults > server.MaxResultsLimit {
			return req, fmt.Errorf("'max_results' must be between 1 and %d", server.MaxResultsLimit)
		}
		req.MaxResults = int64(maxResults)
	}

	req.LabelIDs, err = stringListArg(args, "label_ids")
	return req, err
}

// recordsFromArgs decodes the emails argument through the Record JSON form,
// so message_id and loose attachment flags are accepted as over HTTP.
func recordsFromArgs(args map[string]any) ([]gmail.Record, error) {
	raw, ok := args["emails"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("'emails' field is required")
	}
	if _, ok := raw.([]any); !ok {
		return nil, fmt.Errorf("'emails' must be an array of objects")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode emails: %w", err)
	}
	var records []gmail.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("'emails' must be an array of objects: %w", err)
	}
	if len(records) > server.MaxEmailsLimit {
		return nil, fmt.Errorf("'emails' must contain at most %d items", server.MaxEmailsLimit)
	}
	return records, nil
}
