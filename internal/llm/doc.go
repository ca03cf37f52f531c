// Package llm is a minimal client for an OpenAI-compatible chat completion
// endpoint such as OpenRouter, built on the openai-go SDK.
//
// The raw response body is kept as returned by the endpoint rather than
// decoded into SDK types, because answers are searched for items by the
// extract package and provider extensions would be lost in a typed decode.
//
// Complete never returns an error. Transport failures, timeouts, non-2xx
// statuses and undecodable bodies are reported as an ErrorEnvelope on the
// returned Response so callers always inspect a single shape. A nil Response
// means the client is not configured (no API key or endpoint URL).
//
//	client := llm.NewClient(settings, llm.WithMetrics(metrics))
//	resp := client.Complete(ctx, "openai/gpt-4o-mini", []llm.Message{
//		{Role: llm.RoleUser, Content: prompt},
//	}, llm.Options{MaxTokens: 800})
//	if resp == nil {
//		// not configured
//	}
package llm
