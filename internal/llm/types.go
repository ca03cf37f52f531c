package llm

import (
	"encoding/json"
	"time"
)

// DefaultTimeout bounds a completion call when Options.Timeout is zero.
const DefaultTimeout = 120 * time.Second

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Error envelope kinds.
const (
	KindTransport = "TransportError"
	KindTimeout   = "TimeoutError"
	KindHTTP      = "HTTPError"
	KindDecode    = "DecodeError"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion call. Nil or zero fields are left out of
// the request body.
//
// Reasoning, ResponseFormat and Provider are OpenRouter request fields. They
// are marshaled as given and set on the body next to the typed parameters.
type Options struct {
	MaxTokens      int
	Reasoning      any
	ResponseFormat any
	Provider       any

	// APIURL overrides the configured endpoint for this call.
	APIURL  string
	Timeout time.Duration
	Headers map[string]string
}

// ErrorEnvelope describes a failed completion call.
//
// Kind is one of the Kind constants. Status and Body are set only when the
// endpoint answered: Status carries the HTTP code and Body the unparsed
// answer, so a caller can show what the provider actually said.
type ErrorEnvelope struct {
	Kind   string `json:"error"`
	Status int    `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
	Body   string `json:"body,omitempty"`
}

// Response is the outcome of a completion call: either the raw JSON body of
// a 2xx answer or an error envelope.
type Response struct {
	Raw json.RawMessage
	Err *ErrorEnvelope
}

// Failed reports whether the call produced an error envelope.
func (r *Response) Failed() bool {
	return r != nil && r.Err != nil
}

// Details returns the JSON form of the response for diagnostics: the raw
// body on success, the envelope otherwise.
func (r *Response) Details() json.RawMessage {
	if r == nil {
		return nil
	}
	if r.Err == nil {
		return r.Raw
	}
	data, err := json.Marshal(r.Err)
	if err != nil {
		return nil
	}
	return data
}
