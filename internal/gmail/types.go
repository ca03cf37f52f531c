package gmail

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

// Header fallbacks used when a message lacks the header.
const (
	DefaultSubject  = "No subject"
	DefaultSender   = "Unknown sender"
	DefaultDateTime = "Unknown date"
)

// TruncationMarker is appended to bodies cut at the character budget.
const TruncationMarker = "\n\n[truncated]"

// Record is one message reduced to the fields sent for classification.
//
// Records come either from Gmail through RecordFromMessage or from callers
// of the classify endpoint. Attachments is a flag only; attachment content
// is never fetched.
type Record struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Sender      string `json:"sender"`
	DateTime    string `json:"date_time"`
	Snippet     string `json:"snippet"`
	Attachments bool   `json:"attachments"`
	Body        string `json:"body"`
}

// UnmarshalJSON accepts caller-supplied records loosely: the ID may arrive
// as message_id, and attachments may be any JSON value, read for truthiness.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		MessageID   string          `json:"message_id"`
		Subject     string          `json:"subject"`
		Sender      string          `json:"sender"`
		DateTime    string          `json:"date_time"`
		Snippet     string          `json:"snippet"`
		Attachments json.RawMessage `json:"attachments"`
		Body        string          `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{
		ID:          raw.MessageID,
		Subject:     raw.Subject,
		Sender:      raw.Sender,
		DateTime:    raw.DateTime,
		Snippet:     raw.Snippet,
		Attachments: truthy(raw.Attachments),
		Body:        raw.Body,
	}
	if r.ID == "" {
		r.ID = raw.ID
	}
	return nil
}

func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return false
}

// Normalize returns r with the body cut to maxChars runes.
func Normalize(r Record, maxChars int) Record {
	r.Body = Truncate(r.Body, maxChars)
	return r
}

// Truncate cuts text to limit runes and appends TruncationMarker. Text
// within the limit is returned unchanged.
func Truncate(text string, limit int) string {
	if limit < 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i] + TruncationMarker
		}
		n++
	}
	return text
}

// RecordFromMessage maps a full-format Gmail message into a Record.
// Header names are matched case-insensitively and the first occurrence of
// a duplicated header wins.
func RecordFromMessage(msg *gmail.Message) Record {
	headers := map[string]string{}
	var payload *gmail.MessagePart
	if msg != nil {
		payload = msg.Payload
	}
	if payload != nil {
		for _, h := range payload.Headers {
			if h == nil || h.Name == "" {
				continue
			}
			name := strings.ToLower(h.Name)
			if _, seen := headers[name]; !seen {
				headers[name] = h.Value
			}
		}
	}

	body, attachments := DecodePayload(payload)

	rec := Record{
		Subject:     valueOr(headers["subject"], DefaultSubject),
		Sender:      valueOr(headers["from"], DefaultSender),
		DateTime:    formatDate(headers["date"]),
		Attachments: attachments,
		Body:        body,
	}
	if msg != nil {
		rec.ID = msg.Id
		rec.Snippet = msg.Snippet
	}
	return rec
}

// formatDate renders a Date header as RFC 3339, falling back to the raw
// value when it does not parse.
func formatDate(header string) string {
	if header == "" {
		return DefaultDateTime
	}
	t, err := mail.ParseDate(header)
	if err != nil {
		return header
	}
	return t.Format(time.RFC3339)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
