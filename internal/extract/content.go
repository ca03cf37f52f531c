package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Outcome is the result of Extract.
type Outcome struct {
	// Items found in the response. Never nil.
	Items []Item
	// Parsed reports whether a JSON object or array was recovered from the
	// response, even if it held no items.
	Parsed bool
	// Found reports whether the search located an item list or an item
	// shaped object. An explicit empty list under "items" counts as found;
	// JSON with no recognizable item shape does not.
	Found bool
	// Content is the text the items were read from: the model's answer, or
	// the structured field re-encoded as JSON.
	Content string
}

// attempt tries one way of recovering a JSON value from the envelope.
type attempt func(envelope map[string]any) (value any, content string, ok bool)

var attempts = []attempt{
	structuredField,
	textContent,
}

// Extract locates classification items in a raw completion response.
//
// Attempts run in order: a structured field from a schema constrained call,
// then the model's free text. The first attempt that yields JSON is searched
// and ends extraction, so a usable structured field is never second-guessed
// by the text. Extract never fails; callers inspect Parsed and Found.
func Extract(raw json.RawMessage) Outcome {
	out := Outcome{Items: []Item{}}

	envelope, ok := decode(raw).(map[string]any)
	if !ok {
		return out
	}

	for _, try := range attempts {
		value, content, ok := try(envelope)
		if content != "" {
			out.Content = content
		}
		if !ok {
			continue
		}
		out.Parsed = true
		if items, found := search(value); found {
			out.Items = items
			out.Found = true
		}
		return out
	}
	return out
}

// ProviderError reports whether raw is an error body from the provider: a
// top-level "error" member and no "choices". It returns the error member.
func ProviderError(raw json.RawMessage) (json.RawMessage, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}
	if _, ok := envelope["choices"]; ok {
		return nil, false
	}
	errValue, ok := envelope["error"]
	if !ok || !truthy(decode(errValue)) {
		return nil, false
	}
	return errValue, true
}

// structuredField returns an already parsed object from a structured output
// call.
func structuredField(envelope map[string]any) (any, string, bool) {
	if parsed, ok := envelope["parsed"].(map[string]any); ok {
		return parsed, encode(parsed), true
	}

	message := firstMessage(envelope)
	if parsed, ok := message["parsed"].(map[string]any); ok {
		return parsed, encode(parsed), true
	}
	if content, ok := message["content"].(map[string]any); ok {
		return content, encode(content), true
	}
	return nil, "", false
}

// textContent parses the model's free text answer.
func textContent(envelope map[string]any) (any, string, bool) {
	content := locateContent(envelope)
	if content == "" {
		return nil, "", false
	}
	value, ok := parseJSONText(content)
	return value, content, ok
}

// locateContent finds the answer text: top-level "content", then the first
// choice's message content, then the first choice's "text".
func locateContent(envelope map[string]any) string {
	if text := contentText(envelope["content"]); text != "" {
		return text
	}

	choices, _ := envelope["choices"].([]any)
	if len(choices) == 0 {
		return ""
	}
	first, _ := choices[0].(map[string]any)
	message, _ := first["message"].(map[string]any)
	if text := contentText(message["content"]); text != "" {
		return text
	}
	text, _ := first["text"].(string)
	return text
}

// contentText flattens a content value. Strings are returned as is, objects
// are re-encoded, and arrays of typed blocks are concatenated.
func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case map[string]any:
		return encode(c)
	case []any:
		var sb strings.Builder
		for _, part := range c {
			block, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if kind, _ := block["type"].(string); kind != "text" && kind != "output_text" {
				continue
			}
			if text, ok := block["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	}
	return ""
}

func firstMessage(envelope map[string]any) map[string]any {
	choices, _ := envelope["choices"].([]any)
	if len(choices) == 0 {
		return nil
	}
	first, _ := choices[0].(map[string]any)
	message, _ := first["message"].(map[string]any)
	return message
}

// parseJSONText parses text as JSON after stripping code fences. When the
// whole text does not parse, the span from the first '{' to the last '}' is
// tried. Only objects and arrays count as a result.
func parseJSONText(text string) (any, bool) {
	text = stripCodeFences(text)
	if text == "" {
		return nil, false
	}
	if value := decode([]byte(text)); isContainer(value) {
		return value, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	if value := decode([]byte(text[start : end+1])); isContainer(value) {
		return value, true
	}
	return nil, false
}

// stripCodeFences removes a leading ```lang line and a trailing ``` line.
// A fence without a line break is left in place.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		}
	}
	if strings.HasSuffix(text, "```") {
		if i := strings.LastIndex(text, "\n"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

// decode unmarshals data into generic values, or returns nil.
func decode(data []byte) any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil
	}
	if dec.More() {
		return nil
	}
	return value
}

func encode(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}

func isContainer(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	return true
}
