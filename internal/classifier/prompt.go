package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/llm"
)

// SchemaName names the structured output schema.
const SchemaName = "gmail_triage_output"

// MaxSummaryChars is the summary length requested from the model.
const MaxSummaryChars = 280

const inputSeparator = "\n\nInput JSON:\n"

// SystemPrompt returns the instruction naming the allowed labels.
func SystemPrompt(labels []string) string {
	return "Sei un assistente esperto in triage di email e gestione documentale. " +
		"Il tuo compito è analizzare le email e trasformarle in dati strutturati. " +
		fmt.Sprintf("\n\n1. CLASSIFICAZIONE: Usa esclusivamente UN label scelto tra: [%s]. ", strings.Join(labels, ", ")) +
		"Non inventare mai etichette non presenti in lista. " +
		fmt.Sprintf("\n2. RIASSUNTO: Scrivi una sintesi professionale di 1-2 frasi (max %d caratteri). ", MaxSummaryChars) +
		"Focus sull'obiettivo del mittente e sulle eventuali azioni richieste. " +
		"\n3. CAMPI: Includi sempre subject e sender esattamente come presenti nell'input. " +
		"\n4. FORMATO: Segui rigorosamente lo schema JSON richiesto da response_format."
}

// BuildMessages renders records and labels into the single user message
// sent to the model.
func BuildMessages(records []gmail.Record, labels []string) ([]llm.Message, error) {
	if records == nil {
		records = []gmail.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string][]gmail.Record{"emails": records}); err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}

	content := SystemPrompt(labels) + inputSeparator + asciiJSON(strings.TrimSuffix(buf.String(), "\n"))
	return []llm.Message{{Role: llm.RoleUser, Content: content}}, nil
}

// asciiJSON escapes every non-ASCII rune of encoded JSON as \uXXXX, using
// surrogate pairs outside the basic plane. Non-ASCII runes only occur inside
// strings, so the result is equivalent JSON.
func asciiJSON(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			sb.WriteRune(r)
			continue
		}
		if utf16.RuneLen(r) == 2 {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&sb, `\u%04x`, r)
	}
	return sb.String()
}

// ResponseFormat returns the json_schema response format restricting labels
// to the given set.
func ResponseFormat(labels []string) map[string]any {
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   SchemaName,
			"strict": true,
			"schema": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"items"},
				"properties": map[string]any{
					"items": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":                 "object",
							"additionalProperties": false,
							"required":             []string{"id", "label", "summary", "subject", "sender"},
							"properties": map[string]any{
								"id":      map[string]any{"type": "string"},
								"label":   map[string]any{"type": "string", "enum": labels},
								"summary": map[string]any{"type": "string", "maxLength": MaxSummaryChars},
								"subject": map[string]any{"type": "string"},
								"sender":  map[string]any{"type": "string"},
							},
						},
					},
				},
			},
		},
	}
}
