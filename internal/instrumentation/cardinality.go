package instrumentation

import (
	"net/mail"
	"strings"
)

// Cardinality helpers for metric labels. Raw senders and free-form labels
// are unbounded, so they are reduced before being used as attributes.

// ExtractSenderDomain returns the lowercased domain of a sender header such
// as "Acme Billing <billing@acme.test>". Unparseable input yields "unknown".
//
// Example:
//
//	ExtractSenderDomain("Acme <billing@Acme.test>")  // "acme.test"
//	ExtractSenderDomain("Unknown sender")            // "unknown"
func ExtractSenderDomain(sender string) string {
	if sender == "" {
		return "unknown"
	}

	address := sender
	if parsed, err := mail.ParseAddress(sender); err == nil {
		address = parsed.Address
	}

	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return "unknown"
	}
	return strings.ToLower(strings.Trim(address[at+1:], "> "))
}

// LabelValue maps a model-produced label onto the allowed vocabulary,
// collapsing anything outside it to "other".
func LabelValue(label string, allowed []string) string {
	for _, a := range allowed {
		if label == a {
			return label
		}
	}
	return "other"
}

// Operation types for Google API metrics.
const (
	OperationList    = "list"
	OperationGet     = "get"
	OperationRefresh = "refresh"
)
