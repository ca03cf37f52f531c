package extract

// Item is one normalized classification result.
//
// Every field is a string and never absent: aliases that are missing or hold
// a non-string value normalize to "". Subject and Sender may be back-filled
// from the source record after extraction.
type Item struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Summary string `json:"summary"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}

// Field aliases accepted for each Item field, in priority order.
var (
	idAliases      = []string{"id", "message_id", "email_id"}
	labelAliases   = []string{"label", "classificazione", "classification", "category"}
	summaryAliases = []string{"summary", "riassunto", "sommario", "description"}
	subjectAliases = []string{"subject", "oggetto"}
	senderAliases  = []string{"sender", "mittente", "from"}
)

// itemShapeKeys mark an object as a single classification item.
var itemShapeKeys = []string{
	"label", "summary", "classificazione", "riassunto", "subject", "sender",
	"classification", "category", "sommario", "description", "oggetto", "mittente",
}

// listKeys hold item lists, in priority order.
var listKeys = []string{"items", "emails", "results"}

// NormalizeItem maps a raw object onto an Item. For each field the first
// alias holding a non-empty string wins; anything else becomes "".
func NormalizeItem(raw map[string]any) Item {
	return Item{
		ID:      firstString(raw, idAliases),
		Label:   firstString(raw, labelAliases),
		Summary: firstString(raw, summaryAliases),
		Subject: firstString(raw, subjectAliases),
		Sender:  firstString(raw, senderAliases),
	}
}

// normalizeList normalizes the object entries of list and skips the rest.
func normalizeList(list []any) []Item {
	items := make([]Item, 0, len(list))
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			items = append(items, NormalizeItem(obj))
		}
	}
	return items
}

func firstString(raw map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func looksLikeItem(obj map[string]any) bool {
	for _, key := range itemShapeKeys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}
